package engine

import "errors"

// Kind groups error codes by how callers should react to them.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindNotFound         Kind = "not_found"
	KindLocked           Kind = "locked"
	KindAlreadyCompleted Kind = "already_completed"
	KindNotStarted       Kind = "not_started"
	KindValidation       Kind = "validation"
	KindPersistence      Kind = "persistence"
)

// Code is a machine-readable error code. Codes double as i18n message IDs.
type Code string

const (
	// Hierarchy lookups
	CodeJourneyNotFound     Code = "JOURNEY_NOT_FOUND"
	CodeModuleNotFound      Code = "MODULE_NOT_FOUND"
	CodeLessonNotFound      Code = "LESSON_NOT_FOUND"
	CodeExamNotFound        Code = "EXAM_NOT_FOUND"
	CodeContentItemNotFound Code = "CONTENT_ITEM_NOT_FOUND"
	CodeExamHasNoQuestions  Code = "EXAM_HAS_NO_QUESTIONS"

	// Sequencing
	CodeLessonLocked Code = "LESSON_LOCKED"
	CodeExamLocked   Code = "EXAM_LOCKED"

	// Idempotency
	CodeLessonAlreadyCompleted Code = "LESSON_ALREADY_COMPLETED"
	CodeExamAlreadyCompleted   Code = "EXAM_ALREADY_COMPLETED"

	// Attempt lifecycle
	CodeExamNotStarted Code = "EXAM_NOT_STARTED"

	// Submission shape
	CodeExamQuestionNotFound        Code = "EXAM_QUESTION_NOT_FOUND"
	CodeDuplicateExamQuestionAnswer Code = "DUPLICATE_EXAM_QUESTION_ANSWER"
	CodeIncompleteExam              Code = "INCOMPLETE_EXAM"

	CodePersistence Code = "PERSISTENCE"
)

// Kind returns the kind a code belongs to.
func (c Code) Kind() Kind {
	switch c {
	case CodeJourneyNotFound, CodeModuleNotFound, CodeLessonNotFound, CodeExamNotFound, CodeContentItemNotFound, CodeExamHasNoQuestions:
		return KindNotFound
	case CodeLessonLocked, CodeExamLocked:
		return KindLocked
	case CodeLessonAlreadyCompleted, CodeExamAlreadyCompleted:
		return KindAlreadyCompleted
	case CodeExamNotStarted:
		return KindNotStarted
	case CodeExamQuestionNotFound, CodeDuplicateExamQuestionAnswer, CodeIncompleteExam:
		return KindValidation
	case CodePersistence:
		return KindPersistence
	default:
		return KindUnknown
	}
}

// Error is the engine's error type.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Context for message templating
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the kind of the error's code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

func newError(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func wrapError(code Code, message string, metadata map[string]string, cause error) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata, Cause: cause}
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrJourneyNotFound             = &Error{Code: CodeJourneyNotFound, Message: "journey not found"}
	ErrModuleNotFound              = &Error{Code: CodeModuleNotFound, Message: "module not found"}
	ErrLessonNotFound              = &Error{Code: CodeLessonNotFound, Message: "lesson not found"}
	ErrExamNotFound                = &Error{Code: CodeExamNotFound, Message: "exam not found"}
	ErrContentItemNotFound         = &Error{Code: CodeContentItemNotFound, Message: "content item not found"}
	ErrExamHasNoQuestions          = &Error{Code: CodeExamHasNoQuestions, Message: "exam has no questions"}
	ErrLessonLocked                = &Error{Code: CodeLessonLocked, Message: "lesson locked"}
	ErrExamLocked                  = &Error{Code: CodeExamLocked, Message: "exam locked"}
	ErrLessonAlreadyCompleted      = &Error{Code: CodeLessonAlreadyCompleted, Message: "lesson already completed"}
	ErrExamAlreadyCompleted        = &Error{Code: CodeExamAlreadyCompleted, Message: "exam already completed"}
	ErrExamNotStarted              = &Error{Code: CodeExamNotStarted, Message: "exam not started"}
	ErrExamQuestionNotFound        = &Error{Code: CodeExamQuestionNotFound, Message: "exam question not found"}
	ErrDuplicateExamQuestionAnswer = &Error{Code: CodeDuplicateExamQuestionAnswer, Message: "duplicate exam question answer"}
	ErrIncompleteExam              = &Error{Code: CodeIncompleteExam, Message: "incomplete exam"}
	ErrPersistence                 = &Error{Code: CodePersistence, Message: "persistence failure"}
)

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return KindUnknown
}

// Storage sentinels returned by port implementations.
var (
	// ErrRecordNotFound is returned by Get* lookups that match no row.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordExists is returned when an insert hits a uniqueness constraint.
	ErrRecordExists = errors.New("record already exists")
	// ErrAttemptNotActive is returned when a conditional finish finds the attempt already finished.
	ErrAttemptNotActive = errors.New("attempt is not active")
	// ErrAttemptPassed is returned when a restart finds a passed attempt for the same user and exam.
	ErrAttemptPassed = errors.New("exam already passed")
)
