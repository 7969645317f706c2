package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/journeys/internal/engine"
	appI18n "github.com/pavelanni/journeys/internal/i18n"
	"github.com/pavelanni/journeys/internal/model"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine *engine.Service
	db     Pinger
	secret []byte
}

// New creates a new Handler. secret is the HS256 key bearer tokens are
// verified with.
func New(svc *engine.Service, db Pinger, secret []byte) (*Handler, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &Handler{engine: svc, db: db, secret: secret}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.requireLearner)
		r.Route("/journeys/{journey}", func(r chi.Router) {
			r.Get("/progress", h.handleJourneyProgress)
			r.Route("/modules/{module}", func(r chi.Router) {
				r.Get("/items/{kind}/{id}/access", h.handleAccess)
				r.Get("/lessons/{lesson}", h.handleLesson)
				r.Post("/lessons/{lesson}/complete", h.handleCompleteLesson)
				r.Post("/exams/{exam}/start", h.handleStartExam)
				r.Post("/exams/{exam}/finish", h.handleFinishExam)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleJourneyProgress(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	jp, err := h.engine.JourneyProgressBySlug(r.Context(), learner.PlantID, chi.URLParam(r, "journey"), learner.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jp)
}

type accessResponse struct {
	Kind    model.ContentKind `json:"kind"`
	ID      string            `json:"id"`
	Allowed bool              `json:"allowed"`
	Code    engine.Code       `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
}

// handleAccess reports whether the learner may open an item. A locked item is
// a normal answer here, not an error.
func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	kind, err := model.ParseContentKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	_, m, err := h.engine.ResolveModule(r.Context(), learner.PlantID, chi.URLParam(r, "journey"), chi.URLParam(r, "module"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	target := model.ContentRef{Kind: kind, ID: chi.URLParam(r, "id")}
	resp := accessResponse{Kind: target.Kind, ID: target.ID, Allowed: true}
	if err := h.engine.CheckAccess(r.Context(), m.ID, target, learner.ID); err != nil {
		var e *engine.Error
		if !errors.As(err, &e) || e.Kind() != engine.KindLocked {
			writeError(w, r, err)
			return
		}
		resp.Allowed = false
		resp.Code = e.Code
		resp.Message = localize(r.Context(), e)
	}
	writeJSON(w, http.StatusOK, resp)
}

func lessonRef(r *http.Request) engine.LessonRef {
	learner := model.LearnerFromContext(r.Context())
	return engine.LessonRef{
		PlantID:     learner.PlantID,
		JourneySlug: chi.URLParam(r, "journey"),
		ModuleSlug:  chi.URLParam(r, "module"),
		LessonID:    chi.URLParam(r, "lesson"),
	}
}

func examRef(r *http.Request) engine.ExamRef {
	learner := model.LearnerFromContext(r.Context())
	return engine.ExamRef{
		PlantID:     learner.PlantID,
		JourneySlug: chi.URLParam(r, "journey"),
		ModuleSlug:  chi.URLParam(r, "module"),
		ExamID:      chi.URLParam(r, "exam"),
	}
}

type lessonResponse struct {
	engine.LessonStatus
	BodyHTML string `json:"body_html,omitempty"`
}

func (h *Handler) handleLesson(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	st, err := h.engine.LessonStatus(r.Context(), lessonRef(r), learner.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	html, err := renderMarkdown(st.Lesson.Body)
	if err != nil {
		writeError(w, r, fmt.Errorf("render lesson %s: %w", st.Lesson.ID, err))
		return
	}
	writeJSON(w, http.StatusOK, lessonResponse{LessonStatus: st, BodyHTML: html})
}

func (h *Handler) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	p, err := h.engine.CompleteLesson(r.Context(), lessonRef(r), learner.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())
	started, err := h.engine.StartExam(r.Context(), examRef(r), learner.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

type finishRequest struct {
	Answers []engine.Submission `json:"answers"`
}

type finishResponse struct {
	engine.ExamResult
	Summary string `json:"summary"`
}

func (h *Handler) handleFinishExam(w http.ResponseWriter, r *http.Request) {
	learner := model.LearnerFromContext(r.Context())

	var req finishRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	res, err := h.engine.FinishExam(r.Context(), examRef(r), learner.ID, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, finishResponse{
		ExamResult: res,
		Summary:    appI18n.Tp(r.Context(), "QuestionsAnsweredCorrectly", res.CorrectAnswers),
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func statusForKind(k engine.Kind) int {
	switch k {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindLocked, engine.KindNotStarted:
		return http.StatusForbidden
	case engine.KindAlreadyCompleted:
		return http.StatusConflict
	case engine.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders an engine error as {"code","message"} with a localized
// message. Errors outside the engine's taxonomy become 500 INTERNAL.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *engine.Error
	if !errors.As(err, &e) {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: appI18n.T(r.Context(), "INTERNAL")})
		return
	}
	status := statusForKind(e.Kind())
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", e.Code, "error", err)
	} else {
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", e.Code, "error", err)
	}
	writeJSON(w, status, errorResponse{Code: string(e.Code), Message: localize(r.Context(), e)})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	slog.Debug("bad request", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: appI18n.T(r.Context(), "BAD_REQUEST")})
}

func localize(ctx context.Context, e *engine.Error) string {
	data := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		data[k] = v
	}
	return appI18n.Td(ctx, string(e.Code), data)
}
