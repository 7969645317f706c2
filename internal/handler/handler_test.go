package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/journeys/internal/engine"
	appI18n "github.com/pavelanni/journeys/internal/i18n"
	"github.com/pavelanni/journeys/internal/model"
	"github.com/pavelanni/journeys/internal/store"
)

var testSecret = []byte("test-secret")

func testCatalog() model.Catalog {
	return model.Catalog{
		Plant: model.Plant{ID: "plant-1", Name: "North Plant"},
		Journeys: []model.CatalogJourney{{
			ID: "j-safety", Slug: "safety", Title: "Plant Safety",
			Modules: []model.CatalogModule{{
				ID: "m-ppe", Slug: "ppe", Title: "Protective Equipment", Hours: 2,
				Items: []model.CatalogItem{
					{Kind: model.ContentLesson, Lesson: &model.Lesson{ID: "l-gloves", Title: "Gloves", Body: "Wear **nitrile** gloves."}},
					{Kind: model.ContentExam, Exam: &model.CatalogExam{
						ID: "e-ppe", Title: "PPE quiz",
						Questions: []model.CatalogQuestion{
							{ID: "q1", Text: "Gloves protect?", Answers: []model.CatalogAnswer{
								{ID: "q1-a", Text: "Hands", Correct: true},
								{ID: "q1-b", Text: "Feet"},
							}},
							{ID: "q2", Text: "Helmets protect?", Answers: []model.CatalogAnswer{
								{ID: "q2-a", Text: "Knees"},
								{ID: "q2-b", Text: "Head", Correct: true},
							}},
						},
					}},
				},
			}},
		}, {
			ID: "j-drafts", Slug: "drafts", Title: "Drafts",
			Modules: []model.CatalogModule{{
				ID: "m-intro", Slug: "intro", Title: "Intro", Hours: 1,
				Items: []model.CatalogItem{
					{Kind: model.ContentExam, Exam: &model.CatalogExam{ID: "e-empty", Title: "Coming soon"}},
				},
			}},
		}},
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	s, err := store.New(filepath.Join(t.TempDir(), "journeys.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if _, err := s.ImportCatalog(context.Background(), testCatalog()); err != nil {
		t.Fatalf("ImportCatalog: %v", err)
	}

	h, err := New(engine.New(s, s, s, s), s, testSecret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return r
}

func mintToken(t *testing.T, secret []byte, sub, plant string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Plant: plant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type call struct {
	method string
	path   string
	body   string
	token  string
	lang   string
}

func do(t *testing.T, srv http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if c.body != "" {
		req = httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(c.method, c.path, nil)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

const modulePath = "/journeys/safety/modules/ppe"

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, call{method: http.MethodGet, path: "/healthz"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", mintToken(t, []byte("other"), "u1", "plant-1")},
		{"missing plant", mintToken(t, testSecret, "u1", "")},
		{"missing subject", mintToken(t, testSecret, "", "plant-1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, call{method: http.MethodGet, path: "/journeys/safety/progress", token: tt.token})
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if got := decode[errorResponse](t, rec); got.Code != "UNAUTHORIZED" {
				t.Errorf("code = %q", got.Code)
			}
		})
	}
}

func TestLearnerFlow(t *testing.T) {
	srv := newTestServer(t)
	tok := mintToken(t, testSecret, "u1", "plant-1")

	// Exam is locked behind the lesson.
	rec := do(t, srv, call{method: http.MethodGet, path: modulePath + "/items/exam/e-ppe/access", token: tok})
	if rec.Code != http.StatusOK {
		t.Fatalf("access status = %d: %s", rec.Code, rec.Body)
	}
	access := decode[accessResponse](t, rec)
	if access.Allowed || access.Code != engine.CodeLessonLocked {
		t.Errorf("access = %+v, want locked by lesson", access)
	}
	if access.Message != "Complete the previous lesson (l-gloves) first." {
		t.Errorf("message = %q", access.Message)
	}

	rec = do(t, srv, call{method: http.MethodPost, path: modulePath + "/exams/e-ppe/start", token: tok})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("start locked exam status = %d, want 403", rec.Code)
	}

	rec = do(t, srv, call{method: http.MethodPost, path: modulePath + "/lessons/l-gloves/complete", token: tok})
	if rec.Code != http.StatusCreated {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body)
	}
	rec = do(t, srv, call{method: http.MethodPost, path: modulePath + "/lessons/l-gloves/complete", token: tok})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second complete status = %d, want 409", rec.Code)
	}
	if got := decode[errorResponse](t, rec); got.Code != string(engine.CodeLessonAlreadyCompleted) {
		t.Errorf("code = %q", got.Code)
	}

	rec = do(t, srv, call{method: http.MethodGet, path: modulePath + "/lessons/l-gloves", token: tok})
	st := decode[lessonResponse](t, rec)
	if rec.Code != http.StatusOK || !st.Completed {
		t.Fatalf("lesson status %d %+v", rec.Code, st)
	}
	if !strings.Contains(st.BodyHTML, "<strong>nitrile</strong>") {
		t.Errorf("body_html = %q", st.BodyHTML)
	}

	rec = do(t, srv, call{method: http.MethodPost, path: modulePath + "/exams/e-ppe/start", token: tok})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	started := decode[engine.StartedExam](t, rec)
	if len(started.Questions) != 2 {
		t.Fatalf("questions = %+v", started.Questions)
	}
	if strings.Contains(rec.Body.String(), "correct") {
		t.Errorf("start response leaks correctness: %s", rec.Body)
	}

	// Incomplete submission.
	rec = do(t, srv, call{method: http.MethodPost, path: modulePath + "/exams/e-ppe/finish", token: tok,
		body: `{"answers":[{"question_id":"q1","answer_id":"q1-a"}]}`})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete finish status = %d, want 400", rec.Code)
	}
	if got := decode[errorResponse](t, rec); got.Code != string(engine.CodeIncompleteExam) {
		t.Errorf("code = %q", got.Code)
	}

	rec = do(t, srv, call{method: http.MethodPost, path: modulePath + "/exams/e-ppe/finish", token: tok,
		body: `{"answers":[{"question_id":"q1","answer_id":"q1-a"},{"question_id":"q2","answer_id":"q2-b"}]}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("finish status = %d: %s", rec.Code, rec.Body)
	}
	res := decode[finishResponse](t, rec)
	if res.Score != 100 || !res.Approved || len(res.Results) != 2 {
		t.Errorf("result = %+v", res)
	}
	if res.Summary != "2 questions answered correctly." {
		t.Errorf("summary = %q", res.Summary)
	}

	rec = do(t, srv, call{method: http.MethodPost, path: modulePath + "/exams/e-ppe/start", token: tok})
	if rec.Code != http.StatusConflict {
		t.Fatalf("restart passed exam status = %d, want 409", rec.Code)
	}

	rec = do(t, srv, call{method: http.MethodGet, path: "/journeys/safety/progress", token: tok})
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status = %d", rec.Code)
	}
	jp := decode[model.JourneyProgress](t, rec)
	if jp.Progress != 100 || !jp.Completed {
		t.Errorf("progress = %+v", jp)
	}
}

func TestErrorResponses(t *testing.T) {
	srv := newTestServer(t)
	tok := mintToken(t, testSecret, "u1", "plant-1")
	otherPlant := mintToken(t, testSecret, "u1", "plant-2")

	tests := []struct {
		name       string
		call       call
		wantStatus int
		wantCode   string
	}{
		{"unknown journey", call{method: http.MethodGet, path: "/journeys/nope/progress", token: tok}, 404, "JOURNEY_NOT_FOUND"},
		{"journey of another plant", call{method: http.MethodGet, path: "/journeys/safety/progress", token: otherPlant}, 404, "JOURNEY_NOT_FOUND"},
		{"unknown module", call{method: http.MethodGet, path: "/journeys/safety/modules/nope/lessons/l-gloves", token: tok}, 404, "MODULE_NOT_FOUND"},
		{"unknown lesson", call{method: http.MethodPost, path: modulePath + "/lessons/nope/complete", token: tok}, 404, "LESSON_NOT_FOUND"},
		{"unknown kind", call{method: http.MethodGet, path: modulePath + "/items/video/x/access", token: tok}, 400, "BAD_REQUEST"},
		{"finish without start", call{method: http.MethodPost, path: modulePath + "/exams/e-ppe/finish", token: tok, body: `{"answers":[]}`}, 403, "EXAM_NOT_STARTED"},
		{"malformed body", call{method: http.MethodPost, path: modulePath + "/exams/e-ppe/finish", token: tok, body: `{"answers":`}, 400, "BAD_REQUEST"},
		{"unknown field", call{method: http.MethodPost, path: modulePath + "/exams/e-ppe/finish", token: tok, body: `{"answer":[]}`}, 400, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.call)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			got := decode[errorResponse](t, rec)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message == "" || got.Message == got.Code {
				t.Errorf("message not localized: %q", got.Message)
			}
		})
	}
}

func TestLocalizedErrors(t *testing.T) {
	srv := newTestServer(t)
	tok := mintToken(t, testSecret, "u1", "plant-1")

	rec := do(t, srv, call{method: http.MethodGet, path: "/journeys/nope/progress", token: tok, lang: "pt-BR,pt;q=0.9"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[errorResponse](t, rec); got.Message != "Trilha não encontrada." {
		t.Errorf("message = %q", got.Message)
	}
	if cl := rec.Header().Get("Content-Language"); cl != "pt-BR" {
		t.Errorf("Content-Language = %q", cl)
	}
}

func TestStartExamWithoutQuestions(t *testing.T) {
	srv := newTestServer(t)
	tok := mintToken(t, testSecret, "u1", "plant-1")
	path := "/journeys/drafts/modules/intro/exams/e-empty/start"

	tests := []struct {
		lang        string
		wantMessage string
	}{
		{"en", "Exam e-empty has no questions yet."},
		{"pt-BR", "A prova e-empty ainda não tem questões."},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			rec := do(t, srv, call{method: http.MethodPost, path: path, token: tok, lang: tt.lang})
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body)
			}
			got := decode[errorResponse](t, rec)
			if got.Code != string(engine.CodeExamHasNoQuestions) {
				t.Errorf("code = %q", got.Code)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Fatal("expected error without secret")
	}
}
