package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/local/pdftutor/api/config"
	"github.com/local/pdftutor/api/db"
	"github.com/local/pdftutor/api/models"
	"github.com/local/pdftutor/api/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProvider struct {
	mu   sync.Mutex
	text string
	json string
}

func (f *fakeProvider) GenerateText(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, nil
}

func (f *fakeProvider) GenerateJSON(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.json, nil
}

func (f *fakeProvider) GetProviderName() string { return "fake" }

// fakeExtractor serves the same pages for every file unless told to fail
type fakeExtractor struct {
	pages []models.Page
	err   error
}

func (f *fakeExtractor) Extract(path string) ([]models.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type testServer struct {
	router    *gin.Engine
	provider  *fakeProvider
	extractor *fakeExtractor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	database, err := db.Init(filepath.Join(dir, "tutor.db"))
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		UploadDir:          filepath.Join(dir, "uploads"),
		ProcessedDir:       filepath.Join(dir, "processed"),
		MaxUploadSize:      1 << 20,
		ChunkSize:          services.DefaultChunkSize,
		ChunkOverlap:       services.DefaultChunkOverlap,
		DefaultUserID:      "default_user",
		ProcessConcurrency: 2,
	}

	provider := &fakeProvider{text: "generated text", json: `{"score": 1, "feedback": "Great"}`}
	extractor := &fakeExtractor{pages: []models.Page{
		{Number: 1, Text: "Cell membrane controls what enters and leaves the cell"},
		{Number: 2, Text: "The nucleus stores genetic material"},
		{Number: 3, Text: "Mitochondria release energy"},
	}}

	h, err := NewWithDeps(database, cfg, provider, extractor)
	if err != nil {
		t.Fatalf("NewWithDeps: %v", err)
	}
	router := gin.New()
	h.Routes(router)

	return &testServer{router: router, provider: provider, extractor: extractor}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

// uploadAndProcess registers one document and processes it, returning its id
func (s *testServer) uploadAndProcess(t *testing.T) string {
	t.Helper()
	w := s.upload(t, "biology.pdf", "%PDF-1.4 biology")
	expectStatus(t, w, http.StatusOK)
	docID := decode[UploadResponse](t, w).Uploaded[0].DocID

	w = s.do(t, http.MethodPost, "/api/documents/"+docID+"/process", nil)
	expectStatus(t, w, http.StatusOK)
	return docID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]string](t, w); got["status"] != "ok" || got["model_provider"] != "fake" {
		t.Fatalf("health = %v", got)
	}
}

func TestUploadSkipsDuplicatesAndRejectsNonPDF(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "biology.pdf", "%PDF-1.4 biology")
	expectStatus(t, w, http.StatusOK)
	first := decode[UploadResponse](t, w)
	if first.UploadedCount != 1 || first.SkippedCount != 0 {
		t.Fatalf("first upload = %+v", first)
	}

	w = s.upload(t, "copy of biology.pdf", "%PDF-1.4 biology")
	expectStatus(t, w, http.StatusOK)
	second := decode[UploadResponse](t, w)
	if second.UploadedCount != 0 || second.SkippedCount != 1 || second.Skipped[0].DocID != first.Uploaded[0].DocID {
		t.Fatalf("second upload = %+v", second)
	}

	w = s.upload(t, "notes.txt", "plain")
	expectStatus(t, w, http.StatusBadRequest)

	w = s.do(t, http.MethodGet, "/api/documents", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[struct {
		Documents []DocumentView `json:"documents"`
	}](t, w)
	if len(list.Documents) != 1 || list.Documents[0].Processing != nil {
		t.Fatalf("documents = %+v", list.Documents)
	}
}

func TestProcessAndAsk(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "biology.pdf", "%PDF-1.4 biology")
	docID := decode[UploadResponse](t, w).Uploaded[0].DocID

	w = s.do(t, http.MethodGet, "/api/documents/"+docID+"/status", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]interface{}](t, w); got["status"] != models.StatusPending {
		t.Fatalf("status before processing = %v", got)
	}

	w = s.do(t, http.MethodPost, "/api/chat/ask", gin.H{"doc_id": docID, "question": "membrane"})
	expectStatus(t, w, http.StatusConflict)

	w = s.do(t, http.MethodPost, "/api/documents/"+docID+"/process", gin.H{"chunk_size": 10, "chunk_overlap": 10})
	expectStatus(t, w, http.StatusBadRequest)

	w = s.do(t, http.MethodPost, "/api/documents/"+docID+"/process", nil)
	expectStatus(t, w, http.StatusOK)
	status := decode[models.ProcessingStatus](t, w)
	if status.Status != models.StatusProcessed || status.NumPages != 3 || status.NumChunks != 3 {
		t.Fatalf("status = %+v", status)
	}

	w = s.do(t, http.MethodGet, "/api/documents/"+docID+"/chunks?limit=1", nil)
	expectStatus(t, w, http.StatusOK)
	preview := decode[struct {
		Chunks []models.Chunk `json:"chunks"`
	}](t, w)
	if len(preview.Chunks) != 1 || preview.Chunks[0].ChunkID != docID+"::p1::c0" {
		t.Fatalf("preview = %+v", preview.Chunks)
	}

	w = s.do(t, http.MethodPost, "/api/chat/ask", gin.H{"doc_id": docID, "question": "What does the membrane control?", "answer": true})
	expectStatus(t, w, http.StatusOK)
	resp := decode[ChatResponse](t, w)
	if len(resp.Results) == 0 || resp.Results[0].Metadata.PageNumber != 1 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Answer == nil || resp.Answer.Answer != "generated text" || len(resp.Answer.Citations) != len(resp.Results) {
		t.Fatalf("answer = %+v", resp.Answer)
	}

	w = s.do(t, http.MethodPost, "/api/chat/ask", gin.H{"doc_id": docID, "question": "membrane", "top_k": 21})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestProcessFailureIsRecorded(t *testing.T) {
	s := newTestServer(t)
	s.extractor.err = errors.New("malformed PDF")

	w := s.upload(t, "broken.pdf", "%PDF broken")
	docID := decode[UploadResponse](t, w).Uploaded[0].DocID

	w = s.do(t, http.MethodPost, "/api/documents/"+docID+"/process", nil)
	expectStatus(t, w, http.StatusInternalServerError)
	if !strings.Contains(w.Body.String(), "malformed PDF") {
		t.Fatalf("body = %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/documents/"+docID+"/status", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[models.ProcessingStatus](t, w); got.Status != models.StatusFailed || got.Error == nil {
		t.Fatalf("status = %+v", got)
	}

	w = s.do(t, http.MethodPost, "/api/documents/missing/process", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestProcessAllDocuments(t *testing.T) {
	s := newTestServer(t)
	s.upload(t, "a.pdf", "%PDF a")
	s.upload(t, "b.pdf", "%PDF b")

	w := s.do(t, http.MethodPost, "/api/documents/process", nil)
	expectStatus(t, w, http.StatusOK)
	got := decode[struct {
		Results        []services.ProcessOutcome `json:"results"`
		ProcessedCount int                       `json:"processed_count"`
		FailedCount    int                       `json:"failed_count"`
	}](t, w)
	if len(got.Results) != 2 || got.ProcessedCount != 2 || got.FailedCount != 0 {
		t.Fatalf("process all = %+v", got)
	}
}

func TestLessonPlanFromYAML(t *testing.T) {
	s := newTestServer(t)
	docID := s.uploadAndProcess(t)

	body := "topics:\n  - title: Cells\n    subtopics: [membrane, nucleus]\n"
	req := httptest.NewRequest(http.MethodPut, "/api/lessons/"+docID+"/syllabus", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-yaml")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)

	w = s.do(t, http.MethodGet, "/api/lessons/"+docID, nil)
	expectStatus(t, w, http.StatusOK)
	plan := decode[LessonPlanResponse](t, w)
	if len(plan.Steps) != 4 {
		t.Fatalf("steps = %+v", plan.Steps)
	}
	if plan.Steps[2].Subtopic != "nucleus" || plan.Steps[2].Action != models.ActionExplain {
		t.Fatalf("step 2 = %+v", plan.Steps[2])
	}
}

func TestGenerateLessonPlan(t *testing.T) {
	s := newTestServer(t)
	docID := s.uploadAndProcess(t)
	s.provider.json = `{"topics": [{"title": "Cells", "subtopics": ["membrane"]}]}`

	w := s.do(t, http.MethodPost, "/api/lessons/"+docID+"/generate", nil)
	expectStatus(t, w, http.StatusOK)
	plan := decode[LessonPlanResponse](t, w)
	if plan.Syllabus == nil || len(plan.Syllabus.Topics) != 1 || len(plan.Steps) != 2 {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestTutorSession(t *testing.T) {
	s := newTestServer(t)
	docID := s.uploadAndProcess(t)
	base := "/api/tutor/" + docID

	w := s.do(t, http.MethodGet, base+"/next", nil)
	expectStatus(t, w, http.StatusConflict)

	w = s.do(t, http.MethodPut, "/api/lessons/"+docID+"/syllabus", gin.H{
		"topics": []gin.H{{"title": "Cells", "subtopics": []string{"membrane"}}},
	})
	expectStatus(t, w, http.StatusOK)

	// a new learner starts at mastery 0.3, which is review territory
	w = s.do(t, http.MethodGet, base+"/next", nil)
	expectStatus(t, w, http.StatusOK)
	next := decode[NextStepResponse](t, w)
	if next.Completed || next.Action != models.ActionReview || next.Difficulty != models.DifficultyEasy {
		t.Fatalf("first next = %+v", next)
	}
	if next.Content != "generated text" || next.Step == nil || next.Step.StepIndex != 0 {
		t.Fatalf("first next = %+v", next)
	}

	w = s.do(t, http.MethodGet, base+"/state", nil)
	expectStatus(t, w, http.StatusOK)
	stored := decode[struct {
		State     models.TutorState `json:"state"`
		Persisted bool              `json:"persisted"`
	}](t, w)
	if !stored.Persisted || stored.State.UserID != "default_user" || stored.State.MasteryScore != 0.3 {
		t.Fatalf("state = %+v", stored)
	}

	w = s.do(t, http.MethodPost, base+"/answer", gin.H{"question": "What does the membrane do?", "answer": "   "})
	expectStatus(t, w, http.StatusBadRequest)

	w = s.do(t, http.MethodPost, base+"/answer", gin.H{"question": " \n", "answer": "Controls entry"})
	expectStatus(t, w, http.StatusBadRequest)

	w = s.do(t, http.MethodPost, base+"/answer", gin.H{"question": "What does the membrane do?", "answer": "Controls entry"})
	expectStatus(t, w, http.StatusOK)
	answer := decode[AnswerResponse](t, w)
	if answer.Score != 1 || answer.Feedback != "Great" {
		t.Fatalf("answer = %+v", answer)
	}
	if answer.State.StepIndex != 1 || answer.State.Difficulty != models.DifficultyMedium || answer.NextAction != models.ActionQuiz {
		t.Fatalf("state after answer = %+v, next %s", answer.State, answer.NextAction)
	}
	if answer.Attempt.StepIndex != 0 || answer.Attempt.ID == "" {
		t.Fatalf("attempt = %+v", answer.Attempt)
	}

	w = s.do(t, http.MethodGet, base+"/next", nil)
	expectStatus(t, w, http.StatusOK)
	next = decode[NextStepResponse](t, w)
	if next.Action != models.ActionQuiz || next.Question != "generated text" || next.Step.StepIndex != 1 {
		t.Fatalf("second next = %+v", next)
	}

	w = s.do(t, http.MethodPost, base+"/answer", gin.H{"question": next.Question, "answer": "Controls entry and exit"})
	expectStatus(t, w, http.StatusOK)

	w = s.do(t, http.MethodGet, base+"/next", nil)
	expectStatus(t, w, http.StatusOK)
	if done := decode[NextStepResponse](t, w); !done.Completed {
		t.Fatalf("expected completion, got %+v", done)
	}

	w = s.do(t, http.MethodPost, base+"/answer", gin.H{"question": "q", "answer": "a"})
	expectStatus(t, w, http.StatusConflict)

	w = s.do(t, http.MethodGet, base+"/attempts", nil)
	expectStatus(t, w, http.StatusOK)
	attempts := decode[struct {
		Attempts []models.QuizAttempt `json:"attempts"`
	}](t, w)
	if len(attempts.Attempts) != 2 || attempts.Attempts[0].StepIndex != 1 {
		t.Fatalf("attempts = %+v", attempts.Attempts)
	}

	w = s.do(t, http.MethodGet, base+"/state?user_id=someone-else", nil)
	expectStatus(t, w, http.StatusOK)
	fresh := decode[struct {
		State     models.TutorState `json:"state"`
		Persisted bool              `json:"persisted"`
	}](t, w)
	if fresh.Persisted || fresh.State.StepIndex != 0 {
		t.Fatalf("other learner = %+v", fresh)
	}
}

func TestTutorStopsAfterFailedReprocess(t *testing.T) {
	s := newTestServer(t)
	docID := s.uploadAndProcess(t)
	base := "/api/tutor/" + docID

	w := s.do(t, http.MethodPut, "/api/lessons/"+docID+"/syllabus", gin.H{
		"topics": []gin.H{{"title": "Cells", "subtopics": []string{"membrane"}}},
	})
	expectStatus(t, w, http.StatusOK)

	w = s.do(t, http.MethodGet, base+"/next", nil)
	expectStatus(t, w, http.StatusOK)

	s.extractor.err = errors.New("malformed PDF")
	w = s.do(t, http.MethodPost, "/api/documents/"+docID+"/process", nil)
	expectStatus(t, w, http.StatusInternalServerError)

	// chunks from the earlier run are still on disk
	w = s.do(t, http.MethodGet, base+"/next", nil)
	expectStatus(t, w, http.StatusConflict)

	w = s.do(t, http.MethodPost, base+"/answer", gin.H{"question": "What does the membrane do?", "answer": "Controls entry"})
	expectStatus(t, w, http.StatusConflict)

	w = s.do(t, http.MethodPost, "/api/chat/ask", gin.H{"doc_id": docID, "question": "membrane"})
	expectStatus(t, w, http.StatusConflict)

	w = s.do(t, http.MethodGet, base+"/attempts", nil)
	expectStatus(t, w, http.StatusOK)
	attempts := decode[struct {
		Attempts []models.QuizAttempt `json:"attempts"`
	}](t, w)
	if len(attempts.Attempts) != 0 {
		t.Fatalf("attempt recorded for a failed document: %+v", attempts.Attempts)
	}
}
