package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/models"
	"alfredoptarigan/cv-evaluation-pipeline/internal/repositories"
	"alfredoptarigan/cv-evaluation-pipeline/internal/services"
)

type stubDocumentRepo struct {
	mu     sync.Mutex
	docs   map[uuid.UUID]models.Document
	err    error
	failOn models.DocumentType
}

func (s *stubDocumentRepo) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && (s.failOn == "" || s.failOn == doc.DocType) {
		return s.err
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *stubDocumentRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrDocumentNotFound, id)
	}
	return &doc, nil
}

func (s *stubDocumentRepo) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *stubDocumentRepo) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

type stubJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.Job
}

func (s *stubJobRepo) Create(_ context.Context, cvID, submissionID uuid.UUID, title string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := models.Job{ID: uuid.New(), CVID: cvID, SubmissionID: submissionID, Title: title, Status: models.StatusProcessing}
	s.jobs[job.ID] = job
	return &job, nil
}

func (s *stubJobRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrJobNotFound, id)
	}
	return &job, nil
}

func (s *stubJobRepo) Claim(context.Context, uuid.UUID, string, time.Duration) (*models.Job, error) {
	return nil, errors.New("not used")
}

func (s *stubJobRepo) Complete(context.Context, uuid.UUID, string, string) error {
	return errors.New("not used")
}

func (s *stubJobRepo) Fail(_ context.Context, id uuid.UUID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Status = models.StatusFailed
	job.ErrorMessage = &msg
	s.jobs[id] = job
	return nil
}

func (s *stubJobRepo) put(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

type stubProducer struct {
	calls []uuid.UUID
	err   error
}

func (s *stubProducer) Enqueue(_ context.Context, jobID, _, _ uuid.UUID, _ string) error {
	s.calls = append(s.calls, jobID)
	return s.err
}

type stubParser struct {
	text string
	err  error
}

func (s *stubParser) ExtractText(string) (string, error) { return s.text, s.err }

func (s *stubParser) ExtractTextWithMetaData(path string) (*services.PDFContent, error) {
	return &services.PDFContent{Text: s.text, FilePath: path}, s.err
}

type testApp struct {
	app       *fiber.App
	uploadDir string
	docs      *stubDocumentRepo
	jobs      *stubJobRepo
	producer  *stubProducer
	parser    *stubParser
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	ta := &testApp{
		docs:     &stubDocumentRepo{docs: make(map[uuid.UUID]models.Document)},
		jobs:     &stubJobRepo{jobs: make(map[uuid.UUID]models.Job)},
		producer: &stubProducer{},
		parser:   &stubParser{text: "extracted\x00 text"},
	}

	ta.uploadDir = t.TempDir()
	storage := services.NewStorageService(ta.uploadDir)
	log := zap.NewNop()

	ta.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(ta.app.Group("/api/v1"),
		NewUploadHandler(ta.docs, storage, ta.parser, 1024, log),
		NewEvaluationHandler(ta.jobs, ta.docs, ta.producer, log),
		NewResultHandler(ta.jobs),
	)
	return ta
}

func (ta *testApp) addDoc(t *testing.T, docType models.DocumentType) uuid.UUID {
	t.Helper()
	doc := &models.Document{DocType: docType, Content: "text"}
	require.NoError(t, ta.docs.Create(context.Background(), doc))
	return doc.ID
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp, decoded
}

func TestHandleEvaluate(t *testing.T) {
	ta := newTestApp(t)
	cvID := ta.addDoc(t, models.DocumentTypeCV)
	subID := ta.addDoc(t, models.DocumentTypeSubmission)

	resp, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/evaluate", map[string]string{
		"title":         "Backend Engineer",
		"cv_id":         cvID.String(),
		"submission_id": subID.String(),
	})

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])

	jobID, err := uuid.Parse(body["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{jobID}, ta.producer.calls)

	job, err := ta.jobs.FindByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", job.Title)
	assert.Equal(t, cvID, job.CVID)
}

func TestHandleEvaluate_Validation(t *testing.T) {
	ta := newTestApp(t)
	cvID := ta.addDoc(t, models.DocumentTypeCV)
	subID := ta.addDoc(t, models.DocumentTypeSubmission)

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{
			name:   "missing title",
			body:   map[string]string{"cv_id": cvID.String(), "submission_id": subID.String()},
			status: fiber.StatusBadRequest,
		},
		{
			name:   "bad cv id",
			body:   map[string]string{"title": "t", "cv_id": "abc", "submission_id": subID.String()},
			status: fiber.StatusBadRequest,
		},
		{
			name:   "missing submission id",
			body:   map[string]string{"title": "t", "cv_id": cvID.String()},
			status: fiber.StatusBadRequest,
		},
		{
			name:   "unknown cv",
			body:   map[string]string{"title": "t", "cv_id": uuid.NewString(), "submission_id": subID.String()},
			status: fiber.StatusNotFound,
		},
		{
			name:   "unknown submission",
			body:   map[string]string{"title": "t", "cv_id": cvID.String(), "submission_id": uuid.NewString()},
			status: fiber.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/evaluate", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}

	assert.Empty(t, ta.producer.calls)
	assert.Empty(t, ta.jobs.jobs)
}

func TestHandleEvaluate_EnqueueFailureMarksJobFailed(t *testing.T) {
	ta := newTestApp(t)
	ta.producer.err = errors.New("broker unreachable")
	cvID := ta.addDoc(t, models.DocumentTypeCV)
	subID := ta.addDoc(t, models.DocumentTypeSubmission)

	resp, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/evaluate", map[string]string{
		"title":         "Backend Engineer",
		"cv_id":         cvID.String(),
		"submission_id": subID.String(),
	})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	jobID, err := uuid.Parse(body["id"].(string))
	require.NoError(t, err)
	job, err := ta.jobs.FindByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "broker unreachable")
}

func TestHandleGetResult(t *testing.T) {
	ta := newTestApp(t)

	output := `{"result":{"cv_match_rate":0.82,"cv_feedback":"a","project_score":4.5,"project_feedback":"b","overall_summary":"c"}}`
	completed := models.Job{ID: uuid.New(), Status: models.StatusCompleted, Result: &output, Title: "Backend Engineer"}
	garbled := "not json at all"
	odd := models.Job{ID: uuid.New(), Status: models.StatusCompleted, Result: &garbled}
	pending := models.Job{ID: uuid.New(), Status: models.StatusProcessing}
	msg := "retry budget exhausted"
	failed := models.Job{ID: uuid.New(), Status: models.StatusFailed, ErrorMessage: &msg}
	for _, j := range []models.Job{completed, odd, pending, failed} {
		ta.jobs.put(j)
	}

	t.Run("completed", func(t *testing.T) {
		resp, body := doJSON(t, ta.app, http.MethodGet, "/api/v1/result/"+completed.ID.String(), nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "completed", body["status"])
		result := body["result"].(map[string]interface{})["result"].(map[string]interface{})
		assert.Equal(t, 0.82, result["cv_match_rate"])

		// Same answer on every poll.
		_, again := doJSON(t, ta.app, http.MethodGet, "/api/v1/result/"+completed.ID.String(), nil)
		assert.Equal(t, body, again)
	})

	t.Run("non json output is returned as a string", func(t *testing.T) {
		_, body := doJSON(t, ta.app, http.MethodGet, "/api/v1/result/"+odd.ID.String(), nil)
		assert.Equal(t, garbled, body["result"])
	})

	t.Run("processing", func(t *testing.T) {
		_, body := doJSON(t, ta.app, http.MethodGet, "/api/v1/result/"+pending.ID.String(), nil)
		assert.Equal(t, "processing", body["status"])
		assert.Nil(t, body["result"])
		assert.NotContains(t, body, "error_message")
	})

	t.Run("failed", func(t *testing.T) {
		_, body := doJSON(t, ta.app, http.MethodGet, "/api/v1/result/"+failed.ID.String(), nil)
		assert.Equal(t, "failed", body["status"])
		assert.Equal(t, msg, body["error_message"])
	})

	t.Run("not found", func(t *testing.T) {
		resp, _ := doJSON(t, ta.app, http.MethodGet, "/api/v1/result/"+uuid.NewString(), nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad id", func(t *testing.T) {
		resp, _ := doJSON(t, ta.app, http.MethodGet, "/api/v1/result/xyz", nil)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func uploadRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleUpload(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, map[string]string{"cv": "cv.pdf", "submission": "report.pdf"}), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body models.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	cv, err := ta.docs.FindByID(context.Background(), uuid.MustParse(body.CVID))
	require.NoError(t, err)
	assert.Equal(t, models.DocumentTypeCV, cv.DocType)
	assert.Equal(t, "extracted text", cv.Content)

	sub, err := ta.docs.FindByID(context.Background(), uuid.MustParse(body.SubmissionID))
	require.NoError(t, err)
	assert.Equal(t, models.DocumentTypeSubmission, sub.DocType)
}

func TestHandleUpload_Errors(t *testing.T) {
	t.Run("missing submission", func(t *testing.T) {
		ta := newTestApp(t)
		resp, err := ta.app.Test(uploadRequest(t, map[string]string{"cv": "cv.pdf"}), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not a pdf", func(t *testing.T) {
		ta := newTestApp(t)
		resp, err := ta.app.Test(uploadRequest(t, map[string]string{"cv": "cv.docx", "submission": "s.pdf"}), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, ta.docs.docs)
	})

	t.Run("unreadable pdf", func(t *testing.T) {
		ta := newTestApp(t)
		ta.parser.err = services.ErrNoPDFText
		resp, err := ta.app.Test(uploadRequest(t, map[string]string{"cv": "cv.pdf", "submission": "s.pdf"}), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(raw), "no text content"), string(raw))
	})

	t.Run("invalid submission rolls back the cv", func(t *testing.T) {
		ta := newTestApp(t)
		resp, err := ta.app.Test(uploadRequest(t, map[string]string{"cv": "cv.pdf", "submission": "s.docx"}), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Zero(t, ta.docs.count())
		assertUploadDirEmpty(t, ta.uploadDir)
	})

	t.Run("submission record failure rolls back the cv", func(t *testing.T) {
		ta := newTestApp(t)
		ta.docs.err = errors.New("db down")
		ta.docs.failOn = models.DocumentTypeSubmission
		resp, err := ta.app.Test(uploadRequest(t, map[string]string{"cv": "cv.pdf", "submission": "s.pdf"}), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
		assert.Zero(t, ta.docs.count())
		assertUploadDirEmpty(t, ta.uploadDir)
	})
}

func assertUploadDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleHealth(t *testing.T) {
	ta := newTestApp(t)
	resp, body := doJSON(t, ta.app, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}
