package http

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/scorm"
	"scorm-quiz-service/internal/storage"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 50 << 20
	ownerHeader    = "X-User-ID"
)

// Services groups the use cases the REST API exposes.
type Services struct {
	Scoring  *app.ScoringService
	Results  *app.ResultsService
	Quizzes  *app.QuizService
	Attempts *app.AttemptService
	Builder  *scorm.Builder
	Blobs    storage.BlobStore
	// PublicURL prefixes the media URLs returned by uploads.
	PublicURL string
}

// Handler serves the REST API.
type Handler struct {
	svc Services
	log *zap.Logger
}

func NewHandler(svc Services, log *zap.Logger) *Handler {
	svc.PublicURL = strings.TrimRight(svc.PublicURL, "/")
	return &Handler{svc: svc, log: log}
}

type submitResponse struct {
	Error      bool                    `json:"error"`
	Submission domain.SubmissionResult `json:"submission"`
}

type messageResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// Submit grades a submission posted by a quiz taker.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeFailure(w, h.log, err)
		return
	}
	result, err := h.svc.Scoring.SubmitJSON(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		writeFailure(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Submission: result})
}

// Submissions lists the graded submissions of a quiz.
func (h *Handler) Submissions(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Scoring.ListSubmissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// StoreResult keeps a result blob reported by a packaged player.
func (h *Handler) StoreResult(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeFailure(w, h.log, err)
		return
	}
	if _, err := h.svc.Results.Store(r.Context(), chi.URLParam(r, "id"), body); err != nil {
		writeFailure(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Results Uploaded!"})
}

// ListResults returns every result blob of a quiz keyed by id.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Results.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.svc.Quizzes.Create(r.Context(), r.Header.Get(ownerHeader))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Quizzes.List(r.Context(), r.Header.Get(ownerHeader))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.svc.Quizzes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

// SaveQuiz replaces the quiz at the route id with the posted definition.
func (h *Handler) SaveQuiz(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(body, &quiz); err != nil {
		writeError(w, h.log, fmt.Errorf("%w: %v", domain.ErrInvalidQuiz, err))
		return
	}
	quiz.ID = chi.URLParam(r, "id")
	saved, err := h.svc.Quizzes.Save(r.Context(), r.Header.Get(ownerHeader), quiz)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) DuplicateQuiz(w http.ResponseWriter, r *http.Request) {
	dup, err := h.svc.Quizzes.Duplicate(r.Context(), r.Header.Get(ownerHeader), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Quizzes.Delete(r.Context(), r.Header.Get(ownerHeader), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Quiz deleted"})
}

type uploadResponse struct {
	Error bool   `json:"error"`
	Key   string `json:"key"`
	URL   string `json:"url"`
}

// UploadMedia stores the request body as quizzes/{name} and returns the URL
// quizzes should reference it by.
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	name, err := mediaParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	key := scorm.MediaPrefix + name
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}

	logged := 0
	body := storage.NewProgressReader(http.MaxBytesReader(w, r.Body, maxUploadBytes), r.ContentLength, func(frac float64) {
		if step := int(frac * 4); step > logged {
			logged = step
			h.log.Debug("media upload progress", zap.String("key", key), zap.Int("percent", step*25))
		}
	})
	if err := h.svc.Blobs.Put(r.Context(), key, body, r.ContentLength, contentType); err != nil {
		writeError(w, h.log, fmt.Errorf("upload %s: %w", key, err))
		return
	}
	h.log.Info("media uploaded", zap.String("key", key), zap.Int64("bytes", r.ContentLength))
	writeJSON(w, http.StatusCreated, uploadResponse{Key: key, URL: h.svc.PublicURL + scorm.MediaRoute + name})
}

// ServeMedia streams an uploaded media file.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	name, err := mediaParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	rc, err := h.svc.Blobs.Get(r.Context(), scorm.MediaPrefix+name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	defer rc.Close()
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("serve media", zap.String("name", name), zap.Error(err))
	}
}

// ServeResource returns media prefetched for quiz attempts, waiting for the
// prefetch to settle when needed.
func (h *Handler) ServeResource(w http.ResponseWriter, r *http.Request) {
	resources, err := h.svc.Attempts.Resources(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	key := chi.URLParam(r, "key")
	res, ok := resources.ByKey(key)
	if !ok {
		if err := resources.Wait(r.Context()); err != nil {
			return
		}
		res, ok = resources.ByKey(key)
	}
	if !ok {
		writeError(w, h.log, fmt.Errorf("resource %s: %w", key, domain.ErrNotFound))
		return
	}
	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(res.Data)
}

// Package builds and downloads the SCORM archive of a quiz.
func (h *Handler) Package(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.svc.Quizzes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	data, err := h.svc.Builder.Build(r.Context(), quiz)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+scorm.ArchiveName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedSubmission, err)
	}
	return body, nil
}

func mediaParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", scorm.ErrMediaName, name)
	}
	return name, nil
}
