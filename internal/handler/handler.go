package handler

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/exam-paper-app/papergen/internal/exam"
	appI18n "github.com/exam-paper-app/papergen/internal/i18n"
	"github.com/exam-paper-app/papergen/internal/model"
	"github.com/exam-paper-app/papergen/internal/store"
)

//go:embed static/index.html
var indexHTML []byte

// maxUploadBytes caps one generation request's multipart body.
const maxUploadBytes = 64 << 20

// Service runs one exam generation end to end.
type Service interface {
	Generate(ctx context.Context, settings model.ExamSettings, images []model.UploadedImage) (model.GeneratedExam, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	svc     Service
	config  model.AppConfig
	flights flightGuard
}

// New creates a new Handler.
func New(s *store.Store, svc Service, cfg model.AppConfig) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("generation service is required")
	}
	return &Handler{store: s, svc: svc, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/healthz", h.handleHealthz)
	r.Get("/api/labels", h.handleLabels)

	if h.config.AuthRequired {
		r.Post("/api/login", h.handleLogin)
		r.Post("/api/logout", h.handleLogout)
		r.Group(func(pr chi.Router) {
			pr.Use(h.requireAuth)
			pr.Post("/api/generate", h.handleGenerate)
			pr.Get("/api/generations", h.handleGenerations)
		})
		return
	}
	r.Post("/api/generate", h.handleGenerate)
	r.Get("/api/generations", h.handleGenerations)
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		slog.Error("write index page", "error", err)
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var labelKeys = []string{
	"AppTitle", "Tagline", "UploadHint", "SettingsTitle", "GenerateButton",
	"GeneratingStatus", "PrintButton", "HistoryTitle", "EmptyHistory",
	"LoginTitle", "LoginButton", "LogoutButton", "LoginError",
}

func (h *Handler) handleLabels(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = h.config.Lang
	}
	labels := make(map[string]string, len(labelKeys))
	for _, key := range labelKeys {
		labels[key] = appI18n.Localize(lang, key)
	}
	writeJSON(w, http.StatusOK, labels)
}

// handleGenerate accepts a multipart form with the exam settings fields and
// one or more "images" files, runs the pipeline, and returns the raw paper.
// One generation per session at a time; overlapping requests get 409.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	key := h.flightKey(r)
	if !h.flights.tryAcquire(key) {
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "GenerationInProgress"))
		return
	}
	defer h.flights.release(key)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}

	settings := settingsFromForm(r)

	fileHeaders := r.MultipartForm.File["images"]
	if len(fileHeaders) == 0 {
		writeError(w, http.StatusBadRequest, exam.ErrNoImages.Error())
		return
	}

	images := make([]model.UploadedImage, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "open uploaded file "+fh.Filename+": "+err.Error())
			return
		}
		defer f.Close()

		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		images = append(images, model.UploadedImage{
			Name:     fh.Filename,
			MimeType: mimeType,
			Data:     f,
		})
	}

	out, err := h.svc.Generate(r.Context(), settings, images)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, exam.ErrNoImages) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGenerations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListGenerations(h.config.HistoryLimit)
	if err != nil {
		slog.Error("list generations", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "HistoryLoadError"))
		return
	}
	if recs == nil {
		recs = []model.GenerationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"generations": recs})
}

// settingsFromForm reads the exam settings fields, starting from defaults so
// absent fields keep sensible values.
func settingsFromForm(r *http.Request) model.ExamSettings {
	s := model.DefaultSettings()
	if v := r.FormValue("topic"); v != "" {
		s.Topic = v
	}
	if v := r.FormValue("class_name"); v != "" {
		s.ClassName = v
	}
	if v := r.FormValue("board"); v != "" {
		s.Board = v
	}
	s.StudentName = r.FormValue("student_name")
	if v := r.FormValue("language"); v != "" {
		s.Language = v
	}
	s.TotalMarks = formInt(r, "total_marks", s.TotalMarks)
	s.DurationMinutes = formInt(r, "duration_minutes", s.DurationMinutes)
	s.MCQCount = formInt(r, "mcq_count", s.MCQCount)
	s.ShortCount = formInt(r, "short_count", s.ShortCount)
	s.LongCount = formInt(r, "long_count", s.LongCount)
	return s
}

func formInt(r *http.Request, field string, fallback int) int {
	v := r.FormValue(field)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// flightKey identifies the caller's session for the single-flight guard:
// the auth session when present, the client IP otherwise. RemoteAddr carries
// a per-connection port, so it is stripped or parallel requests from one
// browser would never share a key.
func (h *Handler) flightKey(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// flightGuard tracks in-flight generations per session key.
type flightGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func (g *flightGuard) tryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight == nil {
		g.inflight = make(map[string]struct{})
	}
	if _, ok := g.inflight[key]; ok {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

func (g *flightGuard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
