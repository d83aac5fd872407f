package handler

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
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/exam-paper-app/papergen/internal/i18n"
	"github.com/exam-paper-app/papergen/internal/model"
	"github.com/exam-paper-app/papergen/internal/store"
)

type receivedImage struct {
	name     string
	mimeType string
	data     string
}

type fakeService struct {
	gotSettings model.ExamSettings
	gotImages   []receivedImage
	content     string
	err         error
}

func (f *fakeService) Generate(_ context.Context, settings model.ExamSettings, images []model.UploadedImage) (model.GeneratedExam, error) {
	f.gotSettings = settings
	f.gotImages = nil
	for _, img := range images {
		data, err := io.ReadAll(img.Data)
		if err != nil {
			return model.GeneratedExam{}, err
		}
		f.gotImages = append(f.gotImages, receivedImage{name: img.Name, mimeType: img.MimeType, data: string(data)})
	}
	if f.err != nil {
		return model.GeneratedExam{}, f.err
	}
	return model.GeneratedExam{Content: f.content}, nil
}

func newTestRouter(t *testing.T, svc Service, cfg model.AppConfig) (chi.Router, *store.Store) {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h, err := New(st, svc, cfg)
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	r := chi.NewRouter()
	h.Routes(r)
	return r, st
}

type testImage struct {
	name     string
	mimeType string
	data     string
}

func multipartBody(t *testing.T, fields map[string]string, images []testImage) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	for _, img := range images {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, img.name))
		hdr.Set("Content-Type", img.mimeType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte(img.data)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestGenerate(t *testing.T) {
	svc := &fakeService{content: "EXAM PAPER\n\nSection A"}
	r, _ := newTestRouter(t, svc, model.AppConfig{Lang: "en", HistoryLimit: 20})

	fields := map[string]string{
		"topic":       "Photosynthesis",
		"class_name":  "Grade 7",
		"board":       "ICSE",
		"language":    "Hindi",
		"total_marks": "40",
		"mcq_count":   "8",
		"short_count": "4",
		"long_count":  "2",
	}
	body, contentType := multipartBody(t, fields, []testImage{
		{name: "page1.jpg", mimeType: "image/jpeg", data: "jpeg-bytes"},
		{name: "page2.png", mimeType: "image/png", data: "png-bytes"},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := decodeJSON(t, rec)
	if got["content"] != svc.content {
		t.Errorf("content = %q, want %q", got["content"], svc.content)
	}

	s := svc.gotSettings
	if s.Topic != "Photosynthesis" || s.ClassName != "Grade 7" || s.Board != "ICSE" {
		t.Errorf("settings not parsed from form: %+v", s)
	}
	if s.Language != "Hindi" || s.TotalMarks != 40 {
		t.Errorf("language/marks not parsed: %+v", s)
	}
	if s.MCQCount != 8 || s.ShortCount != 4 || s.LongCount != 2 {
		t.Errorf("question counts not parsed: %+v", s)
	}
	// duration_minutes was absent, so the default applies.
	if s.DurationMinutes != 180 {
		t.Errorf("DurationMinutes = %d, want default 180", s.DurationMinutes)
	}

	if len(svc.gotImages) != 2 {
		t.Fatalf("service received %d images, want 2", len(svc.gotImages))
	}
	first := svc.gotImages[0]
	if first.name != "page1.jpg" || first.mimeType != "image/jpeg" || first.data != "jpeg-bytes" {
		t.Errorf("first image = %+v", first)
	}
	if svc.gotImages[1].mimeType != "image/png" {
		t.Errorf("second image mime = %q, want image/png", svc.gotImages[1].mimeType)
	}
}

func TestGenerateRequiresImages(t *testing.T) {
	svc := &fakeService{content: "should not be called"}
	r, _ := newTestRouter(t, svc, model.AppConfig{Lang: "en"})

	body, contentType := multipartBody(t, map[string]string{"topic": "Algebra"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(svc.gotImages) != 0 {
		t.Error("service was called despite missing images")
	}
}

func TestGenerateUpstreamFailure(t *testing.T) {
	svc := &fakeService{err: errors.New("Failed to analyze images. Please try again.")}
	r, _ := newTestRouter(t, svc, model.AppConfig{Lang: "en"})

	body, contentType := multipartBody(t, nil, []testImage{
		{name: "p.jpg", mimeType: "image/jpeg", data: "x"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	got := decodeJSON(t, rec)
	if got["error"] != "Failed to analyze images. Please try again." {
		t.Errorf("error = %q, want the analysis failure message verbatim", got["error"])
	}
}

// blockingService stalls the first Generate call until released, so a test
// can overlap a second request with it.
type blockingService struct {
	startedOnce sync.Once
	started     chan struct{}
	release     chan struct{}
}

func (b *blockingService) Generate(_ context.Context, _ model.ExamSettings, _ []model.UploadedImage) (model.GeneratedExam, error) {
	b.startedOnce.Do(func() { close(b.started) })
	<-b.release
	return model.GeneratedExam{Content: "paper"}, nil
}

func TestGenerateOverlapReturnsConflict(t *testing.T) {
	svc := &blockingService{started: make(chan struct{}), release: make(chan struct{})}
	r, _ := newTestRouter(t, svc, model.AppConfig{Lang: "en"})

	// A browser reuses its IP but not its source port across connections,
	// so the two requests carry different ports on purpose.
	newReq := func(port string) *http.Request {
		body, contentType := multipartBody(t, nil, []testImage{{name: "p.jpg", mimeType: "image/jpeg", data: "x"}})
		req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
		req.Header.Set("Content-Type", contentType)
		req.RemoteAddr = "10.1.2.3:" + port
		return req
	}

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, newReq("40001"))
		firstDone <- rec
	}()
	<-svc.started

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, newReq("40002"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping request status = %d, want 409", rec.Code)
	}

	close(svc.release)
	first := <-firstDone
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, body = %s", first.Code, first.Body.String())
	}

	// Once the flight finished the same client may generate again.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, newReq("40003"))
	if rec.Code != http.StatusOK {
		t.Fatalf("follow-up request status = %d, want 200", rec.Code)
	}
}

func TestFlightGuard(t *testing.T) {
	var g flightGuard

	if !g.tryAcquire("a") {
		t.Fatal("first acquire for key a failed")
	}
	if g.tryAcquire("a") {
		t.Error("second acquire for key a succeeded while in flight")
	}
	if !g.tryAcquire("b") {
		t.Error("acquire for a different key was blocked")
	}
	g.release("a")
	if !g.tryAcquire("a") {
		t.Error("acquire after release failed")
	}
}

func TestLabels(t *testing.T) {
	r, _ := newTestRouter(t, &fakeService{}, model.AppConfig{Lang: "en"})

	req := httptest.NewRequest(http.MethodGet, "/api/labels", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeJSON(t, rec)
	if got["AppTitle"] != "Exam Paper Generator" {
		t.Errorf("AppTitle = %q", got["AppTitle"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/labels?lang=hi", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	got = decodeJSON(t, rec)
	if got["AppTitle"] != "परीक्षा पत्र जनरेटर" {
		t.Errorf("Hindi AppTitle = %q", got["AppTitle"])
	}
}

func TestHistoryEndpoint(t *testing.T) {
	r, st := newTestRouter(t, &fakeService{}, model.AppConfig{Lang: "en", HistoryLimit: 10})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations", nil))
	got := decodeJSON(t, rec)
	if list, ok := got["generations"].([]any); !ok || len(list) != 0 {
		t.Errorf("empty store should return an empty list, got %v", got["generations"])
	}

	rec2 := model.GenerationRecord{ID: "g1", Settings: model.DefaultSettings(), ImageCount: 3, Status: model.GenerationDone}
	if err := st.CreateGeneration(rec2); err != nil {
		t.Fatalf("seed generation: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/generations", nil))
	got = decodeJSON(t, w)
	list, _ := got["generations"].([]any)
	if len(list) != 1 {
		t.Fatalf("history length = %d, want 1", len(list))
	}
}

func TestAuthGatesAPI(t *testing.T) {
	svc := &fakeService{content: "paper"}
	r, st := newTestRouter(t, svc, model.AppConfig{Lang: "en", AuthRequired: true})

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := st.CreateUser(model.User{Username: "teacher", DisplayName: "Teacher", PasswordHash: string(hash), Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	// Without a session the API is closed.
	body, contentType := multipartBody(t, nil, []testImage{{name: "p.jpg", mimeType: "image/jpeg", data: "x"}})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated generate status = %d, want 401", rec.Code)
	}

	// Wrong password is rejected.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, loginRequest("teacher", "wrong"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", rec.Code)
	}

	// Valid login issues a session cookie that opens the API.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, loginRequest("teacher", "s3cret"))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("login set no cookie")
	}

	body, contentType = multipartBody(t, nil, []testImage{{name: "p.jpg", mimeType: "image/jpeg", data: "x"}})
	req = httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", contentType)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated generate status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestErrorsFollowRequestLocale(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h, err := New(st, &fakeService{content: "paper"}, model.AppConfig{Lang: "hi", AuthRequired: true})
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("hi"))
	h.Routes(r)

	body, contentType := multipartBody(t, nil, []testImage{{name: "p.jpg", mimeType: "image/jpeg", data: "x"}})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	got := decodeJSON(t, rec)
	if got["error"] != "साइन इन आवश्यक है।" {
		t.Errorf("unauthorized error = %q, want the Hindi message", got["error"])
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, loginRequest("ghost", "nope"))
	got = decodeJSON(t, rec)
	if got["error"] != "गलत उपयोगकर्ता नाम या पासवर्ड।" {
		t.Errorf("login error = %q, want the Hindi message", got["error"])
	}
}

func loginRequest(username, password string) *http.Request {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
