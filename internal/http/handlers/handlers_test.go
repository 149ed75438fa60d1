package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/credits"
	"mediagen/internal/domain"
	"mediagen/internal/gallery"
	"mediagen/internal/generation"
	httpapi "mediagen/internal/http"
	"mediagen/internal/http/handlers"
	"mediagen/internal/infra"
	"mediagen/internal/middleware"
	"mediagen/internal/notify"
	"mediagen/internal/poller"
	"mediagen/internal/providers"
	"mediagen/internal/providers/synthetic"
	"mediagen/internal/session"
	"mediagen/internal/storage"
)

const (
	testSecret = "test-secret"
	testIssuer = "mediagen-test"
	testUser   = "user-42"
)

type harness struct {
	handler  http.Handler
	sessions *session.Registry
	credits  *credits.MemoryService
	blobs    *storage.FileStore
	denied   int
}

func newHarness(t *testing.T, balance int) *harness {
	t.Helper()
	logger := infra.NopLogger()
	blobs, err := storage.NewFileStore(t.TempDir(), "/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	repo := gallery.NewMemoryStore(nil)
	service := credits.NewMemoryService(map[string]int{testUser: balance})
	ledger := credits.NewLedger(service, logger)
	prices := credits.DefaultPriceTable()
	syn := synthetic.New(synthetic.Options{VideoDuration: 200 * time.Millisecond})
	hub := notify.NewHub(logger)

	deps := generation.Deps{
		Ledger:  ledger,
		Pricing: prices,
		Submitter: generation.NewSubmitter(map[domain.Kind]providers.Provider{
			domain.KindImage:      syn,
			domain.KindVideo:      syn,
			domain.KindTranscript: syn,
		}),
		Persister: gallery.NewPersister(repo, gallery.PersisterOptions{Blobs: blobs, Logger: logger}),
		Sink:      hub,
		Poll:      poller.Options{Interval: 10 * time.Millisecond, Timeout: 2 * time.Second},
		Logger:    logger,
	}
	ctx, cancel := context.WithCancel(context.Background())
	sessions := session.NewRegistry(ctx, deps, time.Minute, logger)
	t.Cleanup(func() {
		sessions.Close()
		cancel()
	})

	h := &harness{sessions: sessions, credits: service, blobs: blobs}
	app := &handlers.App{
		Sessions: sessions,
		Gallery:  gallery.NewService(repo, blobs, logger),
		Credits:  ledger,
		Prices:   prices,
		Hub:      hub,
		Auth:     middleware.ContextAuth{},
		Logger:   logger,
	}
	h.handler = httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:     testSecret,
		JWTIssuer:     testIssuer,
		DefaultLocale: "en",
		BlobPrefix:    "/static",
		Denied:        func(*http.Request) { h.denied++ },
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.doAs(t, testUser, method, path, body)
}

func (h *harness) doAs(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	token, err := middleware.SignToken(testSecret, testIssuer, userID, "en", time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	h := newHarness(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/v1/generations/current", nil)
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if h.denied != 1 {
		t.Fatalf("denied callback calls = %d, want 1", h.denied)
	}
}

func TestDeniedWritesLogOnly(t *testing.T) {
	var buf bytes.Buffer
	app := &handlers.App{Logger: zerolog.New(&buf)}
	app.Denied(httptest.NewRequest(http.MethodGet, "/v1/gallery/", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line: %v (%q)", err, buf.String())
	}
	if line["notice"] != "unauthorized" || line["level"] != "warn" || line["user_id"] != "" {
		t.Fatalf("log line = %v", line)
	}
}

func TestSubmitImageCompletesAndLandsInGallery(t *testing.T) {
	h := newHarness(t, 25)

	rr := h.do(t, http.MethodPost, "/v1/generations/", map[string]any{"kind": "image", "prompt": "a red fox"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body %s", rr.Code, rr.Body.String())
	}
	view := decode[generation.View](t, rr)
	if view.Status != domain.StatusGenerating {
		t.Fatalf("submit status = %q, want generating", view.Status)
	}
	if view.Cost != 10 {
		t.Fatalf("cost = %d, want 10", view.Cost)
	}

	h.sessions.Get(testUser).Wait()

	cur := decode[generation.View](t, h.do(t, http.MethodGet, "/v1/generations/current", nil))
	if cur.Status != domain.StatusCompleted || cur.Progress != 100 {
		t.Fatalf("current = %s/%d, want completed/100 (%s)", cur.Status, cur.Progress, cur.Error)
	}
	if bal, _ := h.credits.Balance(context.Background(), testUser); bal != 15 {
		t.Fatalf("balance = %d, want 15", bal)
	}

	list := decode[struct {
		Items []domain.GalleryRecord `json:"items"`
	}](t, h.do(t, http.MethodGet, "/v1/gallery/", nil))
	if len(list.Items) != 1 {
		t.Fatalf("gallery items = %d, want 1", len(list.Items))
	}
	rec := list.Items[0]
	if rec.Prompt != "a red fox" || rec.Kind != domain.KindImage {
		t.Fatalf("record = %+v", rec)
	}

	got := h.do(t, http.MethodGet, "/v1/gallery/"+rec.ID, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("get status = %d", got.Code)
	}

	export := h.do(t, http.MethodGet, "/v1/gallery/export", nil)
	if export.Code != http.StatusOK || export.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("export = %d %q", export.Code, export.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(export.Body.Bytes(), []byte("PK")) {
		t.Fatal("export body is not a zip archive")
	}

	if del := h.do(t, http.MethodDelete, "/v1/gallery/"+rec.ID, nil); del.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", del.Code)
	}
	if again := h.do(t, http.MethodGet, "/v1/gallery/"+rec.ID, nil); again.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", again.Code)
	}
}

func TestGalleryBlobsAreOwnerScoped(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	png := []byte("\x89PNG\r\n\x1a\nfake")
	if _, err := h.blobs.Write(ctx, "gallery/"+testUser+"/rec-1/original.png", png); err != nil {
		t.Fatalf("write own blob: %v", err)
	}
	if _, err := h.blobs.Write(ctx, "gallery/alice/rec-2/original.png", png); err != nil {
		t.Fatalf("write other blob: %v", err)
	}

	for _, path := range []string{"/static/gallery/", "/static/gallery/alice/", "/static/gallery/" + testUser + "/rec-1/original.png"} {
		rr := httptest.NewRecorder()
		h.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("anonymous GET %s = %d, want 401", path, rr.Code)
		}
	}

	own := h.do(t, http.MethodGet, "/static/gallery/"+testUser+"/rec-1/original.png", nil)
	if own.Code != http.StatusOK {
		t.Fatalf("owner GET = %d, body %s", own.Code, own.Body.String())
	}
	if ct := own.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q, want image/png", ct)
	}
	if !bytes.Equal(own.Body.Bytes(), png) {
		t.Fatalf("body = %q", own.Body.Bytes())
	}

	hidden := []string{
		"/static/gallery/",
		"/static/gallery/" + testUser + "/",
		"/static/gallery/" + testUser + "/rec-1",
		"/static/gallery/alice/rec-2/original.png",
		"/static/gallery/" + testUser + "/../alice/rec-2/original.png",
	}
	for _, path := range hidden {
		if rr := h.do(t, http.MethodGet, path, nil); rr.Code != http.StatusNotFound {
			t.Fatalf("GET %s = %d, want 404", path, rr.Code)
		}
	}
	if rr := h.doAs(t, "alice", http.MethodGet, "/static/gallery/alice/rec-2/original.png", nil); rr.Code != http.StatusOK {
		t.Fatalf("alice GET own blob = %d", rr.Code)
	}
}

func TestSubmitWithoutCreditsEndsInError(t *testing.T) {
	h := newHarness(t, 5)

	rr := h.do(t, http.MethodPost, "/v1/generations/", map[string]any{"kind": "video", "prompt": "waves"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rr.Code)
	}
	h.sessions.Get(testUser).Wait()

	cur := decode[generation.View](t, h.do(t, http.MethodGet, "/v1/generations/current", nil))
	if cur.Status != domain.StatusError || cur.ErrorCode != domain.CodeInsufficientCredits {
		t.Fatalf("current = %s/%s, want error/insufficient_credits", cur.Status, cur.ErrorCode)
	}
	if bal, _ := h.credits.Balance(context.Background(), testUser); bal != 5 {
		t.Fatalf("balance = %d, want 5", bal)
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, 100)
	cases := []struct {
		name string
		body any
	}{
		{"empty prompt", map[string]any{"kind": "image", "prompt": "  "}},
		{"unknown kind", map[string]any{"kind": "audio", "prompt": "x"}},
		{"bad aspect", map[string]any{"kind": "image", "prompt": "x", "aspect_ratio": "2:1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := h.do(t, http.MethodPost, "/v1/generations/", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if body := decode[errorResponse](t, rr); body.Error.Code != string(domain.CodeValidation) {
				t.Fatalf("code = %q", body.Error.Code)
			}
		})
	}
	if h.credits.Calls() != 0 {
		t.Fatalf("ledger calls = %d, want 0", h.credits.Calls())
	}
}

func TestCancelAndReset(t *testing.T) {
	h := newHarness(t, 100)

	if rr := h.do(t, http.MethodPost, "/v1/generations/current/cancel", nil); rr.Code != http.StatusConflict {
		t.Fatalf("cancel while idle = %d, want 409", rr.Code)
	}

	rr := h.do(t, http.MethodPost, "/v1/generations/", map[string]any{"kind": "video", "prompt": "slow clouds"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rr.Code)
	}
	cancelled := decode[generation.View](t, h.do(t, http.MethodPost, "/v1/generations/current/cancel", nil))
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}

	for i := 0; i < 2; i++ {
		reset := decode[generation.View](t, h.do(t, http.MethodPost, "/v1/generations/current/reset", nil))
		if reset.Status != domain.StatusIdle {
			t.Fatalf("reset %d status = %q, want idle", i, reset.Status)
		}
	}
}

func TestCreditsQuote(t *testing.T) {
	h := newHarness(t, 15)

	q := decode[struct {
		Cost       int    `json:"cost"`
		Bucket     string `json:"bucket"`
		Balance    int    `json:"balance"`
		Affordable bool   `json:"affordable"`
	}](t, h.do(t, http.MethodGet, "/v1/credits/quote?kind=image&width=1536&height=1536", nil))
	if q.Cost != 20 || q.Bucket != "hd" || q.Balance != 15 || q.Affordable {
		t.Fatalf("quote = %+v", q)
	}

	bal := decode[map[string]int](t, h.do(t, http.MethodGet, "/v1/credits/", nil))
	if bal["balance"] != 15 {
		t.Fatalf("balance = %v", bal)
	}
}

func TestEventsStreamStartsWithSnapshot(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	token, _ := middleware.SignToken(testSecret, testIssuer, testUser, "", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/v1/generations/events?access_token="+token, nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.handler.ServeHTTP(rr, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("event: snapshot")) {
		t.Fatalf("body = %q, want snapshot event", rr.Body.String())
	}
}
