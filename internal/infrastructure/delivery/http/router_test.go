package httprouter_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"vidgate/internal/config"
	"vidgate/internal/downloader"
	"vidgate/internal/entity"
	httprouter "vidgate/internal/infrastructure/delivery/http"
	"vidgate/internal/infrastructure/delivery/http/response"
	"vidgate/internal/observability"
	"vidgate/internal/service"
	"vidgate/internal/storage"
	"vidgate/pkg/ptr"

	"github.com/prometheus/client_golang/prometheus"
)

const testURL = "https://example.com/watch?v=abc"

type readiness struct{ err error }

func (r readiness) Ready() error { return r.err }

type testServer struct {
	srv     *httptest.Server
	handler http.Handler
	engine  *downloader.Mock
	dir     string
}

func newTestServer(t *testing.T, httpCfg config.HTTP, ready httprouter.ReadinessChecker) *testServer {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := filepath.Join(t.TempDir(), "downloads")

	if httpCfg.CORSOrigins == nil {
		httpCfg.CORSOrigins = []string{"*"}
	}

	cfg := &config.Config{
		HTTP: httpCfg,
		Dir:  config.Dir{Downloads: dir},
		Media: config.Media{
			DefaultFormat:  "best",
			AudioSentinels: []string{"audio", "251"},
			AudioCodec:     "mp3",
			AudioQuality:   "192K",
			VideoContainer: "mp4",
		},
	}

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg, reg)

	storer, err := storage.New(t.Context(), log, cfg, metrics)
	if err != nil {
		t.Fatalf("storage.New() failed: %v", err)
	}

	engine := downloader.NewMock(log, downloader.DefaultMockMetadata())
	svc := service.New(log, cfg, engine, storer, metrics)

	handler := httprouter.New(log, cfg, svc, metrics, ready)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, handler: handler, engine: engine, dir: dir}
}

func (ts *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(ts.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}

	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) response.Response {
	t.Helper()

	var env response.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	return env
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()

	list, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}

	return len(list)
}

func TestVideoInfo(t *testing.T) {
	ts := newTestServer(t, config.HTTP{}, nil)
	ts.engine.SetMetadata(testURL, &entity.Metadata{
		Title:     "Clip",
		Duration:  ptr.Of(12.5),
		Thumbnail: "https://example.com/t.jpg",
		Formats: []entity.Format{
			{FormatID: "1", Ext: "mp4", Resolution: "360p"},
			{FormatID: "2", Ext: "mp4", Resolution: "720p"},
			{FormatID: "3", Ext: "webm", Resolution: "audio only"},
		},
	})

	resp := ts.post(t, "/api/video-info", `{"url":"`+testURL+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var got entity.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Title != "Clip" || got.Duration == nil || *got.Duration != 12.5 || got.Thumbnail != "https://example.com/t.jpg" {
		t.Errorf("unexpected metadata: %+v", got)
	}

	want := []string{"720p", "360p", "audio only"}
	for i, f := range got.Formats {
		if f.Resolution != want[i] {
			t.Fatalf("got order %v, want %v", got.Formats, want)
		}
	}

	if got.Formats[0].Filesize != nil {
		t.Errorf("unknown filesize must be null, got %d", *got.Formats[0].Filesize)
	}
}

func TestVideoInfoUnknownDuration(t *testing.T) {
	ts := newTestServer(t, config.HTTP{}, nil)
	ts.engine.SetMetadata(testURL, &entity.Metadata{Title: "Live", Formats: []entity.Format{}})

	resp := ts.post(t, "/api/video-info", `{"url":"`+testURL+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	duration, ok := got["duration"]
	if !ok || duration != nil {
		t.Errorf("got duration %v (present %v), want null", duration, ok)
	}
}

func TestVideoInfoErrors(t *testing.T) {
	ts := newTestServer(t, config.HTTP{}, nil)
	ts.engine.SetMetadata("https://example.com/unsupported", nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "malformed body", body: `{"url":`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "missing url", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "invalid url field"},
		{name: "relative url", body: `{"url":"watch?v=1"}`, wantStatus: http.StatusBadRequest, wantError: "invalid url field"},
		{
			name:       "unresolvable url",
			body:       `{"url":"https://example.com/unsupported"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "ERROR: Unsupported URL: https://example.com/unsupported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.post(t, "/api/video-info", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("got status %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			if env := decodeEnvelope(t, resp); env.Error != tt.wantError {
				t.Errorf("got error %q, want %q", env.Error, tt.wantError)
			}
		})
	}
}

func TestDownloadAudioOnly(t *testing.T) {
	ts := newTestServer(t, config.HTTP{}, nil)
	ts.engine.SetContent([]byte("ID3 fake mp3"))

	// recorder keeps the handler synchronous so the purge is observable right after
	req := httptest.NewRequest(http.MethodPost, "/api/download",
		strings.NewReader(`{"url":"`+testURL+`","audio_only":true}`))
	rec := httptest.NewRecorder()

	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}

	if body := rec.Body.String(); body != "ID3 fake mp3" {
		t.Errorf("got body %q", body)
	}

	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("got content type %q, want audio/mpeg", got)
	}

	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="Mock Video.mp3"` {
		t.Errorf("got content disposition %q", got)
	}

	if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(rec.Body.Len()) {
		t.Errorf("got content length %q, want %d", got, rec.Body.Len())
	}

	if n := dirEntries(t, ts.dir); n != 0 {
		t.Errorf("expected download dir to be empty after streaming, got %d entries", n)
	}
}

// brokenWriter accepts budget bytes and then fails like a dropped connection.
type brokenWriter struct {
	*httptest.ResponseRecorder
	budget int
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if len(p) > w.budget {
		n, _ := w.ResponseRecorder.Write(p[:w.budget])
		w.budget = 0

		return n, errors.New("connection reset by peer")
	}

	w.budget -= len(p)

	return w.ResponseRecorder.Write(p)
}

func TestDownloadInterruptedStreamReleasesWorkspace(t *testing.T) {
	ts := newTestServer(t, config.HTTP{}, nil)
	ts.engine.SetContent(bytes.Repeat([]byte("x"), 64<<10))

	req := httptest.NewRequest(http.MethodPost, "/api/download", strings.NewReader(`{"url":"`+testURL+`"}`))
	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder(), budget: 1024}

	ts.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}

	if w.Body.Len() != 1024 {
		t.Errorf("got %d body bytes, want 1024", w.Body.Len())
	}

	if n := dirEntries(t, ts.dir); n != 0 {
		t.Errorf("expected download dir to be empty after a broken stream, got %d entries", n)
	}
}

func TestDownloadErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		fetchErr    error
		noOutput    bool
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "unknown format",
			body:        `{"url":"` + testURL + `","format":"999"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid format selected",
		},
		{
			name:        "engine failure",
			body:        `{"url":"` + testURL + `"}`,
			fetchErr:    errors.New("ERROR: HTTP Error 403: Forbidden"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Download failed",
		},
		{
			name:        "no output file",
			body:        `{"url":"` + testURL + `"}`,
			noOutput:    true,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "file not found",
		},
		{
			name:        "invalid url",
			body:        `{"url":"ftp://example.com/x"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "unprocessable entity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, config.HTTP{}, nil)
			ts.engine.SetFetchErr(tt.fetchErr)
			ts.engine.SetNoOutput(tt.noOutput)

			resp := ts.post(t, "/api/download", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("got status %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			if env := decodeEnvelope(t, resp); env.Message != tt.wantMessage {
				t.Errorf("got message %q, want %q", env.Message, tt.wantMessage)
			}

			if n := dirEntries(t, ts.dir); n != 0 {
				t.Errorf("expected no leftovers, got %d entries", n)
			}
		})
	}
}

func TestCleanup(t *testing.T) {
	ts := newTestServer(t, config.HTTP{}, nil)

	for _, name := range []string{"one.mp4", "two.mp3", "three.webm"} {
		if err := os.WriteFile(filepath.Join(ts.dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	resp := ts.post(t, "/api/cleanup", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	if env := decodeEnvelope(t, resp); env.Message != "All downloads cleaned up successfully" {
		t.Errorf("got message %q", env.Message)
	}

	if n := dirEntries(t, ts.dir); n != 0 {
		t.Errorf("expected empty dir, got %d entries", n)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		ready      httprouter.ReadinessChecker
		wantStatus int
	}{
		{name: "no checker", ready: nil, wantStatus: http.StatusOK},
		{name: "ready", ready: readiness{}, wantStatus: http.StatusOK},
		{name: "not ready", ready: readiness{err: errors.New("binary not found")}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, config.HTTP{}, tt.ready)

			resp, err := http.Get(ts.srv.URL + "/v1/readyz")
			if err != nil {
				t.Fatalf("GET readyz: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("got status %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, config.HTTP{}, nil)

	ts.post(t, "/api/cleanup", "")

	resp, err := http.Get(ts.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `vidgate_http_requests_total{method="POST",path="POST /api/cleanup",status="200"} 1`) {
		t.Errorf("metrics output misses cleanup request:\n%s", body)
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	allowList := []string{"http://localhost:5173", "http://localhost:3000"}

	tests := []struct {
		name        string
		origins     []string
		origin      string
		wantAllowed bool
	}{
		{name: "listed origin", origins: allowList, origin: "http://localhost:5173", wantAllowed: true},
		{name: "unlisted origin", origins: allowList, origin: "https://evil.example", wantAllowed: false},
		{name: "wildcard echoes origin", origins: []string{"*"}, origin: "https://app.example", wantAllowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, config.HTTP{CORSOrigins: tt.origins}, nil)

			req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/api/download", nil)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}

			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("preflight: %v", err)
			}
			defer resp.Body.Close()

			if resp.Header.Get("X-Request-ID") == "" {
				t.Error("response misses X-Request-ID")
			}

			gotOrigin := resp.Header.Get("Access-Control-Allow-Origin")
			if !tt.wantAllowed {
				if gotOrigin != "" {
					t.Errorf("got Access-Control-Allow-Origin %q for an unlisted origin", gotOrigin)
				}

				return
			}

			if gotOrigin != tt.origin {
				t.Errorf("got Access-Control-Allow-Origin %q, want %q", gotOrigin, tt.origin)
			}

			if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
				t.Errorf("got Access-Control-Allow-Credentials %q, want true", got)
			}
		})
	}
}

func TestCORSWildcardActualRequest(t *testing.T) {
	ts := newTestServer(t, config.HTTP{CORSOrigins: []string{"*"}}, nil)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/cleanup", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	req.Header.Set("Origin", "https://app.example")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST cleanup: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("got Access-Control-Allow-Origin %q, want the request origin", got)
	}

	if got := resp.Header.Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Content-Disposition") {
		t.Errorf("got Access-Control-Expose-Headers %q, want Content-Disposition exposed", got)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, config.HTTP{RateLimit: 0.001, RateBurst: 1}, nil)

	if resp := ts.post(t, "/api/cleanup", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("first request: got status %d, want 200", resp.StatusCode)
	}

	if resp := ts.post(t, "/api/cleanup", ""); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request: got status %d, want 429", resp.StatusCode)
	}

	// health checks are not rate limited
	resp, err := http.Get(ts.srv.URL + "/v1/readyz")
	if err != nil {
		t.Fatalf("GET readyz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want 200", resp.StatusCode)
	}
}
