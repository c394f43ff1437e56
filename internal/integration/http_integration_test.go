//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type apiResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}

	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestHTTPVideoInfo(t *testing.T) {
	fx := newFixture(t, "success", nil)
	srv := fx.server(t)

	resp := post(t, srv.URL+"/api/video-info", map[string]string{"url": "https://example.com/watch?v=vid-123"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var got struct {
		Title   string `json:"title"`
		Formats []struct {
			FormatID string `json:"format_id"`
		} `json:"formats"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Title != "Integration Clip" {
		t.Errorf("got title %q", got.Title)
	}

	// highest quality first, audio-only last
	var ids []string
	for _, f := range got.Formats {
		ids = append(ids, f.FormatID)
	}

	if strings.Join(ids, ",") != "22,18,251" {
		t.Errorf("got format order %v, want [22 18 251]", ids)
	}
}

func TestHTTPVideoInfoEngineError(t *testing.T) {
	fx := newFixture(t, "fail", nil)
	srv := fx.server(t)

	resp := post(t, srv.URL+"/api/video-info", map[string]string{"url": "https://example.com/nothing-here"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}

	var got apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !strings.HasPrefix(got.Error, "ERROR: [generic] Unsupported URL") {
		t.Errorf("got error %q, want the engine message", got.Error)
	}
}

func TestHTTPDownloadAudio(t *testing.T) {
	fx := newFixture(t, "success", nil)
	srv := fx.server(t)

	resp := post(t, srv.URL+"/api/download", map[string]any{
		"url":    "https://example.com/watch?v=vid-123",
		"format": "audio",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("got content type %q, want audio/mpeg", ct)
	}

	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="Integration Clip.mp3"`) {
		t.Errorf("got content disposition %q", cd)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	if string(body) != "fake media payload" {
		t.Errorf("got body %q", body)
	}

	// the workspace is released once the handler returns
	deadline := time.Now().Add(2 * time.Second)
	for dirEntries(t, fx.downloadsDir) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("workspace was not released after streaming")
		}

		time.Sleep(20 * time.Millisecond)
	}
}

func TestHTTPDownloadUnknownFormat(t *testing.T) {
	fx := newFixture(t, "success", nil)
	srv := fx.server(t)

	resp := post(t, srv.URL+"/api/download", map[string]any{
		"url":    "https://example.com/watch?v=vid-123",
		"format": "999",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}

	var got apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Message != "Invalid format selected" {
		t.Errorf("got message %q", got.Message)
	}
}

func TestHTTPReadyz(t *testing.T) {
	fx := newFixture(t, "success", nil)
	srv := fx.server(t)

	resp, err := http.Get(srv.URL + "/v1/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
}
