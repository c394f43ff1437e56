//go:build integration

package integration_test

import (
	_ "embed"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"vidgate/internal/config"
	"vidgate/internal/consts"
	"vidgate/internal/downloader"
	httprouter "vidgate/internal/infrastructure/delivery/http"
	"vidgate/internal/observability"
	"vidgate/internal/service"
	"vidgate/internal/storage"
	"vidgate/internal/toolchain"

	"github.com/prometheus/client_golang/prometheus"
)

//go:embed testdata/fake-ytdlp.sh
var fakeYTdlpScript string

type fixture struct {
	cfg          *config.Config
	toolchain    *toolchain.Manager
	engine       *downloader.YTdlp
	storer       storage.Storer
	svc          service.Gateway
	downloadsDir string
}

func newFixture(t *testing.T, mode string, mutateCfg func(cfg *config.Config)) *fixture {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp is a shell script")
	}

	baseDir := t.TempDir()
	binsDir := filepath.Join(baseDir, "bins")
	downloadsDir := filepath.Join(baseDir, "downloads")

	if err := os.MkdirAll(binsDir, 0o755); err != nil {
		t.Fatalf("mkdir bins dir: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config new: %v", err)
	}

	cfg.Toolchain.BinsDir = binsDir
	cfg.Toolchain.UseSystemBinaries = false
	cfg.Dir.Downloads = downloadsDir
	cfg.Dir.Cache = filepath.Join(baseDir, "cache")
	cfg.Dir.CookieFile = ""
	cfg.Proxy.Proxies = nil
	cfg.Storage.ReapInterval = 0

	if mutateCfg != nil {
		mutateCfg(cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tc := toolchain.New(log, cfg)

	// existing binaries are picked up without a network fetch
	writeBinary(t, tc.BinaryPath(consts.BinYTdlp), fakeYTdlpScript)
	writeBinary(t, tc.BinaryPath(consts.BinFFmpeg), "#!/bin/sh\nexit 0\n")
	writeBinary(t, tc.BinaryPath(consts.BinFFprobe), "#!/bin/sh\nexit 0\n")

	if err := tc.Start(t.Context()); err != nil {
		t.Fatalf("toolchain start: %v", err)
	}

	t.Setenv("VIDGATE_FAKE_MODE", mode)

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg, reg)

	storer, err := storage.New(t.Context(), log, cfg, metrics)
	if err != nil {
		t.Fatalf("storage new: %v", err)
	}

	engine := downloader.NewYTdlp(log, cfg, tc, nil, metrics)

	return &fixture{
		cfg:          cfg,
		toolchain:    tc,
		engine:       engine,
		storer:       storer,
		svc:          service.New(log, cfg, engine, storer, metrics),
		downloadsDir: downloadsDir,
	}
}

func (fx *fixture) server(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := httprouter.New(log, fx.cfg, fx.svc, nil, fx.toolchain)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv
}

func writeBinary(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}

	return len(entries)
}
