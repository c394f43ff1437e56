// Package storage manages the local download directory: per-request
// workspaces, the cleanup sweep and the orphan reaper.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"vidgate/internal/config"
	"vidgate/internal/errs"
	"vidgate/internal/observability"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm = 0o755
	// sweepConcurrency bounds parallel removals during a sweep.
	sweepConcurrency = 8
)

// suffixes of intermediate files the engine may leave next to the result.
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// Storer defines the interface for download directory operations.
type Storer interface {
	// Dir returns the absolute download directory.
	Dir() string
	// Acquire allocates a fresh workspace owned by a single request.
	Acquire(ctx context.Context) (*Workspace, error)
	// Sweep removes every entry of the download directory and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
	// ReapOrphans periodically removes workspaces older than the configured TTL.
	ReapOrphans(ctx context.Context)
}

type storage struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics
	dir     string
}

// New creates the download directory if needed and starts the orphan reaper.
func New(ctx context.Context, log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) (Storer, error) {
	dir := cfg.Dir.Downloads

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	stg := &storage{
		log:     log.With(slog.String("package", "storage")),
		cfg:     cfg,
		metrics: metrics,
		dir:     dir,
	}

	if cfg.Storage.ReapInterval > 0 {
		go stg.ReapOrphans(ctx)
	}

	return stg, nil
}

func (stg *storage) Dir() string {
	return stg.dir
}

func (stg *storage) Acquire(ctx context.Context) (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(stg.dir, id)

	if err := os.Mkdir(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	stg.metrics.WorkspaceAcquired()
	stg.log.DebugContext(ctx, "workspace acquired", slog.String("workspace", id))

	return &Workspace{
		ID:  id,
		Dir: dir,
		stg: stg,
	}, nil
}

func (stg *storage) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(stg.dir)
	if err != nil {
		return 0, fmt.Errorf("read download dir: %w", err)
	}

	var (
		mu      sync.Mutex
		removed int
		errList []error
	)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, entry := range entries {
		path := filepath.Join(stg.dir, entry.Name())

		g.Go(func() error {
			err := os.RemoveAll(path)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errList = append(errList, fmt.Errorf("remove %q: %w", entry.Name(), err))

				return nil
			}

			removed++

			return nil
		})
	}

	_ = g.Wait()

	stg.metrics.RecordCleanup("sweep", removed)
	stg.log.InfoContext(ctx, "download dir swept", slog.Int("removed", removed), slog.Int("failed", len(errList)))

	return removed, errors.Join(errList...)
}

// Workspace is a directory owned by exactly one request.
// Release must be called on every exit path; it is idempotent.
type Workspace struct {
	ID  string
	Dir string

	stg  *storage
	once sync.Once
	err  error
}

// OutputTemplate returns an engine output template placing base.<ext> in the workspace.
func (ws *Workspace) OutputTemplate(base string) string {
	return filepath.Join(ws.Dir, base+".%(ext)s")
}

// Locate returns the file the engine produced for base.
// An echoed path is trusted only if it lies inside the workspace and exists;
// otherwise the first "<base>.*" entry, in name order, that is not an intermediate file is used.
func (ws *Workspace) Locate(base, echoed string) (string, error) {
	if echoed != "" {
		path := filepath.Clean(echoed)
		if filepath.Dir(path) == ws.Dir && isRegular(path) {
			return path, nil
		}
	}

	// names are matched literally, the dir or the title may hold glob metacharacters
	entries, err := os.ReadDir(ws.Dir)
	if err != nil {
		return "", fmt.Errorf("read workspace: %w", err)
	}

	prefix := base + "."

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		match := filepath.Join(ws.Dir, entry.Name())
		if isPartial(match) || !isRegular(match) {
			continue
		}

		return match, nil
	}

	return "", fmt.Errorf("%w: %s.*", errs.ErrFileNotFound, base)
}

// Release removes the workspace and everything in it.
func (ws *Workspace) Release(ctx context.Context) error {
	ws.once.Do(func() {
		ws.err = os.RemoveAll(ws.Dir)
		ws.stg.metrics.WorkspaceReleased()

		if ws.err != nil {
			ws.stg.log.ErrorContext(ctx, "workspace release failed",
				slog.String("workspace", ws.ID), slog.Any("error", ws.err))

			return
		}

		ws.stg.log.DebugContext(ctx, "workspace released", slog.String("workspace", ws.ID))
	})

	return ws.err
}

func isPartial(path string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}

	return false
}

func isRegular(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
