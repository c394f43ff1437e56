// Package service implements the download gateway: metadata lookups,
// single-shot downloads and the download directory sweep.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vidgate/internal/config"
	"vidgate/internal/consts"
	"vidgate/internal/downloader"
	"vidgate/internal/entity"
	"vidgate/internal/errs"
	"vidgate/internal/observability"
	"vidgate/internal/storage"
	"vidgate/pkg/filename"
	"vidgate/pkg/urls"
)

// Download outcomes reported to metrics.
const (
	statusOK            = "ok"
	statusResolveFailed = "resolve_failed"
	statusInvalidFormat = "invalid_format"
	statusFetchFailed   = "fetch_failed"
	statusNotFound      = "not_found"
	statusError         = "error"
)

// Gateway is the download gateway.
type Gateway interface {
	// Info resolves metadata for url and returns its formats best first.
	Info(ctx context.Context, url string) (*entity.Metadata, error)
	// Download fetches the media and returns it opened for streaming.
	// The caller must Close the result.
	Download(ctx context.Context, req DownloadRequest) (*Download, error)
	// Cleanup deletes everything in the download directory.
	Cleanup(ctx context.Context) (int, error)
}

// DownloadRequest is a validated download instruction.
type DownloadRequest struct {
	URL       string
	Format    string
	AudioOnly bool
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (r DownloadRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", r.URL),
		slog.String("format", r.Format),
		slog.Bool("audio_only", r.AudioOnly),
	)
}

// Download is a produced file ready to be streamed.
type Download struct {
	File        *os.File
	Name        string
	ContentType string
	Size        int64

	ws *storage.Workspace
}

// Close closes the file and removes its workspace.
func (d *Download) Close(ctx context.Context) error {
	var closeErr error
	if d.File != nil {
		closeErr = d.File.Close()
	}

	return errors.Join(closeErr, d.ws.Release(ctx))
}

type gateway struct {
	log     *slog.Logger
	cfg     *config.Config
	engine  downloader.Engine
	storer  storage.Storer
	metrics *observability.Metrics
}

var _ Gateway = (*gateway)(nil)

// New creates a new gateway.
func New(log *slog.Logger, cfg *config.Config, engine downloader.Engine, storer storage.Storer,
	metrics *observability.Metrics,
) Gateway {
	return &gateway{
		log:     log.With(slog.String("package", "service")),
		cfg:     cfg,
		engine:  engine,
		storer:  storer,
		metrics: metrics,
	}
}

func (svc *gateway) Info(ctx context.Context, url string) (*entity.Metadata, error) {
	if svc.cfg.HTTP.InfoTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, svc.cfg.HTTP.InfoTimeout)
		defer cancel()
	}

	meta, err := svc.resolve(ctx, url)
	if err != nil {
		svc.metrics.RecordInfo(statusResolveFailed)

		return nil, err
	}

	SortFormats(meta.Formats)

	svc.metrics.RecordInfo(statusOK)
	svc.log.InfoContext(ctx, "info resolved", slog.String("url", url), "metadata", meta)

	return meta, nil
}

func (svc *gateway) Download(ctx context.Context, req DownloadRequest) (dl *Download, err error) {
	log := svc.log.With(slog.String("func", "Download"), "request", req)

	if svc.cfg.HTTP.DownloadTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, svc.cfg.HTTP.DownloadTimeout)
		defer cancel()
	}

	mode := entity.PostProcessVideo
	if svc.isAudioOnly(req) {
		mode = entity.PostProcessAudio
	}

	defer func() {
		svc.metrics.RecordDownload(mode.String(), outcome(err))
	}()

	// metadata is always fresh: formats may differ from what Info returned
	meta, err := svc.resolve(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	fetchReq, err := Plan(svc.cfg.Media, req, meta)
	if err != nil {
		log.InfoContext(ctx, "format rejected", slog.Any("error", err))

		return nil, err
	}

	ws, err := svc.storer.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire workspace: %w", err)
	}

	defer func() {
		if err != nil {
			_ = ws.Release(context.WithoutCancel(ctx))
		}
	}()

	base := filename.CleanOr(meta.Title, consts.FallbackFilename)
	fetchReq.OutputTemplate = ws.OutputTemplate(base)

	stopTimer := svc.metrics.DownloadTimer()
	echoed, err := svc.engine.Fetch(ctx, fetchReq)
	stopTimer()

	if err != nil {
		if !errors.Is(err, errs.ErrDownloadFailed) {
			err = fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
		}

		return nil, err
	}

	path, err := ws.Locate(base, echoed)
	if err != nil {
		return nil, fmt.Errorf("locate download: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open download: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()

		return nil, fmt.Errorf("stat download: %w", err)
	}

	name := filepath.Base(path)

	log.InfoContext(ctx, "download ready", slog.String("file", name), slog.Int64("size", info.Size()))

	return &Download{
		File:        file,
		Name:        name,
		ContentType: ContentType(filepath.Ext(name)),
		Size:        info.Size(),
		ws:          ws,
	}, nil
}

func (svc *gateway) Cleanup(ctx context.Context) (int, error) {
	removed, err := svc.storer.Sweep(ctx)
	if err != nil {
		return removed, fmt.Errorf("sweep download dir: %w", err)
	}

	return removed, nil
}

func (svc *gateway) resolve(ctx context.Context, url string) (*entity.Metadata, error) {
	if !urls.IsURLValid(url) {
		return nil, errs.ErrInvalidURL
	}

	meta, err := svc.engine.Resolve(ctx, url)
	if err != nil {
		if !errors.Is(err, errs.ErrResolveFailed) {
			err = fmt.Errorf("%w: %w", errs.ErrResolveFailed, err)
		}

		return nil, err
	}

	if meta == nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrResolveFailed, errs.ErrMetadataNil)
	}

	return meta, nil
}

func (svc *gateway) isAudioOnly(req DownloadRequest) bool {
	return req.AudioOnly || svc.cfg.Media.IsAudioSentinel(req.Format)
}

// Plan turns a download request into an engine instruction using freshly
// resolved metadata. A plain format identifier must exist in meta; an
// identifier naming a video-only format is widened with the best audio track.
// Keywords and selector expressions pass through untouched.
func Plan(media config.Media, req DownloadRequest, meta *entity.Metadata) (entity.FetchRequest, error) {
	fetchReq := entity.FetchRequest{
		URL:            req.URL,
		AudioCodec:     media.AudioCodec,
		AudioQuality:   media.AudioQuality,
		VideoContainer: media.VideoContainer,
	}

	if req.AudioOnly || media.IsAudioSentinel(req.Format) {
		fetchReq.Mode = entity.PostProcessAudio
		fetchReq.Selector = consts.SelectorBestAudio

		return fetchReq, nil
	}

	fetchReq.Mode = entity.PostProcessVideo

	selector := strings.TrimSpace(req.Format)

	switch {
	case selector == "":
		fetchReq.Selector = media.DefaultFormat
	case IsSelectorExpression(selector):
		fetchReq.Selector = selector
	default:
		format, ok := meta.FindFormat(selector)
		if !ok {
			return entity.FetchRequest{}, fmt.Errorf("%w: %q", errs.ErrInvalidFormat, selector)
		}

		fetchReq.Selector = format.FormatID
		if !format.HasAudio() {
			fetchReq.Selector += consts.SelectorWithBestAudioSuffix
		}
	}

	return fetchReq, nil
}

var selectorKeywords = map[string]struct{}{
	"best": {}, "worst": {},
	"bestvideo": {}, "worstvideo": {},
	"bestaudio": {}, "worstaudio": {},
	"b": {}, "w": {}, "bv": {}, "wv": {}, "ba": {}, "wa": {},
}

// IsSelectorExpression reports whether format is a quality keyword or a
// selector expression rather than a single format identifier.
func IsSelectorExpression(format string) bool {
	if _, ok := selectorKeywords[format]; ok {
		return true
	}

	return strings.ContainsAny(format, "+/[]()*,")
}

func outcome(err error) string {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, errs.ErrInvalidFormat):
		return statusInvalidFormat
	case errors.Is(err, errs.ErrResolveFailed), errors.Is(err, errs.ErrInvalidURL):
		return statusResolveFailed
	case errors.Is(err, errs.ErrDownloadFailed):
		return statusFetchFailed
	case errors.Is(err, errs.ErrFileNotFound):
		return statusNotFound
	default:
		return statusError
	}
}
