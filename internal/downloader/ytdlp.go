package downloader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"vidgate/internal/config"
	"vidgate/internal/consts"
	"vidgate/internal/entity"
	"vidgate/internal/errs"
	"vidgate/internal/observability"
	"vidgate/pkg/calc"
	"vidgate/pkg/ptr"
	"vidgate/pkg/urls"

	"github.com/lrstanley/go-ytdlp"
)

const (
	opResolve = "resolve"
	opFetch   = "fetch"

	// changing this may break ParseFilepath().
	defaultPrintAfterMove = "after_move:filepath"

	maxLineSize = 10 * 1024 * 1024 // 10 MiB scanner buffer
	bufSize     = 4096             // 4 KiB buffer size
)

// Binaries resolves executable paths of the engine toolchain.
type Binaries interface {
	Path(name string) string
}

// ProxyPool hands out proxies and receives feedback about them.
type ProxyPool interface {
	GetProxy(ctx context.Context) (string, error)
	MarkFailed(proxyURL string)
	MarkSuccess(proxyURL string)
	Count() int
}

// YTdlp drives the yt-dlp binary.
type YTdlp struct {
	log     *slog.Logger
	cfg     *config.Config
	bins    Binaries
	proxies ProxyPool
	metrics *observability.Metrics
}

// NewYTdlp creates a new yt-dlp engine. bins and proxies may be nil.
func NewYTdlp(log *slog.Logger, cfg *config.Config, bins Binaries, proxies ProxyPool,
	metrics *observability.Metrics,
) *YTdlp {
	if proxies != nil && proxies.Count() > 0 {
		log.Info("proxy pool attached", slog.Int("proxy_count", proxies.Count()))
	}

	return &YTdlp{
		log:     log.With(slog.String("package", "downloader"), slog.String("engine", consts.EngineYTdlp)),
		cfg:     cfg,
		bins:    bins,
		proxies: proxies,
		metrics: metrics,
	}
}

// Name returns the engine identifier.
func (d *YTdlp) Name() string {
	return consts.EngineYTdlp
}

// Resolve runs yt-dlp in simulate mode and parses the single JSON document it prints.
func (d *YTdlp) Resolve(ctx context.Context, url string) (*entity.Metadata, error) {
	log := d.log.With(slog.String("func", "Resolve"), slog.String("url", url))

	command, proxyURL := d.command(ctx)
	command = command.DumpSingleJSON().SkipDownload()

	res, err := command.Run(ctx, url)
	d.reportProxy(proxyURL, err)

	if err != nil {
		d.metrics.RecordEngineError(consts.EngineYTdlp, opResolve, classifyError(err))
		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", err), slog.Any("result", Result{res}))

		return nil, fmt.Errorf("%w: %s", errs.ErrResolveFailed, EngineMessage(res, err))
	}

	meta, err := ParseMetadata([]byte(res.Stdout))
	if err != nil {
		d.metrics.RecordEngineError(consts.EngineYTdlp, opResolve, "parse")

		return nil, fmt.Errorf("%w: %w", errs.ErrResolveFailed, err)
	}

	log.DebugContext(ctx, "resolved", "metadata", meta)

	return meta, nil
}

// Fetch downloads the selected streams into the output template and post-processes them.
func (d *YTdlp) Fetch(ctx context.Context, req entity.FetchRequest) (string, error) {
	log := d.log.With(slog.String("func", "Fetch"), "request", req)

	progressFn := func(prog ytdlp.ProgressUpdate) {
		log.DebugContext(ctx, "ytdlp progress", "progress_update", ProgressUpdate{&prog})
	}

	command, proxyURL := d.command(ctx)
	command = command.
		Format(req.Selector).
		Output(req.OutputTemplate).
		Print(defaultPrintAfterMove).
		ProgressFunc(defaultProgressFreq, progressFn)

	switch req.Mode {
	case entity.PostProcessAudio:
		command = command.
			ExtractAudio().
			AudioFormat(req.AudioCodec).
			AudioQuality(req.AudioQuality)
	default:
		command = command.
			MergeOutputFormat(req.VideoContainer).
			RecodeVideo(req.VideoContainer)
	}

	res, err := command.Run(ctx, req.URL)
	d.reportProxy(proxyURL, err)

	if err != nil {
		d.metrics.RecordEngineError(consts.EngineYTdlp, opFetch, classifyError(err))
		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", err), slog.Any("result", Result{res}))

		return "", fmt.Errorf("%w: %s", errs.ErrDownloadFailed, EngineMessage(res, err))
	}

	path := ParseFilepath(res.Stdout)

	log.InfoContext(ctx, "done", slog.String("filepath", path), "result", Result{res})

	return path, nil
}

// command builds the flags shared by every invocation and returns the proxy it picked, if any.
func (d *YTdlp) command(ctx context.Context) (*ytdlp.Command, string) {
	command := ytdlp.New().
		NoPlaylist().
		NoWarnings()

	if d.bins != nil {
		if bin := d.bins.Path(consts.BinYTdlp); bin != "" {
			command = command.SetExecutable(bin)
		}

		if bin := d.bins.Path(consts.BinFFmpeg); bin != "" {
			command = command.FFmpegLocation(filepath.Dir(bin))
		}
	}

	if d.cfg.Dir.Cache != "" {
		command = command.CacheDir(d.cfg.Dir.Cache)
	}

	if d.cfg.Dir.CookieFile != "" {
		command = command.Cookies(d.cfg.Dir.CookieFile)
	}

	if d.proxies == nil || d.proxies.Count() == 0 {
		return command, ""
	}

	proxyURL, err := d.proxies.GetProxy(ctx)
	if err != nil {
		d.log.WarnContext(ctx, "failed to get healthy proxy", slog.Any("error", err))

		return command, ""
	}

	d.log.DebugContext(ctx, "using proxy", slog.String("proxy", urls.Redact(proxyURL)))

	return command.Proxy(proxyURL), proxyURL
}

func (d *YTdlp) reportProxy(proxyURL string, err error) {
	if proxyURL == "" {
		return
	}

	if err != nil && classifyError(err) == "process" {
		d.proxies.MarkFailed(proxyURL)
		d.metrics.RecordProxyFailure(proxyURL)

		return
	}

	d.proxies.MarkSuccess(proxyURL)
}

// ParseMetadata converts the engine's single JSON document into Metadata.
func ParseMetadata(data []byte) (*entity.Metadata, error) {
	var info infoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode info json: %w", err)
	}

	meta := &entity.Metadata{
		Title:     info.Title,
		Duration:  info.Duration,
		Thumbnail: info.Thumbnail,
		Formats:   make([]entity.Format, 0, len(info.Formats)),
	}

	for _, f := range info.Formats {
		format := entity.Format{
			FormatID:   f.FormatID,
			Ext:        f.Ext,
			Resolution: ptr.DerefOr(f.Resolution, consts.ResolutionAudioOnly),
			FormatNote: f.FormatNote,
			ACodec:     ptr.Deref(f.ACodec),
			VCodec:     ptr.Deref(f.VCodec),
		}

		if f.Filesize != nil {
			if size, ok := calc.Bytes(*f.Filesize); ok {
				format.Filesize = ptr.Of(size)
			}
		}

		meta.Formats = append(meta.Formats, format)
	}

	return meta, nil
}

// ParseFilepath returns the last absolute path yt-dlp printed after moving the final file.
func ParseFilepath(stdout string) string {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, bufSize), maxLineSize)
	scanner.Split(splitLinesAny)

	var path string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "{") || strings.HasPrefix(line, "[") {
			continue
		}

		if filepath.IsAbs(line) {
			path = line
		}
	}

	return path
}

// splitLinesAny is bufio.ScanLines that also breaks on a bare \r,
// which yt-dlp uses to redraw progress lines.
func splitLinesAny(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// a \n may follow in the next read
			return 0, nil, nil
		}

		return advance, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}

// EngineMessage extracts the human-readable failure reason from a yt-dlp run.
// The last "ERROR:" line of stderr wins; otherwise the run error itself is used.
func EngineMessage(res *ytdlp.Result, err error) string {
	if res != nil {
		var msg string

		for line := range strings.Lines(res.Stderr) {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "ERROR:") {
				msg = line
			}
		}

		if msg != "" {
			return msg
		}
	}

	if err == nil {
		return "unknown error"
	}

	return err.Error()
}
