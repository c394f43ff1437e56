package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"vidgate/internal/consts"
	"vidgate/internal/entity"
	"vidgate/internal/errs"
	"vidgate/pkg/ptr"
)

const mockFilePerm = 0o600

// Mock is an in-memory engine. It serves canned metadata and writes a small
// file where the real engine would put the downloaded media.
type Mock struct {
	log *slog.Logger

	mu       sync.Mutex
	metadata map[string]*entity.Metadata
	content  []byte
	fetchErr error
	noOutput bool
	resolves int
	fetches  []entity.FetchRequest
}

// NewMock creates a mock engine serving meta for every URL until SetMetadata overrides it.
func NewMock(log *slog.Logger, meta *entity.Metadata) *Mock {
	m := &Mock{
		log:      log.With(slog.String("package", "downloader"), slog.String("engine", consts.EngineMock)),
		metadata: make(map[string]*entity.Metadata),
		content:  []byte("mock media"),
	}

	if meta != nil {
		m.metadata[""] = meta
	}

	return m
}

// DefaultMockMetadata returns a small format list with a progressive, a video-only and an audio-only format.
func DefaultMockMetadata() *entity.Metadata {
	size := int64(1 << 20)

	return &entity.Metadata{
		Title:     "Mock Video",
		Duration:  ptr.Of(42.0),
		Thumbnail: "https://example.com/thumb.jpg",
		Formats: []entity.Format{
			{FormatID: "18", Ext: "mp4", Resolution: "640x360", Filesize: &size, FormatNote: "360p", ACodec: "mp4a.40.2", VCodec: "avc1.42001E"},
			{FormatID: "137", Ext: "mp4", Resolution: "1920x1080", FormatNote: "1080p", ACodec: consts.CodecNone, VCodec: "avc1.640028"},
			{FormatID: "251", Ext: "webm", Resolution: consts.ResolutionAudioOnly, FormatNote: "medium", ACodec: "opus", VCodec: consts.CodecNone},
		},
	}
}

// SetMetadata makes Resolve return meta for url. A nil meta makes url unresolvable.
func (m *Mock) SetMetadata(url string, meta *entity.Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metadata[url] = meta
}

// SetContent sets the bytes written by Fetch.
func (m *Mock) SetContent(content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.content = content
}

// SetFetchErr makes every Fetch fail with err.
func (m *Mock) SetFetchErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchErr = err
}

// SetNoOutput makes Fetch succeed without writing anything, like an engine
// whose post-processor removed the result.
func (m *Mock) SetNoOutput(noOutput bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.noOutput = noOutput
}

// Resolves returns how many times Resolve was called.
func (m *Mock) Resolves() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.resolves
}

// Fetches returns the requests Fetch received.
func (m *Mock) Fetches() []entity.FetchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.fetches)
}

// Name returns the engine identifier.
func (m *Mock) Name() string {
	return consts.EngineMock
}

// Resolve returns a copy of the canned metadata for url.
func (m *Mock) Resolve(ctx context.Context, url string) (*entity.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolves++

	meta, ok := m.metadata[url]
	if !ok {
		meta = m.metadata[""]
	}

	if meta == nil {
		return nil, fmt.Errorf("%w: ERROR: Unsupported URL: %s", errs.ErrResolveFailed, url)
	}

	m.log.DebugContext(ctx, "resolved", slog.String("url", url))

	cp := *meta
	cp.Formats = slices.Clone(meta.Formats)

	return &cp, nil
}

// Fetch writes the mock content to the output template with the extension
// the post-processing mode would produce and returns its path.
func (m *Mock) Fetch(ctx context.Context, req entity.FetchRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetches = append(m.fetches, req)

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
	}

	if m.fetchErr != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrDownloadFailed, m.fetchErr)
	}

	if m.noOutput {
		return "", nil
	}

	ext := req.VideoContainer
	if req.Mode == entity.PostProcessAudio {
		ext = req.AudioCodec
	}

	path := strings.ReplaceAll(req.OutputTemplate, "%(ext)s", ext)

	if err := os.WriteFile(path, m.content, mockFilePerm); err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
	}

	m.log.InfoContext(ctx, "fetched", "request", req, slog.String("filepath", path))

	return path, nil
}
