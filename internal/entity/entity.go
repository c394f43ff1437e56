// Package entity defines the core entities used in the application.
package entity

import (
	"log/slog"
)

// Format describes one media format the engine can deliver for a URL.
type Format struct {
	FormatID   string `json:"format_id"`
	Ext        string `json:"ext"`
	Resolution string `json:"resolution"`
	// Filesize is nil when the source does not report it.
	Filesize   *int64 `json:"filesize"`
	FormatNote string `json:"format_note"`
	ACodec     string `json:"acodec"`
	VCodec     string `json:"vcodec"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (f Format) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("format_id", f.FormatID),
		slog.String("ext", f.Ext),
		slog.String("resolution", f.Resolution),
		slog.String("acodec", f.ACodec),
		slog.String("vcodec", f.VCodec),
	}

	if f.Filesize != nil {
		attrs = append(attrs, slog.Int64("filesize", *f.Filesize))
	}

	return slog.GroupValue(attrs...)
}

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool {
	return f.ACodec != "none"
}

// Metadata is what the engine knows about a URL without downloading it.
type Metadata struct {
	Title     string   `json:"title"`
	// Duration is in seconds, nil for live streams and sources that do not report it.
	Duration  *float64 `json:"duration"`
	Thumbnail string   `json:"thumbnail"`
	Formats   []Format `json:"formats"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (m Metadata) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("title", m.Title),
		slog.String("thumbnail", m.Thumbnail),
		slog.Int("formats", len(m.Formats)),
	}

	if m.Duration != nil {
		attrs = append(attrs, slog.Float64("duration", *m.Duration))
	}

	return slog.GroupValue(attrs...)
}

// FindFormat returns the format with the given identifier.
func (m *Metadata) FindFormat(id string) (Format, bool) {
	for _, f := range m.Formats {
		if f.FormatID == id {
			return f, true
		}
	}

	return Format{}, false
}

// PostProcess selects what the engine does with the fetched streams.
type PostProcess int

const (
	// PostProcessVideo merges separate streams and recodes into the video container.
	PostProcessVideo PostProcess = iota
	// PostProcessAudio extracts the audio track and transcodes it.
	PostProcessAudio
)

// String returns the mode name.
func (p PostProcess) String() string {
	switch p {
	case PostProcessAudio:
		return "audio"
	default:
		return "video"
	}
}

// FetchRequest is a single instruction for the engine to download media.
type FetchRequest struct {
	URL      string
	Selector string
	// OutputTemplate is an engine output template, e.g. /dl/<id>/title.%(ext)s
	OutputTemplate string
	Mode           PostProcess

	AudioCodec     string
	AudioQuality   string
	VideoContainer string
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (r FetchRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", r.URL),
		slog.String("selector", r.Selector),
		slog.String("output", r.OutputTemplate),
		slog.String("mode", r.Mode.String()),
	)
}
