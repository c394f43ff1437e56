// Package consts defines application-wide constants.
package consts

// HTTP response messages.
const (
	// RespInvalidRequestBody is returned when the request body is invalid.
	RespInvalidRequestBody = "invalid request body"
	// RespUnprocessableEntity is returned when the request fails validation.
	RespUnprocessableEntity = "unprocessable entity"
	// RespResolveFailed is returned when metadata cannot be extracted for the URL.
	RespResolveFailed = "could not resolve url"
	// RespInvalidFormat is returned when the requested format does not exist.
	RespInvalidFormat = "Invalid format selected"
	// RespDownloadFailed is returned when the engine fails to fetch the media.
	RespDownloadFailed = "Download failed"
	// RespFileNotFound is returned when the downloaded file cannot be located.
	RespFileNotFound = "file not found"
	// RespInternalError is returned for unexpected failures.
	RespInternalError = "internal server error"
	// RespCleanupDone is returned when the download directory was wiped.
	RespCleanupDone = "All downloads cleaned up successfully"
	// RespCleanupFailed is returned when the download directory could not be wiped.
	RespCleanupFailed = "cleanup failed"
	// RespRateLimited is returned when a client exceeds the request rate.
	RespRateLimited = "rate limit exceeded"
)

// Engine identifiers.
const (
	// EngineYTdlp is the yt-dlp engine identifier.
	EngineYTdlp = "ytdlp"
	// EngineMock is the in-memory engine identifier for testing.
	EngineMock = "mock"
)

// Media constants.
const (
	// ResolutionAudioOnly is the resolution label of formats without a video stream.
	ResolutionAudioOnly = "audio only"
	// CodecNone is the codec value the engine reports for an absent stream.
	CodecNone = "none"
	// SelectorBestAudio requests the best available audio track.
	SelectorBestAudio = "bestaudio/best"
	// SelectorWithBestAudioSuffix widens a video-only selector with the best audio track.
	SelectorWithBestAudioSuffix = "+bestaudio/best"
	// FallbackFilename is used when a title sanitizes to an empty string.
	FallbackFilename = "download"
)

// Toolchain binary names.
const (
	// BinYTdlp is the media extraction engine binary.
	BinYTdlp = "yt-dlp"
	// BinFFmpeg is the muxer and transcoder binary.
	BinFFmpeg = "ffmpeg"
	// BinFFprobe is the stream inspector shipped with ffmpeg.
	BinFFprobe = "ffprobe"
)
