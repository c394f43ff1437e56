// Package errs defines common error variables used across the application.
package errs

import "errors"

var (
	// ErrInvalidRequestBody indicates that the request body is invalid or cannot be parsed.
	ErrInvalidRequestBody = errors.New("invalid request body")
	// ErrInvalidURL indicates that the URL field in the request is invalid.
	ErrInvalidURL = errors.New("invalid url field")
	// ErrRateLimited indicates that the client exceeded the configured request rate.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Gateway errors.
var (
	// ErrResolveFailed indicates that the engine could not extract metadata for the URL.
	ErrResolveFailed = errors.New("resolve failed")
	// ErrInvalidFormat indicates that the requested format is absent from the resolved format list.
	ErrInvalidFormat = errors.New("Invalid format selected") //nolint:staticcheck // surfaced to clients as is
	// ErrDownloadFailed indicates that the engine failed to fetch the media.
	ErrDownloadFailed = errors.New("Download failed") //nolint:staticcheck // surfaced to clients as is
	// ErrFileNotFound indicates that the fetch produced no file matching the expected name.
	ErrFileNotFound = errors.New("file not found")
	// ErrMetadataNil indicates that the engine returned no metadata.
	ErrMetadataNil = errors.New("metadata is nil")
)

// Toolchain errors.
var (
	// ErrBinaryNotFound indicates that the required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedArchive indicates that the archive format is not supported.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
)

// Proxy errors.
var (
	// ErrNoProxiesAvailable indicates that no healthy proxies are available.
	ErrNoProxiesAvailable = errors.New("no proxies available")
)
