// Package request holds the decoded bodies of API requests.
package request

import (
	"vidgate/internal/errs"
	"vidgate/pkg/urls"
)

// Info is the body of POST /api/video-info.
type Info struct {
	URL string `json:"url"`
	// Format is accepted for symmetry with Download and ignored.
	Format string `json:"format,omitempty"`
}

// Normalize trims the URL.
func (i *Info) Normalize() {
	i.URL = urls.Normalize(i.URL)
}

func (i *Info) Validate() error {
	if !urls.IsURLValid(i.URL) {
		return errs.ErrInvalidURL
	}

	return nil
}

// Download is the body of POST /api/download.
type Download struct {
	URL       string `json:"url"`
	Format    string `json:"format,omitempty"`
	AudioOnly bool   `json:"audio_only,omitempty"`
}

// Normalize trims the URL.
func (d *Download) Normalize() {
	d.URL = urls.Normalize(d.URL)
}

func (d *Download) Validate() error {
	if !urls.IsURLValid(d.URL) {
		return errs.ErrInvalidURL
	}

	return nil
}
