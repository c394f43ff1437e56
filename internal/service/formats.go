package service

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"vidgate/internal/consts"
	"vidgate/internal/entity"
)

// QualityRank maps a resolution label to a sortable number.
// "720p" ranks 720, "1920x1080" ranks 1080, anything unparsable ranks 0.
func QualityRank(resolution string) int {
	if resolution == consts.ResolutionAudioOnly {
		return 0
	}

	if rest, ok := strings.CutSuffix(resolution, "p"); ok {
		return atoiOrZero(rest)
	}

	if _, height, ok := strings.Cut(resolution, "x"); ok {
		return atoiOrZero(height)
	}

	return 0
}

// SortFormats orders formats by descending QualityRank, keeping the
// relative order of equally ranked formats.
func SortFormats(formats []entity.Format) {
	slices.SortStableFunc(formats, func(a, b entity.Format) int {
		return cmp.Compare(QualityRank(b.Resolution), QualityRank(a.Resolution))
	})
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"opus": "audio/opus",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
}

const defaultContentType = "video/mp4"

// ContentType returns the MIME type for a file extension, with or without the dot.
func ContentType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	if ct, ok := contentTypes[ext]; ok {
		return ct
	}

	return defaultContentType
}
