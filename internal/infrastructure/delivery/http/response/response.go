// Package response writes JSON and file responses.
package response

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// Response is the JSON envelope of every non-binary, non-info response.
type Response struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes the envelope with the given status.
func WriteJSON(w http.ResponseWriter, status int, message string, data any, err error) {
	var errorMsg string
	if err != nil {
		errorMsg = err.Error()
	}

	JSON(w, status, Response{
		Message: message,
		Data:    data,
		Error:   errorMsg,
	})
}

// JSON writes v as a bare JSON body.
func JSON(w http.ResponseWriter, status int, v any) {
	bytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes)
}

// Attachment streams src as a file download and returns the number of bytes written.
func Attachment(w http.ResponseWriter, name, contentType string, size int64, src io.Reader) (int64, error) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", ContentDisposition(name))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("stream %s: %w", name, err)
	}

	return n, nil
}

// ContentDisposition returns an attachment header value for name.
// Non-ASCII names also get an RFC 5987 filename* parameter.
func ContentDisposition(name string) string {
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	value := `attachment; filename="` + quoted + `"`

	for _, r := range name {
		if r > unicode.MaxASCII {
			return value + "; filename*=UTF-8''" + url.PathEscape(name)
		}
	}

	return value
}

func OK(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusOK, message, res, err)
}

func BadRequest(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusBadRequest, message, nil, err)
}

func UnprocessableEntity(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusUnprocessableEntity, message, nil, err)
}

func TooManyRequests(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusTooManyRequests, message, nil, err)
}

func InternalServerError(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusInternalServerError, message, res, err)
}
