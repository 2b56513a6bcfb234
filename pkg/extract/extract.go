// Package extract converts uploaded lesson documents (PDF, DOCX, PPTX)
// into plain text. Format selection happens once at the boundary, by file
// name suffix; MIME types are never inspected.
package extract

import (
	"errors"
	"strings"
)

// ErrUnsupported reports a file name whose extension is none of the three
// supported formats.
var ErrUnsupported = errors.New("unsupported file type")

// ParseError wraps a parser failure for a supported format. Callers surface
// the detail as a structured client error instead of a raw internal one.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string { return e.Format + ": " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// FromUpload extracts the text of an uploaded document, dispatching on the
// lower-cased suffix of name. Returns ErrUnsupported for unknown extensions
// and *ParseError when the matching parser rejects the bytes.
func FromUpload(name string, data []byte) (string, error) {
	var (
		format string
		text   string
		err    error
	)
	switch lower := strings.ToLower(name); {
	case strings.HasSuffix(lower, ".pdf"):
		format = "pdf"
		text, err = PDF(data)
	case strings.HasSuffix(lower, ".docx"):
		format = "docx"
		text, err = DOCX(data)
	case strings.HasSuffix(lower, ".pptx"):
		format = "pptx"
		text, err = PPTX(data)
	default:
		return "", ErrUnsupported
	}
	if err != nil {
		return "", &ParseError{Format: format, Err: err}
	}
	return text, nil
}

// Supported reports whether the file name carries one of the known
// extensions (used by the batch worker to filter directory listings).
func Supported(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".pdf") ||
		strings.HasSuffix(lower, ".docx") ||
		strings.HasSuffix(lower, ".pptx")
}
