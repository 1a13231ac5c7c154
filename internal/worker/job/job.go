// Package job decodes conversion requests and derives the locators and
// object keys the pipeline works with. Everything here is pure.
package job

import (
	"bytes"
	"encoding/json"
	"strings"

	apperrors "docconv/internal/pkg/errors"
)

// Format is the requested output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Kind groups source extensions by the renderer family that handles them.
type Kind int

const (
	KindUnknown Kind = iota
	KindDocument
	KindPresentation
	KindSpreadsheet
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindPresentation:
		return "presentation"
	case KindSpreadsheet:
		return "spreadsheet"
	default:
		return "unknown"
	}
}

var kinds = map[string]Kind{
	"doc":  KindDocument,
	"docx": KindDocument,
	"odt":  KindDocument,
	"rtf":  KindDocument,
	"txt":  KindDocument,
	"ppt":  KindPresentation,
	"pptx": KindPresentation,
	"odp":  KindPresentation,
	"pps":  KindPresentation,
	"ppsx": KindPresentation,
	"xls":  KindSpreadsheet,
	"xlsx": KindSpreadsheet,
	"ods":  KindSpreadsheet,
}

// KindOf classifies a source extension, with or without a leading dot.
func KindOf(ext string) Kind {
	return kinds[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))]
}

// ConversionJob is a validated conversion request.
type ConversionJob struct {
	UUID            string
	EncodedFileName string
	Extension       string
	Output          Format
}

// SourceKind is the renderer family of the job's source extension.
func (j ConversionJob) SourceKind() Kind {
	return KindOf(j.Extension)
}

// UploadsSidecar reports whether an HTML render of this job is published.
// Only slide decks produce a presentation bundle worth uploading.
func (j ConversionJob) UploadsSidecar() bool {
	return j.Output == FormatHTML && j.SourceKind() == KindPresentation
}

type message struct {
	UUID               string `json:"uuid"`
	URLEncodedFileName string `json:"urlEncodedFileName"`
	Extension          string `json:"extension"`
	Output             string `json:"output"`
}

// Decode parses a message body into a ConversionJob. Any failure carries
// CodeDecode; the body has no usable identity in that case.
func Decode(body []byte) (ConversionJob, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ConversionJob{}, apperrors.Decode("message body is not a JSON object")
	}

	var m message
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return ConversionJob{}, apperrors.WrapWithCode(err, apperrors.CodeDecode, "job.decode", "invalid message body")
	}

	j := ConversionJob{
		UUID:            strings.TrimSpace(m.UUID),
		EncodedFileName: strings.TrimSpace(m.URLEncodedFileName),
		Extension:       strings.TrimPrefix(strings.TrimSpace(m.Extension), "."),
		Output:          FormatPDF,
	}

	switch {
	case j.UUID == "":
		return ConversionJob{}, apperrors.DecodeField("uuid", "uuid is required")
	case !ValidUUID(j.UUID):
		return ConversionJob{}, apperrors.DecodeField("uuid", "uuid must be a single path segment")
	case j.EncodedFileName == "":
		return ConversionJob{}, apperrors.DecodeField("urlEncodedFileName", "urlEncodedFileName is required")
	case j.Extension == "":
		return ConversionJob{}, apperrors.DecodeField("extension", "extension is required")
	}

	if out := strings.ToLower(strings.TrimSpace(m.Output)); out != "" {
		switch Format(out) {
		case FormatPDF, FormatHTML:
			j.Output = Format(out)
		default:
			return ConversionJob{}, apperrors.DecodeField("output", "output must be pdf or html").
				WithField("value", m.Output)
		}
	}

	return j, nil
}

// ValidUUID reports whether id is safe to use as a directory name.
func ValidUUID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}
