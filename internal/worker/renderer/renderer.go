// Package renderer turns a fetched source document into a PDF or HTML
// artifact. Implementations are not safe for concurrent use; callers
// serialize invocations.
package renderer

import (
	"context"
	"fmt"

	"docconv/internal/config"
	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/worker/job"
)

type Request struct {
	JobID      string
	SourcePath string
	Kind       job.Kind
	Format     job.Format
	OutputPath string
	// AssetsDir receives sidecar files of an HTML render.
	AssetsDir string
}

type Renderer interface {
	Name() string
	Render(ctx context.Context, req Request) error
}

// New picks the renderer configured by RENDERER.
func New(cfg config.RendererConfig) (Renderer, error) {
	switch cfg.Kind {
	case config.RendererHTTP:
		return NewHTTPClient(cfg.BaseURL), nil
	case config.RendererSoffice, "":
		return NewSoffice(cfg.Binary), nil
	default:
		return nil, fmt.Errorf("unknown renderer: %s", cfg.Kind)
	}
}

var filters = map[job.Kind]map[job.Format]string{
	job.KindDocument: {
		job.FormatPDF:  "pdf:writer_pdf_Export",
		job.FormatHTML: "html:HTML (StarWriter)",
	},
	job.KindPresentation: {
		job.FormatPDF:  "pdf:impress_pdf_Export",
		job.FormatHTML: "html:impress_html_Export",
	},
	job.KindSpreadsheet: {
		job.FormatPDF: "pdf:calc_pdf_Export",
	},
}

// Filter returns the export filter for a source kind and output format, or
// an Unsupported error when the pair cannot be rendered.
func Filter(kind job.Kind, format job.Format) (string, error) {
	if f, ok := filters[kind][format]; ok {
		return f, nil
	}
	return "", apperrors.Unsupported(fmt.Sprintf("%s to %s", kind, format)).
		WithField("kind", kind.String()).
		WithField("format", string(format))
}
