package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"docconv/internal/config"
	contracts "docconv/internal/contracts/renderer/v0"
	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/worker/job"
)

func TestFilter(t *testing.T) {
	tests := []struct {
		kind    job.Kind
		format  job.Format
		want    string
		wantErr bool
	}{
		{job.KindDocument, job.FormatPDF, "pdf:writer_pdf_Export", false},
		{job.KindPresentation, job.FormatHTML, "html:impress_html_Export", false},
		{job.KindSpreadsheet, job.FormatPDF, "pdf:calc_pdf_Export", false},
		{job.KindSpreadsheet, job.FormatHTML, "", true},
		{job.KindUnknown, job.FormatPDF, "", true},
	}

	for _, tt := range tests {
		got, err := Filter(tt.kind, tt.format)
		if tt.wantErr {
			if !apperrors.IsCode(err, apperrors.CodeUnsupported) {
				t.Errorf("Filter(%s, %s) error = %v, want unsupported", tt.kind, tt.format, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Filter(%s, %s) = %q, %v; want %q", tt.kind, tt.format, got, err, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	r, err := New(config.RendererConfig{Kind: config.RendererHTTP, BaseURL: "http://renderer:8080/"})
	if err != nil || r.Name() != "http" {
		t.Errorf("expected http renderer, got %v %v", r, err)
	}
	r, err = New(config.RendererConfig{Kind: config.RendererSoffice})
	if err != nil || r.Name() != "soffice" {
		t.Errorf("expected soffice renderer, got %v %v", r, err)
	}
	if _, err := New(config.RendererConfig{Kind: "word"}); err == nil {
		t.Error("expected error for unknown renderer")
	}
}

func TestHTTPClientRender(t *testing.T) {
	var got contracts.ConvertSpec
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode spec: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL + "/")
	err := c.Render(context.Background(), Request{
		JobID:      "c4",
		SourcePath: "/w/temp/c4/file.pptx",
		Kind:       job.KindPresentation,
		Format:     job.FormatHTML,
		OutputPath: "/w/result/file.html",
		AssetsDir:  "/w/result/file.files",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got.JobID != "c4" || got.Kind != "presentation" || got.Format != "html" {
		t.Errorf("unexpected spec %+v", got)
	}
	if got.Output.Path != "/w/result/file.html" || got.Output.AssetsDir != "/w/result/file.files" {
		t.Errorf("unexpected output block %+v", got.Output)
	}
}

func TestHTTPClientErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   apperrors.Code
	}{
		{http.StatusUnprocessableEntity, apperrors.CodeRenderFailure},
		{http.StatusInternalServerError, apperrors.CodeRenderFailure},
		{http.StatusServiceUnavailable, apperrors.CodeUnavailable},
		{http.StatusBadGateway, apperrors.CodeUnavailable},
		{http.StatusRequestTimeout, apperrors.CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(contracts.ErrorBody{Error: "corrupt input"})
			}))
			defer srv.Close()

			err := NewHTTPClient(srv.URL).Render(context.Background(), Request{Kind: job.KindDocument, Format: job.FormatPDF})
			if code := apperrors.GetCode(err); code != tt.want {
				t.Errorf("code = %s, want %s (err %v)", code, tt.want, err)
			}
		})
	}
}

func TestHTTPClientUnsupportedSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL).Render(context.Background(), Request{Kind: job.KindSpreadsheet, Format: job.FormatHTML})
	if !apperrors.IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if called {
		t.Error("renderer must not be called for unsupported pairs")
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPClient(url).Render(context.Background(), Request{Kind: job.KindDocument, Format: job.FormatPDF})
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

const fakeSoffice = `#!/bin/sh
outdir=""; src=""; filter=""
while [ $# -gt 0 ]; do
  case "$1" in
    --outdir) outdir="$2"; shift 2 ;;
    --convert-to) filter="$2"; shift 2 ;;
    -*) shift ;;
    *) src="$1"; shift ;;
  esac
done
base=$(basename "$src")
name="${base%.*}"
ext="${filter%%:*}"
case "$name" in
  broken) echo "source file could not be loaded" >&2; exit 1 ;;
  hang) exec sleep 10 ;;
  silent) exit 0 ;;
esac
if [ "$ext" = "html" ]; then
  cat > "$outdir/$name.$ext" <<PAGE
<html><body>
<a href="text0.html#top"><img src="img0.png" alt="Slide 1"></a>
<img src='img1.png'/>
<a href="https://example.com/deck">source</a>
</body></html>
PAGE
  echo png > "$outdir/img0.png"
  echo png > "$outdir/img1.png"
  echo "<p>notes</p>" > "$outdir/text0.html"
else
  echo converted > "$outdir/$name.$ext"
fi
`

func newFakeSoffice(t *testing.T) (*Soffice, string) {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "soffice")
	if err := os.WriteFile(bin, []byte(fakeSoffice), 0o755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "temp", "a1")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	return NewSoffice(bin), dir
}

func TestSofficePDF(t *testing.T) {
	s, dir := newFakeSoffice(t)
	out := filepath.Join(dir, "result", "file.pdf")

	err := s.Render(context.Background(), Request{
		SourcePath: filepath.Join(dir, "temp", "a1", "file.docx"),
		Kind:       job.KindDocument,
		Format:     job.FormatPDF,
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected %s to exist: %v", out, err)
	}
}

func TestSofficeHTMLCollectsAssets(t *testing.T) {
	s, dir := newFakeSoffice(t)
	out := filepath.Join(dir, "result", "file.html")
	assets := filepath.Join(dir, "result", "file.files")

	err := s.Render(context.Background(), Request{
		SourcePath: filepath.Join(dir, "temp", "a1", "file.pptx"),
		Kind:       job.KindPresentation,
		Format:     job.FormatHTML,
		OutputPath: out,
		AssetsDir:  assets,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected html page: %v", err)
	}
	entries, err := os.ReadDir(assets)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 assets, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "result", "img0.png")); !os.IsNotExist(err) {
		t.Error("assets must be moved out of the result root")
	}
}

func TestSofficeHTMLLinksMatchUploadLayout(t *testing.T) {
	s, dir := newFakeSoffice(t)
	out := filepath.Join(dir, "result", "file.html")
	assets := filepath.Join(dir, "result", "file.files")

	err := s.Render(context.Background(), Request{
		SourcePath: filepath.Join(dir, "temp", "c4", "file.pptx"),
		Kind:       job.KindPresentation,
		Format:     job.FormatHTML,
		OutputPath: out,
		AssetsDir:  assets,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	j := job.ConversionJob{UUID: "c4"}
	uploaded := map[string]bool{job.HTMLKey(j): true}
	entries, err := os.ReadDir(assets)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		uploaded[job.AssetKey(j, e.Name())] = true
	}

	page, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	refs := regexp.MustCompile(`(?:src|href)=["']([^"']+)["']`).FindAllStringSubmatch(string(page), -1)
	if len(refs) != 4 {
		t.Fatalf("expected 4 references, got %d in %s", len(refs), page)
	}
	for _, m := range refs {
		ref := m[1]
		if strings.Contains(ref, "://") {
			continue
		}
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			ref = ref[:i]
		}
		key := path.Join(path.Dir(job.HTMLKey(j)), ref)
		if !uploaded[key] {
			t.Errorf("reference %q resolves to %q which is not uploaded", m[1], key)
		}
	}
	if !strings.Contains(string(page), `href="file.files/text0.html#top"`) {
		t.Errorf("expected fragment to be kept, got %s", page)
	}
	if !strings.Contains(string(page), `href="https://example.com/deck"`) {
		t.Errorf("absolute links must be left alone, got %s", page)
	}
}

func TestRelinkAssetsLeavesUnknownNames(t *testing.T) {
	var out strings.Builder
	in := `<!DOCTYPE html><link href="style.css"><img src="img0.png"><!-- img0.png -->`
	err := relinkAssets(&out, strings.NewReader(in), "file.files", map[string]bool{"img0.png": true})
	if err != nil {
		t.Fatal(err)
	}
	want := `<!DOCTYPE html><link href="style.css"><img src="file.files/img0.png"><!-- img0.png -->`
	if out.String() != want {
		t.Errorf("got  %s\nwant %s", out.String(), want)
	}
}

func TestSofficeFailureIsRenderFailure(t *testing.T) {
	s, dir := newFakeSoffice(t)

	err := s.Render(context.Background(), Request{
		SourcePath: filepath.Join(dir, "temp", "a1", "broken.docx"),
		Kind:       job.KindDocument,
		Format:     job.FormatPDF,
		OutputPath: filepath.Join(dir, "result", "file.pdf"),
	})
	if !apperrors.IsCode(err, apperrors.CodeRenderFailure) {
		t.Fatalf("expected render failure, got %v", err)
	}
}

func TestSofficeSilentNoOutput(t *testing.T) {
	s, dir := newFakeSoffice(t)
	out := filepath.Join(dir, "result", "file.pdf")

	err := s.Render(context.Background(), Request{
		SourcePath: filepath.Join(dir, "temp", "a1", "silent.docx"),
		Kind:       job.KindDocument,
		Format:     job.FormatPDF,
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("a silent renderer returns no error, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("expected no output file")
	}
}

func TestSofficeTimeout(t *testing.T) {
	s, dir := newFakeSoffice(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Render(ctx, Request{
		SourcePath: filepath.Join(dir, "temp", "a1", "hang.docx"),
		Kind:       job.KindDocument,
		Format:     job.FormatPDF,
		OutputPath: filepath.Join(dir, "result", "file.pdf"),
	})
	if !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("render did not stop at the deadline")
	}
}

func TestSofficeMissingBinary(t *testing.T) {
	s := NewSoffice(filepath.Join(t.TempDir(), "nope"))

	err := s.Render(context.Background(), Request{
		SourcePath: "/tmp/x/file.docx",
		Kind:       job.KindDocument,
		Format:     job.FormatPDF,
		OutputPath: filepath.Join(t.TempDir(), "file.pdf"),
	})
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
