package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/worker/job"
)

// Soffice renders through a headless LibreOffice process per job.
type Soffice struct {
	bin string
}

func NewSoffice(bin string) *Soffice {
	if bin == "" {
		bin = "soffice"
	}
	return &Soffice{bin: bin}
}

func (s *Soffice) Name() string { return "soffice" }

func (s *Soffice) Render(ctx context.Context, req Request) error {
	filter, err := Filter(req.Kind, req.Format)
	if err != nil {
		return err
	}

	outDir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return apperrors.Wrap(err, "renderer.soffice", "create output dir")
	}

	cmd := exec.CommandContext(ctx, s.bin,
		"--headless", "--norestore", "--nolockcheck",
		"--convert-to", filter,
		"--outdir", outDir,
		req.SourcePath,
	)
	cmd.WaitDelay = 5 * time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.Wrap(ctxErr, "renderer.soffice", "render aborted")
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return apperrors.RenderFailure(fmt.Sprintf("soffice exited with %d", exitErr.ExitCode())).
				WithField("output", tail(out.String(), 512))
		}
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "renderer.soffice", "start soffice")
	}

	// soffice names the artifact after the source file.
	produced := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(req.SourcePath), filepath.Ext(req.SourcePath))+"."+string(req.Format))
	if produced != req.OutputPath {
		if err := os.Rename(produced, req.OutputPath); err != nil && !os.IsNotExist(err) {
			return apperrors.Wrap(err, "renderer.soffice", "move output")
		}
	}

	if req.Format == job.FormatHTML && req.AssetsDir != "" {
		if err := collectAssets(outDir, req.OutputPath, req.AssetsDir); err != nil {
			return apperrors.Wrap(err, "renderer.soffice", "collect html assets")
		}
	}
	return nil
}

// collectAssets moves every file the HTML export left next to the page into
// the assets directory and points the page's references at their new home.
func collectAssets(outDir, page, assetsDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return err
	}
	moved := make(map[string]bool)
	for _, e := range entries {
		p := filepath.Join(outDir, e.Name())
		if e.IsDir() || p == page {
			continue
		}
		if err := os.Rename(p, filepath.Join(assetsDir, e.Name())); err != nil {
			return err
		}
		moved[e.Name()] = true
	}
	if len(moved) == 0 {
		return nil
	}

	prefix, err := filepath.Rel(filepath.Dir(page), assetsDir)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(page)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := relinkAssets(&out, bytes.NewReader(src), filepath.ToSlash(prefix), moved); err != nil {
		return err
	}
	return os.WriteFile(page, out.Bytes(), 0o644)
}

// relinkAssets copies an HTML document, prefixing src and href values that
// name one of the moved files. Everything else is copied byte for byte.
func relinkAssets(w io.Writer, r io.Reader, prefix string, moved map[string]bool) error {
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return z.Err()
		}
		raw := append([]byte(nil), z.Raw()...)
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			if _, err := w.Write(raw); err != nil {
				return err
			}
			continue
		}

		tok := z.Token()
		changed := false
		for i, a := range tok.Attr {
			if a.Namespace != "" || (a.Key != "src" && a.Key != "href") {
				continue
			}
			name, rest := a.Val, ""
			if j := strings.IndexAny(name, "?#"); j >= 0 {
				name, rest = name[:j], name[j:]
			}
			if moved[name] {
				tok.Attr[i].Val = prefix + "/" + name + rest
				changed = true
			}
		}
		if changed {
			raw = []byte(tok.String())
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
