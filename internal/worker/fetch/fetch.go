// Package fetch downloads a job's source document into its workspace.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"docconv/internal/config"
	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/ports"
)

type Fetcher struct {
	mode    string
	baseURL string
	client  *http.Client
	store   ports.StorageProvider
}

// New builds a fetcher. Relative keys are read from store when the mode is
// "storage", otherwise they are downloaded from the public base URL, which
// defaults to https://{bucket}.
func New(cfg config.FetchConfig, bucket string, store ports.StorageProvider) *Fetcher {
	base := strings.TrimRight(cfg.BaseDownloadURL, "/")
	if base == "" && bucket != "" {
		base = "https://" + bucket
	}
	return &Fetcher{
		mode:    cfg.Mode,
		baseURL: base,
		client:  &http.Client{Timeout: cfg.Timeout},
		store:   store,
	}
}

// Fetch stores the document addressed by locator at dst and returns the
// number of bytes written. A missing source yields a NotFound error.
func (f *Fetcher) Fetch(ctx context.Context, locator, dst string, isURL bool) (int64, error) {
	if isURL {
		return f.download(ctx, locator, dst)
	}
	if f.mode == config.FetchStorage && f.store != nil {
		return f.fromStore(ctx, locator, dst)
	}
	if f.baseURL == "" {
		return 0, apperrors.Internal("no download base url configured for relative keys")
	}
	return f.download(ctx, f.baseURL+"/"+strings.TrimLeft(locator, "/"), dst)
}

func (f *Fetcher) download(ctx context.Context, src, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, apperrors.Wrap(err, "fetch.download", "build request")
	}

	res, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, apperrors.Wrap(ctxErr, "fetch.download", "download aborted")
		}
		return 0, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "fetch.download", "request failed")
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return 0, apperrors.NotFound("source", src).WithField("status", res.StatusCode)
	case res.StatusCode >= 500:
		return 0, apperrors.Newf(apperrors.CodeUnavailable, "source http %d", res.StatusCode).WithField("url", src)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return 0, apperrors.Newf(apperrors.CodeInternal, "source http %d", res.StatusCode).WithField("url", src)
	}

	return writeFile(ctx, res.Body, dst)
}

func (f *Fetcher) fromStore(ctx context.Context, locator, dst string) (int64, error) {
	key, err := url.PathUnescape(locator)
	if err != nil {
		key = locator
	}

	rc, _, _, err := f.store.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return 0, apperrors.NotFound("source", key)
		}
		return 0, apperrors.Wrap(err, "fetch.storage", "get object")
	}
	defer rc.Close()

	return writeFile(ctx, rc, dst)
}

// writeFile streams r into dst through a .part file renamed on success.
func writeFile(ctx context.Context, r io.Reader, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, apperrors.Wrap(err, "fetch.write", "create dir")
	}

	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return 0, apperrors.Wrap(err, "fetch.write", "create part file")
	}

	n, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(part)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, apperrors.Wrap(ctxErr, "fetch.write", "download aborted")
		}
		return 0, apperrors.Wrap(err, "fetch.write", fmt.Sprintf("write %s", filepath.Base(dst)))
	}

	if err := os.Rename(part, dst); err != nil {
		_ = os.Remove(part)
		return 0, apperrors.Wrap(err, "fetch.write", "rename part file")
	}
	return n, nil
}
