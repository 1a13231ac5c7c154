package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	contracts "docconv/internal/contracts/renderer/v0"
	apperrors "docconv/internal/pkg/errors"
)

// HTTPClient delegates rendering to a conversion service that shares the
// worker's filesystem.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// The per-job deadline comes from the context; this only caps a runaway connection.
		client: &http.Client{Timeout: 30 * time.Minute},
	}
}

func (c *HTTPClient) Name() string { return "http" }

func (c *HTTPClient) Render(ctx context.Context, req Request) error {
	if _, err := Filter(req.Kind, req.Format); err != nil {
		return err
	}

	spec := contracts.ConvertSpec{
		JobID:      req.JobID,
		SourcePath: req.SourcePath,
		Kind:       req.Kind.String(),
		Format:     string(req.Format),
	}
	spec.Output.Path = req.OutputPath
	spec.Output.AssetsDir = req.AssetsDir

	return c.post(ctx, "/render", spec)
}

func (c *HTTPClient) post(ctx context.Context, path string, spec any) error {
	body, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.Wrap(ctxErr, "renderer.http", "render aborted")
		}
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "renderer.http", "renderer unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	msg := fmt.Sprintf("renderer http %d", res.StatusCode)
	var eb contracts.ErrorBody
	if raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096)); len(raw) > 0 {
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			msg += ": " + eb.Error
		}
	}

	switch res.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return apperrors.New(apperrors.CodeUnavailable, msg).WithField("status", res.StatusCode)
	case http.StatusRequestTimeout:
		return apperrors.New(apperrors.CodeTimeout, msg).WithField("status", res.StatusCode)
	default:
		return apperrors.RenderFailure(msg).WithField("status", res.StatusCode)
	}
}
