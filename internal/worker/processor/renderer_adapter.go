package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/pkg/logger"
	"docconv/internal/worker/job"
	"docconv/internal/worker/renderer"
	"docconv/internal/worker/workspace"
)

// Artifact is a verified render output in result/.
type Artifact struct {
	Format    job.Format
	Path      string
	AssetsDir string
}

type RendererAdapter struct {
	r       renderer.Renderer
	ws      *workspace.Workspace
	timeout time.Duration
	log     *logger.Logger
}

func NewRendererAdapter(r renderer.Renderer, ws *workspace.Workspace, timeout time.Duration, log *logger.Logger) *RendererAdapter {
	return &RendererAdapter{r: r, ws: ws, timeout: timeout, log: log}
}

// Render runs the renderer under the per-job timeout and verifies that the
// expected artifact exists afterwards.
func (ra *RendererAdapter) Render(ctx context.Context, j job.ConversionJob, sourcePath string) (Artifact, error) {
	if j.SourceKind() == job.KindUnknown {
		return Artifact{}, apperrors.RenderFailure(fmt.Sprintf("unsupported source extension: %s", j.Extension)).
			WithField("extension", j.Extension)
	}

	// A leftover from an abandoned job must never pass verification.
	ra.ws.ClearResult()

	outPath, err := ra.ws.ResultPath(j.Output)
	if err != nil {
		return Artifact{}, err
	}
	a := Artifact{Format: j.Output, Path: outPath}
	if j.Output == job.FormatHTML {
		a.AssetsDir = ra.ws.ResultAssetsDir()
	}

	rctx := ctx
	if ra.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, ra.timeout)
		defer cancel()
	}

	start := time.Now()
	err = ra.r.Render(rctx, renderer.Request{
		JobID:      j.UUID,
		SourcePath: sourcePath,
		Kind:       j.SourceKind(),
		Format:     j.Output,
		OutputPath: a.Path,
		AssetsDir:  a.AssetsDir,
	})
	if err != nil {
		return Artifact{}, ra.renderError(ctx, rctx, err)
	}

	if _, err := os.Stat(a.Path); err != nil {
		return Artifact{}, apperrors.RenderFailure("renderer produced no output").
			WithField("expected", a.Path)
	}

	ra.log.FromContext(ctx).Info("render completed",
		"renderer", ra.r.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return a, nil
}

func (ra *RendererAdapter) renderError(ctx, rctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Wrap(ctx.Err(), "processor.render", "render aborted")
	}
	if errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return apperrors.Timeout("render").
			WithField("timeout", ra.timeout.String()).
			WithField("cause", err.Error())
	}

	var appErr *apperrors.Error
	if apperrors.As(err, &appErr) {
		return err
	}
	return apperrors.WrapWithCode(err, apperrors.CodeRenderFailure, "processor.render", "renderer fault")
}
