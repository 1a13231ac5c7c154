package processor

import (
	"context"

	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/pkg/logger"
	"docconv/internal/worker/job"
	"docconv/internal/worker/workspace"
)

// Fetcher downloads a locator to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, locator, dst string, isURL bool) (int64, error)
}

type InputHandler struct {
	fetcher Fetcher
	ws      *workspace.Workspace
	log     *logger.Logger
}

func NewInputHandler(fetcher Fetcher, ws *workspace.Workspace, log *logger.Logger) *InputHandler {
	return &InputHandler{fetcher: fetcher, ws: ws, log: log}
}

// Materialize downloads the job source into temp/{saveName} and returns the
// local path.
func (ih *InputHandler) Materialize(ctx context.Context, src job.ResolvedSource) (string, error) {
	dst := ih.ws.TempPath(src.SaveName)

	n, err := ih.fetcher.Fetch(ctx, src.FetchLocator, dst, src.IsURL())
	if err != nil {
		return "", apperrors.Wrap(err, "processor.fetch", "failed to fetch source")
	}

	ih.log.FromContext(ctx).Debug("source fetched", "path", dst, "bytes", n)
	return dst, nil
}
