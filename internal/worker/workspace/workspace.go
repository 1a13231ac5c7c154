// Package workspace owns the on-disk scratch area of the worker: one
// temp/{uuid}/ directory per job and the shared result/ directory the
// renderer writes into.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/pkg/logger"
	"docconv/internal/worker/job"
)

const (
	tempDir   = "temp"
	resultDir = "result"

	resultBase = "file"
)

type Workspace struct {
	root string
	log  *logger.Logger
}

// New prepares temp/ and result/ under root.
func New(root string, log *logger.Logger) (*Workspace, error) {
	if log == nil {
		log = logger.Discard()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	for _, d := range []string{tempDir, resultDir} {
		if err := os.MkdirAll(filepath.Join(abs, d), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", d, err)
		}
	}
	return &Workspace{root: abs, log: log.WithComponent("workspace")}, nil
}

// Dir is the scratch directory of a job.
func (w *Workspace) Dir(uuid string) string {
	return filepath.Join(w.root, tempDir, uuid)
}

// Reset deletes and recreates temp/{uuid}/.
func (w *Workspace) Reset(uuid string) error {
	if !job.ValidUUID(uuid) {
		return apperrors.DecodeField("uuid", "uuid must be a single path segment").WithField("uuid", uuid)
	}
	dir := w.Dir(uuid)
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.Wrap(err, "workspace.reset", "remove job dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(err, "workspace.reset", "create job dir")
	}
	return nil
}

// Release removes temp/{uuid}/. Failures are logged only.
func (w *Workspace) Release(uuid string) {
	if !job.ValidUUID(uuid) {
		return
	}
	if err := os.RemoveAll(w.Dir(uuid)); err != nil {
		w.log.WithJobID(uuid).WithError(err).Warn("cleanup temp failed")
	}
}

// Acquire resets the job directory and returns a func that releases it.
// The release func is safe to call any number of times and is never nil.
func (w *Workspace) Acquire(uuid string) (release func(), err error) {
	var once sync.Once
	release = func() {
		once.Do(func() { w.Release(uuid) })
	}
	if err := w.Reset(uuid); err != nil {
		release()
		return release, err
	}
	return release, nil
}

// TempPath maps a save name like "{uuid}/file.docx" under temp/.
func (w *Workspace) TempPath(saveName string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(saveName))
	return filepath.Join(w.root, tempDir, strings.TrimPrefix(clean, string(filepath.Separator)))
}

// ResultPath is the fixed location of the rendered artifact for format.
func (w *Workspace) ResultPath(format job.Format) (string, error) {
	dir := filepath.Join(w.root, resultDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Wrap(err, "workspace.result", "create result dir")
	}
	ext := string(format)
	if ext == "" {
		ext = string(job.FormatPDF)
	}
	return filepath.Join(dir, resultBase+"."+ext), nil
}

// ResultAssetsDir holds the sidecar files of an HTML render.
func (w *Workspace) ResultAssetsDir() string {
	return filepath.Join(w.root, resultDir, resultBase+".files")
}

// ClearResult empties result/. Failures are logged only.
func (w *Workspace) ClearResult() {
	dir := filepath.Join(w.root, resultDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.WithError(err).Warn("list result dir failed")
		}
		return
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			w.log.WithError(err).Warn("clear result failed", "entry", e.Name())
		}
	}
}
