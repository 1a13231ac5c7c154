package processor

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"

	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/pkg/logger"
	"docconv/internal/ports"
	"docconv/internal/worker/job"
)

type OutputHandler struct {
	sp           ports.StorageProvider
	cacheControl string
	publicRead   bool
	log          *logger.Logger
}

func NewOutputHandler(sp ports.StorageProvider, cacheControl string, publicRead bool, log *logger.Logger) *OutputHandler {
	return &OutputHandler{
		sp:           sp,
		cacheControl: cacheControl,
		publicRead:   publicRead,
		log:          log,
	}
}

// Upload pushes the artifact to the blob store and returns the primary key.
// PDF goes to {uuid}/{baseName}.pdf; an HTML bundle goes to
// {uuid}/presentation.html plus {uuid}/file.files/{asset}.
func (oh *OutputHandler) Upload(ctx context.Context, j job.ConversionJob, a Artifact) (string, error) {
	if a.Format != job.FormatHTML {
		key := job.PDFKey(j)
		if err := oh.put(ctx, key, a.Path); err != nil {
			return "", err
		}
		return key, nil
	}

	key := job.HTMLKey(j)
	uploaded := make([]string, 0, 8)

	assets, err := listAssets(a.AssetsDir)
	if err != nil {
		return "", apperrors.Wrap(err, "processor.upload", "list html assets")
	}
	for _, name := range assets {
		assetKey := job.AssetKey(j, name)
		if err := oh.put(ctx, assetKey, filepath.Join(a.AssetsDir, name)); err != nil {
			oh.rollback(ctx, uploaded)
			return "", err
		}
		uploaded = append(uploaded, assetKey)
	}

	// The page goes last so readers never see it before its images.
	if err := oh.put(ctx, key, a.Path); err != nil {
		oh.rollback(ctx, uploaded)
		return "", err
	}

	oh.log.FromContext(ctx).Debug("html bundle uploaded", "assets", len(assets))
	return key, nil
}

func (oh *OutputHandler) put(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return apperrors.Wrap(err, "processor.upload", "open artifact")
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return apperrors.Wrap(err, "processor.upload", "stat artifact")
	}

	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:    key,
		ContentType:  contentType(localPath),
		CacheControl: oh.cacheControl,
		PublicRead:   oh.publicRead,
		Reader:       f,
		Size:         st.Size(),
	})
	if err != nil {
		return apperrors.Wrap(err, "processor.upload", fmt.Sprintf("failed to upload %s", key))
	}

	oh.log.FromContext(ctx).Info("artifact uploaded",
		"key", key,
		"provider", oh.sp.Provider(),
		"bytes", out.Size,
	)
	return nil
}

// rollback removes already uploaded assets of a partial bundle.
func (oh *OutputHandler) rollback(ctx context.Context, keys []string) {
	cctx := context.WithoutCancel(ctx)
	for _, k := range keys {
		if err := oh.sp.DeleteObject(cctx, k); err != nil {
			oh.log.FromContext(ctx).WithError(err).Warn("rollback delete failed", "key", k)
		}
	}
}

func listAssets(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
