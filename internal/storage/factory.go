package storage

import (
	"context"
	"fmt"

	"docconv/internal/adapters/storage/gdrive"
	"docconv/internal/adapters/storage/localfs"
	"docconv/internal/adapters/storage/minio"
	"docconv/internal/adapters/storage/s3"
	"docconv/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewProvider builds the blob store selected by STORAGE_PROVIDER.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	switch cfg.Storage.Provider {
	case config.ProviderS3:
		st, err := s3.New(ctx, s3.Options{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return st, nil

	case config.ProviderMinIO:
		st, err := minio.New(ctx, minio.Options{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
		})
		if err != nil {
			return nil, err
		}
		return st, nil

	case config.ProviderLocalFS:
		return localfs.New(cfg.Storage.LocalRoot), nil

	case config.ProviderGDrive:
		return newGDriveProvider(ctx, cfg.GDrive)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

// GDriveOAuthConfig limits the worker to files it created itself.
func GDriveOAuthConfig(gc config.GDriveConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     gc.ClientID,
		ClientSecret: gc.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}

func newGDriveProvider(ctx context.Context, gc config.GDriveConfig) (Provider, error) {
	conf := GDriveOAuthConfig(gc, "")

	tok := &oauth2.Token{RefreshToken: gc.RefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient(srv, gc.FolderID), nil
}
