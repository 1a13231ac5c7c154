package minio

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"

	"docconv/internal/ports"
)

func TestPutOptions(t *testing.T) {
	opts := putOptions(ports.PutObjectInput{
		ContentType:  "application/pdf",
		CacheControl: "max-age=31536000",
		PublicRead:   true,
	})
	if opts.ContentType != "application/pdf" || opts.CacheControl != "max-age=31536000" {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.UserMetadata["x-amz-acl"] != "public-read" {
		t.Errorf("expected public-read acl, got %v", opts.UserMetadata)
	}

	private := putOptions(ports.PutObjectInput{ContentType: "text/html"})
	if private.UserMetadata != nil {
		t.Errorf("expected no acl metadata, got %v", private.UserMetadata)
	}
}

func TestTranslate(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	if err := translate(missing, "a1/x.docx"); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	if err := translate(denied, "a1/x.docx"); errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("access denied must not map to not found: %v", err)
	}
}
