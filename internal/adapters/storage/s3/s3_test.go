package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"docconv/internal/ports"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"typed no such key", fmt.Errorf("op: %w", &types.NoSuchKey{}), true},
		{"generic api not found", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain", errors.New("dial tcp: timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	st, err := New(context.Background(), Options{
		Bucket:       "docs",
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		AccessKey:    "key",
		SecretKey:    "secret",
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if st.Provider() != "s3" || st.bucket != "docs" {
		t.Errorf("unexpected store %+v", st)
	}
	if _, err := st.PutObject(context.Background(), ports.PutObjectInput{}); err == nil {
		t.Error("expected empty key to be rejected")
	}
}
