package config_test

import (
	"testing"

	"docconv/internal/config"
	"docconv/internal/worker/processor"
)

func TestZeroMaxAttemptsRequeuesForever(t *testing.T) {
	t.Setenv("AWS_S3_BUCKET", "docs")
	t.Setenv("MAX_ATTEMPTS", "0")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.MaxAttempts != 0 {
		t.Fatalf("expected MAX_ATTEMPTS=0 to be kept, got %d", cfg.Worker.MaxAttempts)
	}

	for _, attempt := range []int{1, 5, 1000} {
		for _, c := range []processor.Class{processor.ClassTransient, processor.ClassUnknown} {
			d := processor.Decide(c, attempt, cfg.Worker.MaxAttempts)
			if d.Action != processor.ActionNack || !d.Requeue || d.Publish {
				t.Errorf("%v attempt %d: expected requeue without publish, got %+v", c, attempt, d)
			}
		}
	}
}

func TestNegativeMaxAttemptsRejected(t *testing.T) {
	t.Setenv("AWS_S3_BUCKET", "docs")
	t.Setenv("MAX_ATTEMPTS", "-2")

	if _, err := config.Load(""); err == nil {
		t.Fatal("expected negative MAX_ATTEMPTS to be rejected")
	}
}
