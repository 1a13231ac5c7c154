package processor

import (
	"context"
	"time"

	"docconv/internal/worker/job"
)

type nopOutcome struct{}

func (nopOutcome) Publish(context.Context, string, bool) {}

type nopLedger struct{}

func (nopLedger) Start(context.Context, job.ConversionJob, int) error { return nil }

func (nopLedger) Finish(context.Context, string, string, string, error) error { return nil }

type nopRecorder struct{}

func (nopRecorder) JobFinished(string, string, time.Duration) {}

func (nopRecorder) StepFinished(string, time.Duration) {}
