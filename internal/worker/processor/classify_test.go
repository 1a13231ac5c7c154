package processor

import (
	"context"
	"errors"
	"testing"

	apperrors "docconv/internal/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassSuccess},
		{"decode", apperrors.Decode("bad"), ClassMalformed},
		{"not found", apperrors.NotFound("source", "a1"), ClassNotFound},
		{"wrapped not found", apperrors.Wrap(apperrors.NotFound("source", "a1"), "processor.fetch", "failed"), ClassNotFound},
		{"render failure", apperrors.RenderFailure("no output"), ClassRenderFailure},
		{"unsupported", apperrors.Unsupported("spreadsheet to html"), ClassRenderFailure},
		{"timeout", apperrors.Timeout("render"), ClassTransient},
		{"unavailable", apperrors.Unavailable("storage"), ClassTransient},
		{"canceled", apperrors.Wrap(context.Canceled, "processor.fetch", "aborted"), ClassCancelled},
		{"bare canceled", context.Canceled, ClassCancelled},
		{"plain", errors.New("disk full"), ClassUnknown},
		{"internal", apperrors.Internal("boom"), ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		class   Class
		attempt int
		max     int
		want    Decision
	}{
		{"success", ClassSuccess, 1, 5, Decision{Action: ActionAck, Publish: true, Success: true}},
		{"not found", ClassNotFound, 1, 5, Decision{Action: ActionAck, Publish: true}},
		{"render failure", ClassRenderFailure, 3, 5, Decision{Action: ActionAck, Publish: true}},
		{"transient first", ClassTransient, 1, 5, Decision{Action: ActionNack, Requeue: true}},
		{"unknown below budget", ClassUnknown, 4, 5, Decision{Action: ActionNack, Requeue: true}},
		{"transient exhausted", ClassTransient, 5, 5, Decision{Action: ActionNack, Publish: true}},
		{"unknown over budget", ClassUnknown, 9, 5, Decision{Action: ActionNack, Publish: true}},
		{"unbounded retries", ClassTransient, 100, 0, Decision{Action: ActionNack, Requeue: true}},
		{"malformed", ClassMalformed, 0, 5, Decision{Action: ActionNack}},
		{"cancelled", ClassCancelled, 1, 5, Decision{Action: ActionNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.class, tt.attempt, tt.max); got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecisionInvariants(t *testing.T) {
	classes := []Class{ClassSuccess, ClassNotFound, ClassRenderFailure, ClassTransient, ClassUnknown, ClassCancelled, ClassMalformed}
	for _, c := range classes {
		for attempt := 0; attempt <= 6; attempt++ {
			d := Decide(c, attempt, 5)
			if d.Success && c != ClassSuccess {
				t.Errorf("%s: only success may publish success", c)
			}
			if d.Requeue && d.Action != ActionNack {
				t.Errorf("%s: requeue without nack", c)
			}
			if d.Requeue && d.Publish {
				t.Errorf("%s: a requeued job must not publish", c)
			}
			if c == ClassCancelled && (d.Action != ActionNone || d.Publish) {
				t.Errorf("cancelled must neither settle nor publish")
			}
		}
	}
}

func TestClassStrings(t *testing.T) {
	if ClassRenderFailure.String() != "render_failure" || ActionNack.String() != "nack" {
		t.Error("unexpected string forms")
	}
	if !ClassNotFound.Permanent() || ClassTransient.Permanent() {
		t.Error("unexpected permanence")
	}
}
