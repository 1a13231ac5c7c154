package processor

import (
	apperrors "docconv/internal/pkg/errors"
)

// Class is the terminal classification of a job.
type Class int

const (
	ClassSuccess Class = iota
	ClassNotFound
	ClassRenderFailure
	ClassTransient
	ClassUnknown
	ClassCancelled
	ClassMalformed
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassNotFound:
		return "not_found"
	case ClassRenderFailure:
		return "render_failure"
	case ClassTransient:
		return "transient"
	case ClassUnknown:
		return "unknown"
	case ClassCancelled:
		return "cancelled"
	case ClassMalformed:
		return "malformed"
	default:
		return "invalid"
	}
}

// Permanent reports whether retrying can never change the outcome.
func (c Class) Permanent() bool {
	return c == ClassNotFound || c == ClassRenderFailure || c == ClassMalformed
}

// Classify maps a pipeline error to its class. A nil error is a success.
func Classify(err error) Class {
	if err == nil {
		return ClassSuccess
	}
	switch apperrors.GetCode(err) {
	case apperrors.CodeDecode:
		return ClassMalformed
	case apperrors.CodeNotFound:
		return ClassNotFound
	case apperrors.CodeRenderFailure, apperrors.CodeUnsupported:
		return ClassRenderFailure
	case apperrors.CodeCanceled:
		return ClassCancelled
	case apperrors.CodeTimeout, apperrors.CodeUnavailable:
		return ClassTransient
	default:
		return ClassUnknown
	}
}

// Action is what the consumer does with the delivery.
type Action int

const (
	// ActionNone leaves the delivery unresolved for the broker to redeliver.
	ActionNone Action = iota
	ActionAck
	ActionNack
)

func (a Action) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionNack:
		return "nack"
	default:
		return "none"
	}
}

type Decision struct {
	Action  Action
	Requeue bool
	// Publish asks for an outcome message carrying Success.
	Publish bool
	Success bool
}

// Decide maps a class to the delivery decision. attempt is 1-based; once it
// reaches maxAttempts a retryable failure is dropped instead of requeued.
// A maxAttempts of 0 means retry forever.
func Decide(c Class, attempt, maxAttempts int) Decision {
	switch c {
	case ClassSuccess:
		return Decision{Action: ActionAck, Publish: true, Success: true}
	case ClassNotFound, ClassRenderFailure:
		return Decision{Action: ActionAck, Publish: true}
	case ClassMalformed:
		return Decision{Action: ActionNack}
	case ClassCancelled:
		return Decision{Action: ActionNone}
	default:
		if maxAttempts > 0 && attempt >= maxAttempts {
			return Decision{Action: ActionNack, Publish: true}
		}
		return Decision{Action: ActionNack, Requeue: true}
	}
}
