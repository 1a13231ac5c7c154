// Package processor runs one conversion job from message body to terminal
// decision. The caller owns the delivery and applies the returned Decision.
package processor

import (
	"context"
	"time"

	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/pkg/logger"
	"docconv/internal/ports"
	"docconv/internal/worker/job"
	"docconv/internal/worker/renderer"
	"docconv/internal/worker/workspace"
)

// Ledger statuses.
const (
	StatusDone         = "DONE"
	StatusFailed       = "FAILED"
	StatusRetry        = "RETRY"
	StatusDeadLettered = "DEAD_LETTERED"
	StatusAborted      = "ABORTED"
)

// Ledger keeps a durable record of job runs.
type Ledger interface {
	Start(ctx context.Context, j job.ConversionJob, attempt int) error
	Finish(ctx context.Context, uuid, status, objectKey string, cause error) error
}

// AttemptTracker counts how many times a job has been processed.
type AttemptTracker interface {
	Incr(ctx context.Context, uuid string) (int, error)
	Reset(ctx context.Context, uuid string) error
}

// OutcomePublisher reports a job outcome. It never fails the job.
type OutcomePublisher interface {
	Publish(ctx context.Context, uuid string, success bool)
}

type Recorder interface {
	JobFinished(class, format string, d time.Duration)
	StepFinished(step string, d time.Duration)
}

// Delivery carries the broker metadata the pipeline needs.
type Delivery struct {
	Tag           uint64
	Redelivered   bool
	DeliveryCount int
}

type Result struct {
	UUID      string
	ObjectKey string
	Attempt   int
	Class     Class
	Err       error
	Decision  Decision
}

type Deps struct {
	Workspace     *workspace.Workspace
	Fetcher       Fetcher
	Renderer      renderer.Renderer
	SP            ports.StorageProvider
	Outcome       OutcomePublisher
	Ledger        Ledger
	Attempts      AttemptTracker
	Metrics       Recorder
	RenderTimeout time.Duration
	MaxAttempts   int
	CacheControl  string
	PublicRead    bool
	Log           *logger.Logger
}

type Processor struct {
	ws          *workspace.Workspace
	outcome     OutcomePublisher
	ledger      Ledger
	attempts    AttemptTracker
	metrics     Recorder
	maxAttempts int
	log         *logger.Logger

	inputHandler    *InputHandler
	rendererAdapter *RendererAdapter
	outputHandler   *OutputHandler
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	p := &Processor{
		ws:          d.Workspace,
		outcome:     d.Outcome,
		ledger:      d.Ledger,
		attempts:    d.Attempts,
		metrics:     d.Metrics,
		maxAttempts: d.MaxAttempts,
		log:         log,
	}
	if p.outcome == nil {
		p.outcome = nopOutcome{}
	}
	if p.ledger == nil {
		p.ledger = nopLedger{}
	}
	if p.metrics == nil {
		p.metrics = nopRecorder{}
	}

	p.inputHandler = NewInputHandler(d.Fetcher, d.Workspace, log)
	p.rendererAdapter = NewRendererAdapter(d.Renderer, d.Workspace, d.RenderTimeout, log)
	p.outputHandler = NewOutputHandler(d.SP, d.CacheControl, d.PublicRead, log)
	p.cleanup = NewCleanup(d.Workspace)

	return p
}

// Process runs the pipeline for one message body and returns its terminal
// result. The job workspace is always released before Process returns.
func (p *Processor) Process(ctx context.Context, body []byte, d Delivery) Result {
	start := time.Now()
	log := p.log.FromContext(ctx)

	// 1. Decode
	j, err := job.Decode(body)
	if err != nil {
		res := Result{Class: ClassMalformed, Err: err, Decision: Decide(ClassMalformed, 0, p.maxAttempts)}
		log.Warn("rejecting malformed message",
			"code", string(apperrors.GetCode(err)),
			"error", err.Error(),
			"body", truncate(body, 512),
		)
		p.metrics.JobFinished(res.Class.String(), "", time.Since(start))
		return res
	}

	ctx = logger.ContextWithJobID(ctx, j.UUID)
	log = log.WithJobID(j.UUID)

	res := Result{UUID: j.UUID, Attempt: p.attempt(ctx, j.UUID, d)}
	res.ObjectKey, res.Err = p.run(ctx, j, res.Attempt)

	res.Class = Classify(res.Err)
	if res.Class != ClassSuccess && ctx.Err() != nil {
		res.Class = ClassCancelled
	}
	res.Decision = Decide(res.Class, res.Attempt, p.maxAttempts)

	p.finalize(ctx, j, res)

	args := []any{
		"class", res.Class.String(),
		"action", res.Decision.Action.String(),
		"requeue", res.Decision.Requeue,
		"attempt", res.Attempt,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	switch {
	case res.Err == nil:
		log.Info("job completed", append(args, "key", res.ObjectKey)...)
	case res.Class == ClassCancelled:
		log.Warn("job abandoned", append(args, "error", res.Err.Error())...)
	default:
		log.Error("job failed", append(args, "code", string(apperrors.GetCode(res.Err)), "error", res.Err.Error())...)
	}

	p.metrics.JobFinished(res.Class.String(), string(j.Output), time.Since(start))
	return res
}

// run executes the steps between Received and Uploaded.
func (p *Processor) run(ctx context.Context, j job.ConversionJob, attempt int) (string, error) {
	log := p.log.FromContext(ctx)

	// 2. Resolve
	src := job.Resolve(j)
	log.Info("job received",
		"locator", src.FetchLocator,
		"save_name", src.SaveName,
		"format", string(j.Output),
		"attempt", attempt,
	)

	if err := p.ledger.Start(ctx, j, attempt); err != nil {
		log.WithError(err).Warn("ledger start failed")
	}

	// 3. Prepare workspace
	release, err := p.ws.Acquire(j.UUID)
	defer release()
	if err != nil {
		return "", err
	}

	// 4. Fetch
	step := time.Now()
	sourcePath, err := p.inputHandler.Materialize(ctx, src)
	if err != nil {
		return "", err
	}
	p.metrics.StepFinished("fetch", time.Since(step))
	if err := checkpoint(ctx, "fetch"); err != nil {
		return "", err
	}

	// 5-6. Render and verify
	step = time.Now()
	artifact, err := p.rendererAdapter.Render(ctx, j, sourcePath)
	if err != nil {
		return "", err
	}
	p.metrics.StepFinished("render", time.Since(step))
	if err := checkpoint(ctx, "render"); err != nil {
		return "", err
	}

	// 7. Only slide decks publish their HTML bundle.
	if j.Output == job.FormatHTML && !j.UploadsSidecar() {
		log.Info("html render not upload-eligible, skipping upload", "kind", j.SourceKind().String())
		return "", nil
	}

	// 8. Upload
	step = time.Now()
	key, err := p.outputHandler.Upload(ctx, j, artifact)
	if err != nil {
		return "", err
	}
	p.metrics.StepFinished("upload", time.Since(step))
	return key, nil
}

// finalize runs after the workspace is released. Nothing here can change the
// decision.
func (p *Processor) finalize(ctx context.Context, j job.ConversionJob, res Result) {
	log := p.log.FromContext(ctx)
	p.cleanup.Finish(res.Decision)

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if p.attempts != nil && res.Decision.Action != ActionNone && !res.Decision.Requeue {
		if err := p.attempts.Reset(bg, j.UUID); err != nil {
			log.WithError(err).Warn("attempt counter reset failed")
		}
	}

	if err := p.ledger.Finish(bg, j.UUID, statusOf(res), res.ObjectKey, res.Err); err != nil {
		log.WithError(err).Warn("ledger finish failed")
	}

	if res.Decision.Publish {
		p.outcome.Publish(ctx, j.UUID, res.Decision.Success)
	}
}

// attempt is 1-based. Redis is authoritative; without it the broker's
// delivery count, then the redelivered flag, give a lower bound.
func (p *Processor) attempt(ctx context.Context, uuid string, d Delivery) int {
	if p.attempts != nil {
		n, err := p.attempts.Incr(ctx, uuid)
		if err == nil {
			return n
		}
		p.log.FromContext(ctx).WithError(err).Warn("attempt tracker unavailable, using delivery metadata")
	}
	if d.DeliveryCount > 0 {
		return d.DeliveryCount + 1
	}
	if d.Redelivered {
		return 2
	}
	return 1
}

func checkpoint(ctx context.Context, after string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(err, "processor."+after, "job canceled")
	}
	return nil
}

func statusOf(res Result) string {
	switch {
	case res.Class == ClassSuccess:
		return StatusDone
	case res.Decision.Action == ActionNone:
		return StatusAborted
	case res.Decision.Requeue:
		return StatusRetry
	case res.Decision.Action == ActionNack:
		return StatusDeadLettered
	default:
		return StatusFailed
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
