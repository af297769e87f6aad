package openrouter

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/keypool"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "default"

// State names the orchestration steps; they appear in logs.
type State string

const (
	StateResolving         State = "RESOLVING"
	StateRequesting        State = "REQUESTING"
	StateSucceeded         State = "SUCCEEDED"
	StateRetryingSameModel State = "RETRYING_SAME_MODEL"
	StateRotatingCred      State = "ROTATING_CREDENTIAL"
	StateFallingBack       State = "FALLING_BACK"
	StateFailed            State = "FAILED"
)

// modelOutcome is how one model's turn in the run ended.
type modelOutcome int

const (
	outcomeSucceeded modelOutcome = iota
	outcomeFallBack
	outcomeTerminal
	outcomeCeiling
)

// run carries the state of one orchestration.
type run struct {
	req        domain.ChatRequest
	logical    string
	preferFree bool
	key        string
	attempts   int
	tried      []string
	last       Classification
	lastModel  string
	lastErr    error
}

func (r *run) markTried(model string) {
	for _, m := range r.tried {
		if m == model {
			return
		}
	}
	r.tried = append(r.tried, model)
}

func (r *run) hasTried(model string) bool {
	for _, m := range r.tried {
		if m == model {
			return true
		}
	}
	return false
}

// ChatCompletion resolves req.Model and drives the request through the
// retry, rotation and fallback states. Every failure is a *domain.Error.
func (c *Client) ChatCompletion(ctx context.Context, req domain.ChatRequest) (*domain.Completion, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("op=openrouter.ChatCompletion: %w: no messages", domain.ErrInvalidArgument)
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}
	tracer := otel.Tracer("openrouter.orchestrator")
	ctx, span := tracer.Start(ctx, "Orchestrator.ChatCompletion")
	defer span.End()

	r := &run{req: req, logical: req.Model, preferFree: c.PreferFree()}
	lg := observability.Logger(ctx)

	primary := c.resolver.Resolve(r.logical, r.preferFree)
	span.SetAttributes(
		attribute.String("ai.logical_model", r.logical),
		attribute.String("ai.model", primary),
		attribute.Bool("ai.prefer_free", r.preferFree),
	)
	lg.Debug("orchestration step", slog.String("state", string(StateResolving)), observability.ModelAttrs(r.logical, primary, 0))

	key, ok := c.acquire(ctx)
	if !ok {
		err := &domain.Error{
			Kind:    domain.KindCredentialExhausted,
			Message: "no credential available",
			Model:   primary,
			Err:     domain.ErrCredentialExhausted,
		}
		return nil, c.fail(ctx, span, r, err)
	}
	r.key = key

	comp, err := c.runChain(ctx, r, primary)
	if err != nil {
		return nil, c.fail(ctx, span, r, err)
	}
	comp.Attempts = r.attempts
	comp.Tried = append([]string(nil), r.tried...)
	observability.RecordOrchestration(string(StateSucceeded))
	span.SetAttributes(attribute.Int("ai.attempts", r.attempts), attribute.String("ai.model.used", comp.Model))
	lg.Info("orchestration succeeded",
		observability.ModelAttrs(r.logical, r.lastModel, r.attempts),
		slog.Any("tried", r.tried))
	return comp, nil
}

// attemptModel keeps REQUESTING one model until it succeeds, needs to fall
// back, fails terminally, or the run hits the attempt ceiling.
func (c *Client) attemptModel(ctx context.Context, r *run, model string) (*domain.Completion, modelOutcome) {
	lg := observability.Logger(ctx)
	r.markTried(model)
	r.lastModel = model
	transportLeft := c.opts.TransportRetries
	bo := c.newBackoff()

	for {
		if r.attempts >= c.opts.MaxAttempts {
			return nil, outcomeCeiling
		}
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx, keypool.Hint(r.key)); err != nil {
				r.last = Classification{Kind: domain.KindTransient, Message: "rate limit wait: " + err.Error()}
				r.lastErr = err
				return nil, outcomeTerminal
			}
		}
		r.attempts++
		lg.Debug("orchestration step", slog.String("state", string(StateRequesting)), observability.ModelAttrs(r.logical, model, r.attempts))

		comp, cls := c.send(ctx, r.key, model, r.req)
		if cls.OK() {
			return comp, outcomeSucceeded
		}
		r.last = cls
		r.lastErr = nil
		if err := ctx.Err(); err != nil {
			r.last.Kind = domain.KindTransient
			r.lastErr = err
			return nil, outcomeTerminal
		}

		switch cls.Kind {
		case domain.KindTransient:
			if transportLeft == 0 {
				return nil, outcomeFallBack
			}
			transportLeft--
			delay := bo.NextBackOff()
			lg.Info("orchestration step",
				slog.String("state", string(StateRetryingSameModel)),
				observability.ModelAttrs(r.logical, model, r.attempts),
				slog.Duration("backoff", delay),
				slog.String("reason", cls.Message))
			if err := c.opts.Sleep(ctx, delay); err != nil {
				r.lastErr = err
				return nil, outcomeTerminal
			}
		case domain.KindCredentialExhausted:
			lg.Info("orchestration step",
				slog.String("state", string(StateRotatingCred)),
				observability.ModelAttrs(r.logical, model, r.attempts),
				slog.Int("status", cls.Status))
			key, ok := c.rotate(ctx, r.key)
			r.key = key
			if !ok {
				return nil, outcomeFallBack
			}
		case domain.KindModelUnavailable:
			return nil, outcomeFallBack
		default:
			return nil, outcomeTerminal
		}
	}
}

// fail logs, records and annotates the terminal error.
func (c *Client) fail(ctx context.Context, span trace.Span, r *run, err *domain.Error) error {
	if err.Tried == nil {
		err.Tried = append([]string(nil), r.tried...)
	}
	err.Attempts = r.attempts
	observability.RecordOrchestration(string(err.Kind))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	observability.Logger(ctx).Warn("orchestration failed",
		slog.String("state", string(StateFailed)),
		slog.String("kind", string(err.Kind)),
		observability.ModelAttrs(r.logical, err.Model, r.attempts),
		slog.Int("status", err.Status),
		slog.Any("tried", err.Tried),
		slog.String("message", err.Message))
	return err
}
