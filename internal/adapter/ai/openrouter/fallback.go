package openrouter

import (
	"context"
	"log/slog"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// runChain tries the primary model and then each roster entry that was not
// already tried. The first success is remembered under the logical name.
func (c *Client) runChain(ctx context.Context, r *run, primary string) (*domain.Completion, *domain.Error) {
	lg := observability.Logger(ctx)
	candidates := c.candidates(primary)

	for i, model := range candidates {
		if i > 0 {
			if r.hasTried(model) {
				continue
			}
			if r.attempts >= c.opts.MaxAttempts {
				return nil, c.ceilingError(r)
			}
			observability.RecordFallback(r.lastModel)
			lg.Info("orchestration step",
				slog.String("state", string(StateFallingBack)),
				observability.ModelAttrs(r.logical, model, r.attempts),
				slog.String("from", r.lastModel),
				slog.String("reason", string(r.last.Kind)))
		}

		comp, outcome := c.attemptModel(ctx, r, model)
		switch outcome {
		case outcomeSucceeded:
			if model != primary {
				c.remember(r, primary, model)
			}
			return comp, nil
		case outcomeTerminal:
			return nil, asDomainError(r.last, model, r.tried, r.attempts, r.lastErr)
		case outcomeCeiling:
			return nil, c.ceilingError(r)
		}
	}
	// Roster exhausted: surface the last failure with the full trail.
	return nil, asDomainError(r.last, r.lastModel, r.tried, r.attempts, r.lastErr)
}

// candidates is the primary model followed by the roster minus the primary.
func (c *Client) candidates(primary string) []string {
	roster := c.resolver.Fallback()
	out := make([]string, 0, len(roster)+1)
	out = append(out, primary)
	for _, m := range roster {
		if m != primary {
			out = append(out, m)
		}
	}
	return out
}

// remember stores a fallback winner under the logical name that was asked
// for; literal model ids are mapped back through the standard table.
func (c *Client) remember(r *run, primary, winner string) {
	name := r.logical
	if !c.resolver.Known(name) {
		logical, ok := c.resolver.LogicalFor(primary)
		if !ok {
			return
		}
		name = logical
	}
	if c.resolver.RememberSuccess(name, winner, r.preferFree) {
		slog.Info("remembered fallback model",
			slog.String("logical", name),
			slog.String("model", winner))
	}
}

func (c *Client) ceilingError(r *run) *domain.Error {
	e := asDomainError(r.last, r.lastModel, r.tried, r.attempts, r.lastErr)
	e.Kind = domain.KindExhaustedAttempts
	if r.last.Message != "" {
		e.Message = "attempt limit reached, last error: " + r.last.Message
	} else {
		e.Message = "attempt limit reached"
	}
	return e
}
