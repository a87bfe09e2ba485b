package failover

import (
	"context"
	"log/slog"

	"cencori/internal/core"
	"cencori/internal/providers"
)

// Config controls the executor.
type Config struct {
	Enabled bool
	// Fallback is tried before the built-in chain when set.
	Fallback string
	// MaxAttempts bounds the providers tried per request, primary included.
	// Zero means no bound.
	MaxAttempts int
	// Chains replaces the built-in chain of the named primaries.
	Chains map[string][]string
}

// Observer is notified when a fallback serves a request.
type Observer interface {
	ObserveFailover(from, to string)
}

// Attempt is one provider call made for a request.
type Attempt struct {
	Provider string
	Model    string
	Err      error
}

// Outcome describes which provider served a request.
type Outcome struct {
	// Primary is the provider the model routes to.
	Primary  string
	Provider string
	Model    string
	Attempts []Attempt
	// UsedFallback is true when a provider other than Primary served the request.
	UsedFallback bool
}

// Result is a completed chat and its outcome.
type Result struct {
	Outcome
	Response *core.ChatResponse
}

// StreamResult is an opened stream and its outcome.
type StreamResult struct {
	Outcome
	Stream core.ChunkStream
}

// Executor routes requests and fails over to fallback providers on retryable
// errors. It is safe for concurrent use.
type Executor struct {
	router   *providers.Router
	cfg      Config
	observer Observer
}

// NewExecutor creates an executor over router. observer may be nil.
func NewExecutor(router *providers.Router, cfg Config, observer Observer) *Executor {
	return &Executor{router: router, cfg: cfg, observer: observer}
}

// Plan returns the provider and model pairs a request for model would try,
// in order, without calling any of them.
func (e *Executor) Plan(model string) ([]Attempt, error) {
	primary, upstream, err := e.router.Resolve(model)
	if err != nil {
		return nil, err
	}
	plan := []Attempt{{Provider: primary.Name(), Model: upstream}}
	if !e.cfg.Enabled {
		return plan, nil
	}
	for _, name := range FallbackChain(primary.Name(), e.cfg.Fallback, e.cfg.Chains) {
		if e.cfg.MaxAttempts > 0 && len(plan) >= e.cfg.MaxAttempts {
			break
		}
		if name == primary.Name() || !e.router.HasProvider(name) {
			continue
		}
		plan = append(plan, Attempt{Provider: name, Model: FallbackModel(upstream, name)})
	}
	return plan, nil
}

// Chat completes req on the primary provider, then on each fallback while the
// previous error is retryable.
func (e *Executor) Chat(ctx context.Context, req *core.ChatRequest) (*Result, error) {
	res := &Result{}
	err := e.run(ctx, req, &res.Outcome, func(p core.Provider, r *core.ChatRequest) error {
		resp, err := p.Chat(ctx, r)
		if err == nil {
			res.Response = resp
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Stream opens a stream on the primary provider, then on each fallback while
// the previous error is retryable. Once a stream is open, later failures are
// delivered by the stream and do not fail over.
func (e *Executor) Stream(ctx context.Context, req *core.ChatRequest) (*StreamResult, error) {
	res := &StreamResult{}
	err := e.run(ctx, req, &res.Outcome, func(p core.Provider, r *core.ChatRequest) error {
		s, err := p.Stream(ctx, r)
		if err == nil {
			res.Stream = s
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Executor) run(ctx context.Context, req *core.ChatRequest, out *Outcome, call func(core.Provider, *core.ChatRequest) error) error {
	plan, err := e.Plan(req.Model)
	if err != nil {
		return err
	}
	out.Primary = plan[0].Provider

	var lastErr error
	for i, step := range plan {
		if i > 0 {
			if !core.IsRetryable(lastErr) || ctx.Err() != nil {
				break
			}
			slog.Warn("provider failed, trying fallback",
				"from", out.Primary,
				"to", step.Provider,
				"model", step.Model,
				"error", lastErr,
			)
		}

		p, err := e.router.GetProvider(step.Provider)
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = call(p, req.WithModel(step.Model))
		out.Attempts = append(out.Attempts, Attempt{Provider: step.Provider, Model: step.Model, Err: lastErr})
		if lastErr == nil {
			out.Provider = step.Provider
			out.Model = step.Model
			out.UsedFallback = i > 0
			if out.UsedFallback && e.observer != nil {
				e.observer.ObserveFailover(out.Primary, step.Provider)
			}
			return nil
		}
	}
	return lastErr
}
