package core

import "context"

// Provider is the contract every upstream adapter implements.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider identifier used for routing, pricing and errors.
	Name() string

	// Chat performs a non-streaming completion.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream starts a streaming completion. The caller must Close the returned stream.
	Stream(ctx context.Context, req *ChatRequest) (ChunkStream, error)

	// CountTokens returns the number of tokens in text for the given model.
	CountTokens(ctx context.Context, text, model string) (int, error)

	// GetPricing returns the pricing used to bill completions of model.
	GetPricing(ctx context.Context, model string) (ModelPricing, error)

	// TestConnection reports whether the upstream is reachable with the configured credentials.
	TestConnection(ctx context.Context) bool
}

// ChunkStream is a pull-based sequence of stream chunks.
//
// Recv returns chunks in upstream order. After the chunk carrying a FinishReason
// has been returned, Recv returns io.EOF. Any other error is a *ProviderError.
// Close releases the upstream connection and cancels the request; it is safe to
// call more than once.
type ChunkStream interface {
	Recv() (StreamChunk, error)
	Close() error
}

// PricingResolver looks up the price of a model.
type PricingResolver interface {
	Resolve(ctx context.Context, provider, model string) (ModelPricing, error)
}

// Biller is implemented by providers whose billing differs from the standard
// markup rule.
type Biller interface {
	Bill(usage TokenUsage, pricing ModelPricing) CostBreakdown
}
