// Package requestlog records one billing entry per completion: who served it,
// the tokens it used and what it cost.
package requestlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"cencori/internal/core"
	"cencori/internal/messages"
)

// Store persists entries. Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple entries. Called by the Logger on flush.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces any pending writes to complete.
	Flush(ctx context.Context) error

	// Close releases resources. The underlying connection is owned by the
	// storage layer and stays open.
	Close() error
}

// Status values of an entry.
const (
	StatusSuccess         = "success"
	StatusSuccessFallback = "success_fallback"
	StatusError           = "error"
)

// Entry is one logged completion.
type Entry struct {
	ID        string    `json:"id" bson:"_id"`
	RequestID string    `json:"request_id" bson:"request_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	Provider string `json:"provider" bson:"provider"`
	Model    string `json:"model" bson:"model"`
	// RequestedModel is the model the caller asked for, before routing and failover.
	RequestedModel string `json:"requested_model" bson:"requested_model"`
	UserID         string `json:"user_id,omitempty" bson:"user_id,omitempty"`

	PromptTokens     int `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" bson:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" bson:"total_tokens"`

	ProviderCostUSD  float64 `json:"provider_cost_usd" bson:"provider_cost_usd"`
	CencoriChargeUSD float64 `json:"cencori_charge_usd" bson:"cencori_charge_usd"`
	MarkupPercentage float64 `json:"markup_percentage" bson:"markup_percentage"`

	LatencyMs    int64  `json:"latency_ms" bson:"latency_ms"`
	FinishReason string `json:"finish_reason,omitempty" bson:"finish_reason,omitempty"`
	Status       string `json:"status" bson:"status"`
	ErrorMessage string `json:"error_message,omitempty" bson:"error_message,omitempty"`
	Streamed     bool   `json:"streamed" bson:"streamed"`

	// PromptHash fingerprints the conversation so repeated prompts can be grouped.
	PromptHash string `json:"prompt_hash" bson:"prompt_hash"`
}

// Config holds request log configuration.
type Config struct {
	Enabled bool

	// BufferSize is the number of entries queued before writes are dropped.
	BufferSize int

	// FlushInterval is how often buffered entries are written.
	FlushInterval time.Duration

	// RetentionDays is how long entries are kept (0 = forever).
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}

// PromptHash returns the xxhash fingerprint of a conversation.
func PromptHash(msgs []core.Message) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(messages.Combine(msgs)))
}

func newEntry(ctx context.Context, req *core.ChatRequest) *Entry {
	return &Entry{
		ID:             uuid.NewString(),
		RequestID:      core.GetRequestID(ctx),
		Timestamp:      time.Now().UTC(),
		RequestedModel: req.Model,
		UserID:         req.UserID,
		PromptHash:     PromptHash(req.Messages),
	}
}

// FromResponse builds the entry of a completed chat. fallback marks a
// response served by a provider other than the routed one.
func FromResponse(ctx context.Context, req *core.ChatRequest, resp *core.ChatResponse, fallback bool) *Entry {
	e := newEntry(ctx, req)
	e.Provider = resp.Provider
	e.Model = resp.Model
	e.setUsage(resp.Usage, resp.Cost)
	e.LatencyMs = resp.LatencyMs
	e.FinishReason = string(resp.FinishReason)
	e.Status = StatusSuccess
	if fallback {
		e.Status = StatusSuccessFallback
	}
	return e
}

// FromError builds the entry of a failed request. The provider is taken from
// err when it is a *core.ProviderError.
func FromError(ctx context.Context, req *core.ChatRequest, err error, latency time.Duration) *Entry {
	e := newEntry(ctx, req)
	e.Model = req.Model
	e.LatencyMs = latency.Milliseconds()
	e.Status = StatusError
	e.FinishReason = string(core.FinishReasonError)
	e.ErrorMessage = err.Error()

	var pe *core.ProviderError
	if errors.As(err, &pe) {
		e.Provider = pe.Provider
		e.ErrorMessage = pe.Message
	}
	return e
}

func (e *Entry) setUsage(u core.TokenUsage, c core.CostBreakdown) {
	e.PromptTokens = u.PromptTokens
	e.CompletionTokens = u.CompletionTokens
	e.TotalTokens = u.TotalTokens
	e.ProviderCostUSD = c.ProviderCostUSD
	e.CencoriChargeUSD = c.CencoriChargeUSD
	e.MarkupPercentage = c.MarkupPercentage
}
