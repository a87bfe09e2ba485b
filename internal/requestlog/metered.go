package requestlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cencori/internal/core"
	"cencori/internal/messages"
)

// UsageObserver receives the usage of every logged completion.
type UsageObserver interface {
	ObserveUsage(provider, model string, usage core.TokenUsage, cost core.CostBreakdown)
}

// StreamInfo describes the request behind a metered stream.
type StreamInfo struct {
	// Provider served the stream and prices it.
	Provider core.Provider
	// Request is the request as sent upstream.
	Request *core.ChatRequest
	// RequestedModel is the model the caller asked for.
	RequestedModel string
	Fallback       bool
	Start          time.Time
	Observer       UsageObserver
}

// MeteredStream wraps a core.ChunkStream and logs one entry when the stream
// ends, fails or is closed. Streams carry no usage, so tokens are estimated
// from the conversation and the accumulated deltas.
type MeteredStream struct {
	core.ChunkStream
	ctx    context.Context
	logger LoggerInterface
	info   StreamInfo

	text   strings.Builder
	finish core.FinishReason
	err    error
	once   sync.Once
}

// NewMeteredStream wraps s. ctx supplies the request ID; its cancellation
// does not prevent the entry from being written.
func NewMeteredStream(ctx context.Context, s core.ChunkStream, logger LoggerInterface, info StreamInfo) *MeteredStream {
	if info.Start.IsZero() {
		info.Start = time.Now()
	}
	if info.RequestedModel == "" {
		info.RequestedModel = info.Request.Model
	}
	return &MeteredStream{
		ChunkStream: s,
		ctx:         context.WithoutCancel(ctx),
		logger:      logger,
		info:        info,
	}
}

// Recv implements core.ChunkStream.
func (m *MeteredStream) Recv() (core.StreamChunk, error) {
	chunk, err := m.ChunkStream.Recv()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			m.err = err
		}
		m.record()
		return chunk, err
	}
	m.text.WriteString(chunk.Delta)
	if chunk.FinishReason != "" {
		m.finish = chunk.FinishReason
	}
	return chunk, nil
}

// Close logs the entry if the stream was abandoned, then closes it.
func (m *MeteredStream) Close() error {
	m.record()
	return m.ChunkStream.Close()
}

// Text returns the text received so far.
func (m *MeteredStream) Text() string {
	return m.text.String()
}

func (m *MeteredStream) record() {
	m.once.Do(func() {
		entry := m.entry()
		if m.info.Observer != nil && entry.Status != StatusError {
			m.info.Observer.ObserveUsage(entry.Provider, entry.Model,
				core.TokenUsage{PromptTokens: entry.PromptTokens, CompletionTokens: entry.CompletionTokens, TotalTokens: entry.TotalTokens},
				core.CostBreakdown{ProviderCostUSD: entry.ProviderCostUSD, CencoriChargeUSD: entry.CencoriChargeUSD, MarkupPercentage: entry.MarkupPercentage},
			)
		}
		if m.logger != nil {
			m.logger.Write(entry)
		}
	})
}

func (m *MeteredStream) entry() *Entry {
	req := m.info.Request
	original := req.WithModel(m.info.RequestedModel)

	if m.err != nil {
		e := FromError(m.ctx, original, m.err, time.Since(m.info.Start))
		e.Provider = m.info.Provider.Name()
		e.Model = req.Model
		e.Streamed = true
		return e
	}

	usage := core.NewTokenUsage(messages.EstimateMessagesTokens(req.Messages), messages.EstimateTokenCount(m.text.String()))
	pricing, err := m.info.Provider.GetPricing(m.ctx, req.Model)
	if err != nil {
		slog.Warn("pricing unavailable for streamed request, billing at zero",
			"provider", m.info.Provider.Name(),
			"model", req.Model,
			"error", err,
		)
		pricing = core.ZeroPricing
	}

	e := newEntry(m.ctx, original)
	e.Provider = m.info.Provider.Name()
	e.Model = req.Model
	e.setUsage(usage, core.BillFor(m.info.Provider, usage, pricing))
	e.LatencyMs = time.Since(m.info.Start).Milliseconds()
	e.FinishReason = string(m.finish)
	e.Streamed = true
	e.Status = StatusSuccess
	if m.info.Fallback {
		e.Status = StatusSuccessFallback
	}
	return e
}
