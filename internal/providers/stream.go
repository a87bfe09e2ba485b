package providers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"cencori/internal/core"
)

// Framing is the wire framing of a streamed response body.
type Framing int

const (
	// FramingSSE is Server-Sent Events: "data:" lines, events separated by a blank line.
	FramingSSE Framing = iota
	// FramingNDJSON is one JSON document per line.
	FramingNDJSON
)

// doneSentinel ends OpenAI-style SSE streams.
var doneSentinel = []byte("[DONE]")

// DecodeFunc turns one event payload into a chunk. ok=false skips the event.
// A chunk with a FinishReason ends the stream.
type DecodeFunc func(data []byte) (chunk core.StreamChunk, ok bool, err error)

// StreamConfig configures NewStream.
type StreamConfig struct {
	Provider string
	Framing  Framing
	Decode   DecodeFunc
	// SkipMalformed drops events whose payload fails to decode. Errors reported
	// by the upstream inside the stream still end it.
	SkipMalformed bool
	// Cancel aborts the upstream request. It is called on Close and at end of stream.
	Cancel context.CancelFunc
}

// stream implements core.ChunkStream over an upstream body.
type stream struct {
	cfg    StreamConfig
	body   io.ReadCloser
	reader *bufio.Reader

	done bool
	// pending holds a terminal chunk split off a chunk that also carried text.
	pending   *core.StreamChunk
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps body in a pull-based chunk stream. The stream always ends
// with a chunk carrying a FinishReason unless Recv returns an error; an
// upstream that stops without one gets a synthesized "stop".
func NewStream(body io.ReadCloser, cfg StreamConfig) core.ChunkStream {
	return &stream{
		cfg:    cfg,
		body:   body,
		reader: bufio.NewReader(body),
	}
}

func (s *stream) Recv() (core.StreamChunk, error) {
	if s.pending != nil {
		chunk := *s.pending
		s.pending = nil
		return s.finish(chunk), nil
	}
	for !s.done {
		payload, err := s.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s.finish(core.StreamChunk{FinishReason: core.FinishReasonStop}), nil
			}
			s.done = true
			_ = s.Close()
			return core.StreamChunk{}, core.NormalizeProviderError(s.cfg.Provider, err)
		}

		if s.cfg.Framing == FramingSSE && bytes.Equal(payload, doneSentinel) {
			return s.finish(core.StreamChunk{FinishReason: core.FinishReasonStop}), nil
		}

		chunk, ok, err := s.cfg.Decode(payload)
		if err != nil {
			var pe *core.ProviderError
			if s.cfg.SkipMalformed && !errors.As(err, &pe) {
				continue
			}
			s.done = true
			_ = s.Close()
			return core.StreamChunk{}, s.decodeError(err)
		}
		if !ok {
			continue
		}
		if chunk.Done() {
			if chunk.Delta != "" {
				terminal := core.StreamChunk{FinishReason: chunk.FinishReason, ToolCalls: chunk.ToolCalls}
				s.pending = &terminal
				return core.StreamChunk{Delta: chunk.Delta}, nil
			}
			return s.finish(chunk), nil
		}
		if chunk.Delta == "" && len(chunk.ToolCalls) == 0 {
			continue
		}
		return chunk, nil
	}
	return core.StreamChunk{}, io.EOF
}

// finish marks the stream complete and releases the upstream connection.
func (s *stream) finish(chunk core.StreamChunk) core.StreamChunk {
	s.done = true
	_ = s.Close()
	return chunk
}

func (s *stream) decodeError(err error) error {
	var pe *core.ProviderError
	if errors.As(err, &pe) {
		return core.NormalizeProviderError(s.cfg.Provider, err)
	}
	return core.NewProviderError(s.cfg.Provider, http.StatusBadGateway, "malformed stream event: "+err.Error(), err)
}

// next returns the payload of the next event.
func (s *stream) next() ([]byte, error) {
	if s.cfg.Framing == FramingNDJSON {
		for {
			line, err := s.readLine()
			if len(line) > 0 {
				return line, nil
			}
			if err != nil {
				return nil, err
			}
		}
	}

	var data [][]byte
	for {
		line, err := s.readLine()
		if len(line) == 0 && len(data) > 0 && (err == nil || errors.Is(err, io.EOF)) {
			return bytes.Join(data, []byte("\n")), nil
		}
		if err != nil {
			return nil, err
		}
		field, value, found := bytes.Cut(line, []byte(":"))
		if !found || string(field) != "data" {
			// event:, id:, retry: and ":" comments carry nothing the decoders need.
			continue
		}
		data = append(data, bytes.TrimPrefix(value, []byte(" ")))
	}
}

// readLine returns one trimmed line. A final line without a terminator is
// returned with a nil error; io.EOF follows on the next call.
func (s *stream) readLine() ([]byte, error) {
	line, err := s.reader.ReadBytes('\n')
	line = bytes.TrimSpace(line)
	if len(line) > 0 && errors.Is(err, io.EOF) {
		return line, nil
	}
	return line, err
}

// Close cancels the upstream request and closes the body. It is idempotent.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		if s.cfg.Cancel != nil {
			s.cfg.Cancel()
		}
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
