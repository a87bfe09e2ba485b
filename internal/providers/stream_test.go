package providers

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"cencori/internal/core"
)

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

func decodeTestEvent(data []byte) (core.StreamChunk, bool, error) {
	var ev struct {
		Text   string `json:"text"`
		Finish string `json:"finish"`
		Skip   bool   `json:"skip"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.StreamChunk{}, false, err
	}
	if ev.Error != "" {
		return core.StreamChunk{}, false, core.NewRateLimitError("", ev.Error)
	}
	if ev.Skip {
		return core.StreamChunk{}, false, nil
	}
	return core.StreamChunk{Delta: ev.Text, FinishReason: core.FinishReason(ev.Finish)}, true, nil
}

func collect(t *testing.T, s core.ChunkStream) ([]core.StreamChunk, error) {
	t.Helper()
	var chunks []core.StreamChunk
	for i := 0; i < 100; i++ {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
	t.Fatal("stream did not terminate")
	return nil, nil
}

func TestStream_SSE(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDeltas string
		wantFinish core.FinishReason
	}{
		{
			name:       "done sentinel",
			body:       "data: {\"text\":\"Hel\"}\n\ndata: {\"text\":\"lo\"}\n\ndata: [DONE]\n\n",
			wantDeltas: "Hello",
			wantFinish: core.FinishReasonStop,
		},
		{
			name:       "upstream finish reason",
			body:       "data: {\"text\":\"a\"}\n\ndata: {\"finish\":\"length\"}\n\ndata: [DONE]\n\n",
			wantDeltas: "a",
			wantFinish: core.FinishReasonLength,
		},
		{
			name:       "finish reason with text",
			body:       "data: {\"text\":\"a\"}\n\ndata: {\"text\":\"b\",\"finish\":\"length\"}\n\n",
			wantDeltas: "ab",
			wantFinish: core.FinishReasonLength,
		},
		{
			name:       "eof without terminator",
			body:       "data: {\"text\":\"x\"}\n\n",
			wantDeltas: "x",
			wantFinish: core.FinishReasonStop,
		},
		{
			name:       "final event without trailing newline",
			body:       "data: {\"text\":\"x\"}\n\ndata: {\"text\":\"y\"}",
			wantDeltas: "xy",
			wantFinish: core.FinishReasonStop,
		},
		{
			name:       "comments and event lines",
			body:       ": ping\nevent: delta\ndata: {\"text\":\"z\"}\r\n\r\ndata: {\"skip\":true}\n\ndata: [DONE]\n\n",
			wantDeltas: "z",
			wantFinish: core.FinishReasonStop,
		},
		{
			name:       "empty body",
			body:       "",
			wantFinish: core.FinishReasonStop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &trackingBody{Reader: strings.NewReader(tt.body)}
			canceled := false
			s := NewStream(body, StreamConfig{
				Provider: "test",
				Framing:  FramingSSE,
				Decode:   decodeTestEvent,
				Cancel:   func() { canceled = true },
			})

			chunks, err := collect(t, s)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(chunks) == 0 {
				t.Fatal("expected at least the terminal chunk")
			}

			var deltas strings.Builder
			for _, c := range chunks[:len(chunks)-1] {
				if c.Done() {
					t.Errorf("non-final chunk carries finish reason %q", c.FinishReason)
				}
				deltas.WriteString(c.Delta)
			}
			last := chunks[len(chunks)-1]
			if last.Delta != "" {
				t.Errorf("terminal chunk carries text %q", last.Delta)
			}

			if deltas.String() != tt.wantDeltas {
				t.Errorf("deltas = %q, want %q", deltas.String(), tt.wantDeltas)
			}
			if last.FinishReason != tt.wantFinish {
				t.Errorf("finish = %q, want %q", last.FinishReason, tt.wantFinish)
			}
			if !canceled || body.closed != 1 {
				t.Errorf("canceled=%v closed=%d, want upstream released once", canceled, body.closed)
			}

			if _, err := s.Recv(); !errors.Is(err, io.EOF) {
				t.Errorf("Recv after end = %v, want io.EOF", err)
			}
			if err := s.Close(); err != nil || body.closed != 1 {
				t.Errorf("Close should be idempotent, closed=%d", body.closed)
			}
		})
	}
}

func TestStream_MalformedEvent(t *testing.T) {
	body := "data: {\"text\":\"ok\"}\n\ndata: {not json\n\ndata: {\"text\":\"after\"}\n\n"

	t.Run("surfaced", func(t *testing.T) {
		s := NewStream(io.NopCloser(strings.NewReader(body)), StreamConfig{
			Provider: "openai",
			Framing:  FramingSSE,
			Decode:   decodeTestEvent,
		})
		chunks, err := collect(t, s)
		if len(chunks) != 1 || chunks[0].Delta != "ok" {
			t.Errorf("chunks = %+v", chunks)
		}
		var pe *core.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *core.ProviderError, got %v", err)
		}
		if pe.Provider != "openai" || !pe.IsRetryable() {
			t.Errorf("error = %+v", pe)
		}
	})

	t.Run("skipped", func(t *testing.T) {
		s := NewStream(io.NopCloser(strings.NewReader(body)), StreamConfig{
			Provider:      "custom",
			Framing:       FramingSSE,
			Decode:        decodeTestEvent,
			SkipMalformed: true,
		})
		chunks, err := collect(t, s)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chunks) != 3 || chunks[1].Delta != "after" || !chunks[2].Done() {
			t.Errorf("chunks = %+v", chunks)
		}
	})

	t.Run("upstream error ends a skipping stream", func(t *testing.T) {
		body := "data: {\"text\":\"ok\"}\n\ndata: {not json\n\ndata: {\"error\":\"slow down\"}\n\ndata: {\"text\":\"never\"}\n\n"
		tb := &trackingBody{Reader: strings.NewReader(body)}
		s := NewStream(tb, StreamConfig{
			Provider:      "custom",
			Framing:       FramingSSE,
			Decode:        decodeTestEvent,
			SkipMalformed: true,
		})
		chunks, err := collect(t, s)
		if len(chunks) != 1 || chunks[0].Delta != "ok" {
			t.Errorf("chunks = %+v", chunks)
		}
		var pe *core.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *core.ProviderError, got %v", err)
		}
		if pe.Provider != "custom" || pe.Type != core.ErrorTypeRateLimit || !pe.IsRetryable() {
			t.Errorf("error = %+v", pe)
		}
		if tb.closed == 0 {
			t.Error("body was not closed")
		}
	})
}

func TestStream_NDJSON(t *testing.T) {
	body := "{\"text\":\"one \"}\n\n{\"text\":\"two\"}\n{\"finish\":\"stop\"}\n{\"text\":\"ignored\"}\n"
	s := NewStream(io.NopCloser(strings.NewReader(body)), StreamConfig{
		Provider: "cohere",
		Framing:  FramingNDJSON,
		Decode:   decodeTestEvent,
	})

	chunks, err := collect(t, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(chunks), chunks)
	}
	if chunks[0].Delta+chunks[1].Delta != "one two" {
		t.Errorf("deltas = %q", chunks[0].Delta+chunks[1].Delta)
	}
	if chunks[2].FinishReason != core.FinishReasonStop {
		t.Errorf("finish = %q", chunks[2].FinishReason)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestStream_ReadError(t *testing.T) {
	s := NewStream(io.NopCloser(errReader{}), StreamConfig{
		Provider: "groq",
		Framing:  FramingSSE,
		Decode:   decodeTestEvent,
	})
	_, err := s.Recv()
	if !core.IsRetryable(err) {
		t.Errorf("transport failure should be retryable, got %v", err)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv after failure = %v, want io.EOF", err)
	}
}
