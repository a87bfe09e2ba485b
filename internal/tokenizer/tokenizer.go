// Package tokenizer counts tokens with the BPE encodings used by OpenAI models.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Counter counts tokens in text for a model.
type Counter interface {
	Count(text, model string) (int, error)
}

// Tiktoken is a Counter backed by tiktoken-go. Encodings are loaded lazily and cached.
type Tiktoken struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewTiktoken creates an empty tiktoken counter.
func NewTiktoken() *Tiktoken {
	return &Tiktoken{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Count returns the number of tokens in text. Models tiktoken does not know
// use the o200k encoding for the gpt-4o/o-series families and cl100k otherwise.
func (t *Tiktoken) Count(text, model string) (int, error) {
	enc, err := t.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (t *Tiktoken) encoding(model string) (*tiktoken.Tiktoken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encodings[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding(model))
		if err != nil {
			return nil, err
		}
	}
	t.encodings[model] = enc
	return enc, nil
}

func fallbackEncoding(model string) string {
	for _, prefix := range []string{"gpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return "o200k_base"
		}
	}
	return defaultEncoding
}
