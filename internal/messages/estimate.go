package messages

import (
	"unicode/utf16"

	"cencori/internal/core"
)

// EstimateTokenCount approximates token count as ceil(n/4), where n is the
// length of text in UTF-16 code units. Byte length would overcount non-Latin
// scripts three- to four-fold.
// It is the fallback wherever an upstream has no counting API or omits usage.
func EstimateTokenCount(text string) int {
	n := 0
	for _, r := range text {
		n += utf16.RuneLen(r)
	}
	return (n + 3) / 4
}

// EstimateMessagesTokens estimates the prompt size of a whole conversation.
func EstimateMessagesTokens(msgs []core.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokenCount(m.Content)
	}
	return total
}
