// Package tokens provides tiktoken-based token counting used for batch sizing
// and for estimating usage when a provider reports none.
package tokens

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens for one model encoding.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter for model. Models tiktoken does not know,
// including every non-OpenAI model, are approximated with the GPT-4 encoding.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.ForModel(tokenizer.GPT4)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountLines returns the token count of each line in lines.
func (c *Counter) CountLines(lines []string) []int {
	out := make([]int, len(lines))
	for i, line := range lines {
		out[i] = c.Count(line)
	}
	return out
}

// Fits reports whether text is within limit tokens.
func (c *Counter) Fits(text string, limit int) bool {
	return c.Count(text) <= limit
}

// Batch groups lines into consecutive batches holding at most maxLines lines
// and roughly maxTokens tokens. A single line over the token limit still
// forms its own batch. Non-positive limits disable that bound.
func (c *Counter) Batch(lines []string, maxLines, maxTokens int) [][]string {
	var (
		batches [][]string
		current []string
		used    int
	)
	for _, line := range lines {
		n := c.Count(line) + 1 // newline
		full := (maxLines > 0 && len(current) >= maxLines) ||
			(maxTokens > 0 && len(current) > 0 && used+n > maxTokens)
		if full {
			batches = append(batches, current)
			current, used = nil, 0
		}
		current = append(current, line)
		used += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Join renders a batch as newline-terminated lines.
func Join(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
