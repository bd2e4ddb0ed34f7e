// Package tokenizer provides token counting and encode/decode for chunking
// and context budgeting. A tiktoken-backed implementation covers the
// OpenAI model family; a character-ratio estimator serves as the fallback
// for models without a published vocabulary.
package tokenizer

import (
	"fmt"
	"sync"
)

// Tokenizer is the unified token accounting interface.
type Tokenizer interface {
	// CountTokens returns the token count of text.
	CountTokens(text string) (int, error)

	// Encode converts text to a token ID sequence.
	Encode(text string) ([]int, error)

	// Decode converts a token ID sequence back to text.
	Decode(tokens []int) (string, error)

	// MaxTokens returns the model's context window size.
	MaxTokens() int

	// Name identifies the tokenizer.
	Name() string
}

var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// Register registers a tokenizer for the given model name.
func Register(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// ForModel returns the tokenizer registered for model, trying prefix
// matches (so "gpt-4o-2024" matches a "gpt-4o" registration).
func ForModel(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}
	for prefix, t := range modelTokenizers {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// ForModelOrEstimator returns the registered tokenizer for model, falling
// back to the character-ratio estimator when none is registered.
func ForModelOrEstimator(model string) Tokenizer {
	t, err := ForModel(model)
	if err != nil {
		return NewEstimator(model, 0)
	}
	return t
}
