package tokenizer

import (
	"strings"
	"sync"
	"unicode"
)

// Estimator is a whitespace-segmentation tokenizer used when no model
// vocabulary is available. One token is a word together with its trailing
// whitespace, so Encode followed by Decode reconstructs the input exactly.
// Token IDs are assigned from a per-instance dictionary, which keeps
// Encode deterministic for a given instance.
type Estimator struct {
	model     string
	maxTokens int

	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewEstimator creates an estimator for the given model name.
func NewEstimator(model string, maxTokens int) *Estimator {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Estimator{
		model:     model,
		maxTokens: maxTokens,
		ids:       make(map[string]int),
	}
}

// segments splits text at every whitespace-to-word transition, so each
// segment is a word plus any whitespace that follows it.
func segments(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	inSpace := unicode.IsSpace(rune(text[0]))
	for i, r := range text {
		if inSpace && !unicode.IsSpace(r) && i > start {
			out = append(out, text[start:i])
			start = i
		}
		inSpace = unicode.IsSpace(r)
	}
	out = append(out, text[start:])
	return out
}

func (e *Estimator) CountTokens(text string) (int, error) {
	return len(segments(text)), nil
}

func (e *Estimator) Encode(text string) ([]int, error) {
	segs := segments(text)
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens := make([]int, len(segs))
	for i, seg := range segs {
		id, ok := e.ids[seg]
		if !ok {
			id = len(e.words)
			e.ids[seg] = id
			e.words = append(e.words, seg)
		}
		tokens[i] = id
	}
	return tokens, nil
}

func (e *Estimator) Decode(tokens []int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(e.words) {
			b.WriteString(e.words[id])
		}
	}
	return b.String(), nil
}

func (e *Estimator) MaxTokens() int { return e.maxTokens }

func (e *Estimator) Name() string { return "estimator[" + e.model + "]" }
