package turn

import (
	"context"
	"strings"
	"unicode"
)

// trailingWords mark a sentence that almost certainly continues.
var trailingWords = map[string]bool{
	"and": true, "or": true, "but": true, "so": true, "because": true,
	"the": true, "a": true, "an": true, "my": true, "to": true, "of": true,
	"with": true, "is": true, "um": true, "uh": true, "like": true,
}

// HeuristicDetector scores turns from punctuation and the last word. It needs
// no model and serves as the fallback for the remote detector.
type HeuristicDetector struct {
	threshold float64
}

// NewHeuristicDetector creates a heuristic detector. A zero threshold uses 0.5.
func NewHeuristicDetector(threshold float64) *HeuristicDetector {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &HeuristicDetector{threshold: threshold}
}

func (d *HeuristicDetector) UnlikelyThreshold(language string) (float64, error) {
	return d.threshold, nil
}

// SupportsLanguage is true for English only; the word list is English.
func (d *HeuristicDetector) SupportsLanguage(language string) bool {
	return language == "" || strings.HasPrefix(strings.ToLower(language), "en")
}

func (d *HeuristicDetector) PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error) {
	text := strings.TrimSpace(chatCtx.lastUserText())
	if text == "" {
		return 1, nil
	}

	last := rune(text[len(text)-1])
	switch {
	case strings.ContainsRune(".?!", last):
		return 0.95, nil
	case last == ',' || last == '-':
		return 0.1, nil
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if len(words) > 0 && trailingWords[words[len(words)-1]] {
		return 0.15, nil
	}
	return 0.7, nil
}
