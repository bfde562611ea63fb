package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSimilarity_Identical(t *testing.T) {
	assert.Equal(t, 1.0, stringSimilarity("AAPL", "aapl"))
}

func TestStringSimilarity_BothEmpty(t *testing.T) {
	assert.Equal(t, 1.0, stringSimilarity("", ""))
}

func TestStringSimilarity_CompletelyDifferent(t *testing.T) {
	s := stringSimilarity("AAPL", "ZZZZ")
	assert.Equal(t, 0.0, s)
}

func TestStringSimilarity_PartialMatch(t *testing.T) {
	s := stringSimilarity("APPLE", "APPL")
	assert.InDelta(t, 0.8, s, 0.01)
}

func TestLevenshtein_KnownDistances(t *testing.T) {
	assert.Equal(t, 0, levenshtein("kitten", "kitten"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 1, levenshtein("apple", "aple"))
}
