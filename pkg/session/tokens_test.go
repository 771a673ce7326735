package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 0, EstimateTokens("abc"))
	assert.Equal(t, 250, EstimateTokens(strings.Repeat("x", 1000)))
}
