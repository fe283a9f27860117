package parse

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_ProducesValidUniqueTokens(t *testing.T) {
	gen := UUIDv7Generator{}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := gen.Generate()

		parsed, err := uuid.Parse(token)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())

		assert.False(t, seen[token], "generation tokens must never repeat")
		seen[token] = true
	}
}

func TestFixedGenerator_ReturnsTokensInOrder(t *testing.T) {
	gen := NewFixedGenerator("g1", "g2", "g3")

	assert.Equal(t, "g1", gen.Generate())
	assert.Equal(t, "g2", gen.Generate())
	assert.Equal(t, "g3", gen.Generate())
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("only")
	gen.Generate()

	assert.Panics(t, func() { gen.Generate() })
}
