package translate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ccbind/internal/ir"
)

func TestDefaultProfile_IsLP64(t *testing.T) {
	p := DefaultProfile()
	assert.Equal(t, "lp64", p.Name)
	assert.Equal(t, int64(8), p.Pointer.Size)

	long, canon, ok := p.ScalarFor("long")
	require.True(t, ok)
	assert.Equal(t, "long", canon)
	assert.Equal(t, int64(8), long.Size)
}

func TestEmbeddedProfiles(t *testing.T) {
	names := EmbeddedProfiles()
	assert.Equal(t, []string{"llp64", "lp64"}, names)

	for _, name := range names {
		p, err := LoadNamed(name)
		require.NoError(t, err, "embedded profile %s must validate", name)
		assert.Equal(t, name, p.Name)
	}
}

func TestLoadNamed_LLP64LongIsFourBytes(t *testing.T) {
	p, err := LoadNamed("llp64")
	require.NoError(t, err)

	long, _, ok := p.ScalarFor("long")
	require.True(t, ok)
	assert.Equal(t, int64(4), long.Size)

	// Pointers are still 8 bytes; that is the point of LLP64.
	assert.Equal(t, int64(8), p.Pointer.Size)
}

func TestLoadNamed_Unknown(t *testing.T) {
	_, err := LoadNamed("pdp11")
	require.Error(t, err)
}

func TestScalarFor_Synonyms(t *testing.T) {
	p := DefaultProfile()

	tests := []struct {
		spelling string
		canon    string
	}{
		{"unsigned", "unsigned int"},
		{"signed", "int"},
		{"long int", "long"},
		{"unsigned long int", "unsigned long"},
		{"long long int", "long long"},
		{"_Bool", "bool"},
	}
	for _, tt := range tests {
		s, canon, ok := p.ScalarFor(tt.spelling)
		require.True(t, ok, "spelling %q", tt.spelling)
		assert.Equal(t, tt.canon, canon)
		direct, _, ok := p.ScalarFor(tt.canon)
		require.True(t, ok)
		assert.Equal(t, direct, s, "synonym %q must match its canonical scalar", tt.spelling)
	}

	_, _, ok := p.ScalarFor("struct Point")
	assert.False(t, ok)
}

func TestLoadProfile_StrictDecoding(t *testing.T) {
	_, err := LoadProfile(strings.NewReader(`
name: strictness
pointer: {size: 8, align: 8}
enum: {size: 4, align: 4}
pointre: {size: 8, align: 8}
scalars:
  int: {size: 4, align: 4, class: int}
`))
	require.Error(t, err, "unknown top-level field must be rejected")
}

func TestLoadProfile_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", `
pointer: {size: 8, align: 8}
enum: {size: 4, align: 4}
scalars:
  int: {size: 4, align: 4, class: int}
`},
		{"zero pointer size", `
name: bad
pointer: {size: 0, align: 8}
enum: {size: 4, align: 4}
scalars:
  int: {size: 4, align: 4, class: int}
`},
		{"non power-of-two alignment", `
name: bad
pointer: {size: 8, align: 8}
enum: {size: 4, align: 4}
scalars:
  int: {size: 4, align: 3, class: int}
`},
		{"unknown scalar class", `
name: bad
pointer: {size: 8, align: 8}
enum: {size: 4, align: 4}
scalars:
  int: {size: 4, align: 4, class: quaternion}
`},
		{"dangling synonym", `
name: bad
pointer: {size: 8, align: 8}
enum: {size: 4, align: 4}
scalars:
  int: {size: 4, align: 4, class: int}
synonyms:
  word: dword
`},
		{"no scalars", `
name: bad
pointer: {size: 8, align: 8}
enum: {size: 4, align: 4}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadProfile(strings.NewReader(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadProfile_ValidCustom(t *testing.T) {
	p, err := LoadProfile(strings.NewReader(`
name: tiny16
pointer: {size: 2, align: 2}
enum: {size: 2, align: 2}
scalars:
  int: {size: 2, align: 2, class: int}
  char: {size: 1, align: 1, class: char}
synonyms:
  signed: int
`))
	require.NoError(t, err)
	assert.Equal(t, "tiny16", p.Name)

	s, _, ok := p.ScalarFor("int")
	require.True(t, ok)
	assert.Equal(t, ir.ScalarInt, s.Class)
	assert.Equal(t, int64(2), s.Size)
}
