package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		flags []string
		want  Language
	}{
		{"bare .h defaults to C", "api.h", nil, LangC},
		{"no extension defaults to C", "api", nil, LangC},
		{".hpp is C++", "api.hpp", nil, LangCPP},
		{".hh is C++", "api.hh", nil, LangCPP},
		{".hxx is C++", "api.hxx", nil, LangCPP},
		{"case-insensitive extension", "API.HPP", nil, LangCPP},
		{"split -x flag wins over extension", "api.hpp", []string{"-x", "c"}, LangC},
		{"split -x c++", "api.h", []string{"-x", "c++"}, LangCPP},
		{"fused -xc++", "api.h", []string{"-xc++"}, LangCPP},
		{"fused -xc", "api.hpp", []string{"-xc"}, LangC},
		{"c-header spelling", "api.hpp", []string{"-x", "c-header"}, LangC},
		{"c++-header spelling", "api.h", []string{"-x", "c++-header"}, LangCPP},
		{"unrelated flags ignored", "api.h", []string{"-I/usr/include", "-DNDEBUG"}, LangC},
		{"unknown -x argument ignored", "api.hpp", []string{"-x", "objective-c"}, LangCPP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path, tt.flags))
		})
	}
}

func TestSitterLanguage(t *testing.T) {
	for _, lang := range []Language{LangC, LangCPP} {
		got, err := sitterLanguage(lang)
		assert.NoError(t, err)
		assert.NotNil(t, got)
	}

	_, err := sitterLanguage(Language("fortran"))
	assert.Error(t, err)
}
