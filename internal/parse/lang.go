package parse

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Language selects which grammar a header is parsed under.
type Language string

const (
	LangC   Language = "c"
	LangCPP Language = "c++"
)

var (
	langOnce sync.Once
	langC    *sitter.Language
	langCPP  *sitter.Language
)

func sitterLanguage(lang Language) (*sitter.Language, error) {
	langOnce.Do(func() {
		langC = c.GetLanguage()
		langCPP = cpp.GetLanguage()
	})
	switch lang {
	case LangC:
		return langC, nil
	case LangCPP:
		return langCPP, nil
	default:
		return nil, fmt.Errorf("unknown language %q", lang)
	}
}

// DetectLanguage picks the grammar for a header from its compiler flags,
// falling back to the file extension. The flag form is clang's: "-x c" or
// "-x c++" as two arguments, or the fused "-xc"/"-xc++". Flags win over
// extensions; an extensionless or .h header with no flag defaults to C,
// which matches how compilers treat it.
func DetectLanguage(path string, flags []string) Language {
	for i := 0; i < len(flags); i++ {
		f := flags[i]
		switch {
		case f == "-x" && i+1 < len(flags):
			if lang, ok := languageName(flags[i+1]); ok {
				return lang
			}
		case strings.HasPrefix(f, "-x") && len(f) > 2:
			if lang, ok := languageName(f[2:]); ok {
				return lang
			}
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hpp", ".hh", ".hxx", ".h++", ".cuh":
		return LangCPP
	default:
		return LangC
	}
}

func languageName(s string) (Language, bool) {
	switch s {
	case "c", "c-header":
		return LangC, true
	case "c++", "c++-header":
		return LangCPP, true
	default:
		return "", false
	}
}
