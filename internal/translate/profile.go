package translate

import (
	"embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ccbind/internal/ir"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// Width is a (size, alignment) pair in bytes.
type Width struct {
	Size  int64 `yaml:"size"`
	Align int64 `yaml:"align"`
}

// Scalar describes one builtin scalar type under a target profile.
type Scalar struct {
	Size  int64          `yaml:"size"`
	Align int64          `yaml:"align"`
	Class ir.ScalarClass `yaml:"class"`
}

// Profile is a target ABI description: the widths of builtin scalars,
// pointers, and plain enums. Layout computation depends on nothing else,
// so switching targets means switching profiles, not code.
type Profile struct {
	Name     string            `yaml:"name"`
	Pointer  Width             `yaml:"pointer"`
	Enum     Width             `yaml:"enum"`
	Scalars  map[string]Scalar `yaml:"scalars"`
	Synonyms map[string]string `yaml:"synonyms"`
}

// LoadProfile decodes a profile from YAML. Decoding is strict: unknown
// fields are errors, so a typo in a profile fails loudly instead of
// silently producing wrong layouts.
func LoadProfile(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadNamed loads one of the embedded profiles by name.
func LoadNamed(name string) (*Profile, error) {
	f, err := profileFS.Open("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no embedded profile %q", name)
	}
	defer f.Close()
	return LoadProfile(f)
}

// EmbeddedProfiles lists the names of the compiled-in profiles, sorted.
func EmbeddedProfiles() []string {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

var (
	defaultOnce    sync.Once
	defaultProfile *Profile
)

// DefaultProfile returns the LP64 profile. Panics if the embedded data is
// corrupt, which only a bad build can cause.
func DefaultProfile() *Profile {
	defaultOnce.Do(func() {
		p, err := LoadNamed("lp64")
		if err != nil {
			panic(fmt.Sprintf("embedded lp64 profile: %v", err))
		}
		defaultProfile = p
	})
	return defaultProfile
}

// Validate checks internal consistency. Profiles are loaded rarely and
// trusted a lot; everything cheap to verify is verified here.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile: name is required")
	}
	if err := validWidth("pointer", p.Pointer); err != nil {
		return err
	}
	if err := validWidth("enum", p.Enum); err != nil {
		return err
	}
	if len(p.Scalars) == 0 {
		return fmt.Errorf("profile %s: no scalars", p.Name)
	}
	for name, s := range p.Scalars {
		if err := validWidth("scalar "+name, Width{Size: s.Size, Align: s.Align}); err != nil {
			return fmt.Errorf("profile %s: %w", p.Name, err)
		}
		switch s.Class {
		case ir.ScalarInt, ir.ScalarUint, ir.ScalarFloat, ir.ScalarBool, ir.ScalarChar:
		default:
			return fmt.Errorf("profile %s: scalar %s: unknown class %q", p.Name, name, s.Class)
		}
	}
	for from, to := range p.Synonyms {
		if _, ok := p.Scalars[to]; !ok {
			return fmt.Errorf("profile %s: synonym %q points at unknown scalar %q", p.Name, from, to)
		}
	}
	return nil
}

func validWidth(what string, w Width) error {
	if w.Size <= 0 {
		return fmt.Errorf("%s: size must be positive, got %d", what, w.Size)
	}
	if w.Align <= 0 || w.Align&(w.Align-1) != 0 {
		return fmt.Errorf("%s: alignment must be a positive power of two, got %d", what, w.Align)
	}
	return nil
}

// ScalarFor resolves a type spelling to a scalar, following synonyms.
// The returned name is the canonical spelling.
func (p *Profile) ScalarFor(spelling string) (Scalar, string, bool) {
	key := spelling
	if canon, ok := p.Synonyms[spelling]; ok {
		key = canon
	}
	s, ok := p.Scalars[key]
	return s, key, ok
}
