package parse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/span"
)

// ParseError reports a fatal parse: nothing at all could be recovered
// from the header. Recoverable damage is reported through diagnostics
// instead, alongside the declarations that survived.
type ParseError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Metrics counts frontend work. FrontendParses counts actual tree-sitter
// runs; hits are served from the reparse cache without one.
type Metrics struct {
	FrontendParses atomic.Uint64
	CacheHits      atomic.Uint64
	CacheMisses    atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	FrontendParses uint64
	CacheHits      uint64
	CacheMisses    uint64
}

// cacheEntry pairs a generation-less template tree with the diagnostics
// its parse produced. Hits reissue the template under a fresh generation
// and replay the same diagnostics.
type cacheEntry struct {
	tree  *Tree
	diags []diag.Diagnostic
}

// Parser turns header source text into declaration trees. It is safe
// for concurrent use; each Parse call runs its own tree-sitter parser.
type Parser struct {
	spans   *span.Registry
	tokens  TokenGenerator
	logger  *slog.Logger
	cache   *lru.Cache[string, *cacheEntry]
	metrics Metrics
}

// Option configures a Parser.
type Option func(*config)

type config struct {
	cacheSize int
	tokens    TokenGenerator
	logger    *slog.Logger
}

// WithCacheSize bounds the reparse cache. Evicting an entry costs at
// most one re-parse; it never affects results.
func WithCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithTokenGenerator substitutes the generation token source. Tests use
// a FixedGenerator for reproducible handles.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(c *config) { c.tokens = g }
}

// WithLogger routes debug tracing. The default discards it.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// NewParser builds a Parser over the given span registry.
func NewParser(spans *span.Registry, opts ...Option) (*Parser, error) {
	cfg := config{
		cacheSize: 128,
		tokens:    &UUIDv7Generator{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := lru.New[string, *cacheEntry](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("reparse cache: %w", err)
	}
	return &Parser{
		spans:  spans,
		tokens: cfg.tokens,
		logger: cfg.logger,
		cache:  cache,
	}, nil
}

// Parse produces the declaration tree for one header. The returned tree
// carries a generation token that is unique to this call even when the
// arena itself came from the reparse cache. Diagnostics report damage
// that did not prevent extraction; a non-nil error means nothing was
// recovered.
func (p *Parser) Parse(ctx context.Context, path string, flags []string, src []byte) (*Tree, []diag.Diagnostic, error) {
	lang := DetectLanguage(path, flags)
	sum := ir.ContentHash(src)
	key := sum + "|" + string(lang) + "|" + path

	if ent, ok := p.cache.Get(key); ok {
		p.metrics.CacheHits.Add(1)
		p.logger.Debug("reparse cache hit", "path", path, "lang", lang)
		return ent.tree.withGeneration(p.tokens.Generate()), copyDiags(ent.diags), nil
	}
	p.metrics.CacheMisses.Add(1)
	p.metrics.FrontendParses.Add(1)

	grammar, err := sitterLanguage(lang)
	if err != nil {
		return nil, nil, &ParseError{Path: path, Msg: "no grammar", Err: err}
	}
	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tsTree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, nil, &ParseError{Path: path, Msg: "frontend failed", Err: err}
	}
	defer tsTree.Close()

	root := tsTree.RootNode()
	if root == nil {
		return nil, nil, &ParseError{Path: path, Msg: "no syntax tree produced"}
	}

	file := p.spans.InternFile(path)
	nodes, index, diags := extract(root, src, lang, file, p.spans)

	// A header that yields no declarations and is riddled with errors is
	// a fatal parse; an empty but well-formed header is fine.
	if len(nodes) == 1 && root.HasError() {
		return nil, nil, &ParseError{Path: path, Msg: "no declarations recovered"}
	}

	template := &Tree{
		Path:        path,
		Lang:        lang,
		ContentHash: sum,
		File:        file,
		nodes:       nodes,
		index:       index,
	}
	p.cache.Add(key, &cacheEntry{tree: template, diags: diags})

	p.logger.Debug("parsed header",
		"path", path, "lang", lang, "decls", len(index), "diags", len(diags))
	return template.withGeneration(p.tokens.Generate()), copyDiags(diags), nil
}

// Metrics returns a snapshot of the frontend counters.
func (p *Parser) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		FrontendParses: p.metrics.FrontendParses.Load(),
		CacheHits:      p.metrics.CacheHits.Load(),
		CacheMisses:    p.metrics.CacheMisses.Load(),
	}
}

func copyDiags(in []diag.Diagnostic) []diag.Diagnostic {
	if len(in) == 0 {
		return nil
	}
	out := make([]diag.Diagnostic, len(in))
	copy(out, in)
	return out
}
