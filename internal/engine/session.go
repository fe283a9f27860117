package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/parse"
	"github.com/roach88/ccbind/internal/span"
	"github.com/roach88/ccbind/internal/store"
	"github.com/roach88/ccbind/internal/translate"
)

// Session is the host-facing facade: one live engine over one loader,
// parser, and translator. A session is safe for concurrent use and is
// meant to be long-lived; repeated Bind calls against unchanged headers
// are served entirely from the memo store.
type Session struct {
	spans      *span.Registry
	collected  *diag.Aggregator
	loader     parse.Loader
	files      *parse.FileLoader // non-nil when the loader supports overlays
	parser     *parse.Parser
	translator *translate.Translator
	rt         *Runtime
	lineages   *lineageTable
	gens       *genIndex
	logger     *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	loader    parse.Loader
	profile   *translate.Profile
	logger    *slog.Logger
	tokens    parse.TokenGenerator
	cacheSize int
	clock     *store.Clock
}

// WithLoader substitutes the header source. The default reads the
// filesystem with overlay support.
func WithLoader(l parse.Loader) SessionOption {
	return func(c *sessionConfig) { c.loader = l }
}

// WithProfile selects the ABI profile translations are computed against.
// The default is the embedded lp64 profile.
func WithProfile(p *translate.Profile) SessionOption {
	return func(c *sessionConfig) { c.profile = p }
}

// WithLogger routes debug tracing for the engine and frontend.
func WithLogger(l *slog.Logger) SessionOption {
	return func(c *sessionConfig) { c.logger = l }
}

// WithTokenGenerator substitutes the generation token source. Tests pin
// a FixedGenerator so handles come out reproducible.
func WithTokenGenerator(g parse.TokenGenerator) SessionOption {
	return func(c *sessionConfig) { c.tokens = g }
}

// WithParseCacheSize bounds the frontend's reparse cache.
func WithParseCacheSize(n int) SessionOption {
	return func(c *sessionConfig) { c.cacheSize = n }
}

// WithClock substitutes the revision clock.
func WithClock(clk *store.Clock) SessionOption {
	return func(c *sessionConfig) { c.clock = clk }
}

// NewSession builds a session and wires the standard query kinds.
func NewSession(opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{
		profile: translate.DefaultProfile(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.loader == nil {
		cfg.loader = parse.NewFileLoader()
	}

	spans := span.NewRegistry()
	parseOpts := []parse.Option{parse.WithLogger(cfg.logger)}
	if cfg.tokens != nil {
		parseOpts = append(parseOpts, parse.WithTokenGenerator(cfg.tokens))
	}
	if cfg.cacheSize > 0 {
		parseOpts = append(parseOpts, parse.WithCacheSize(cfg.cacheSize))
	}
	parser, err := parse.NewParser(spans, parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		spans:      spans,
		collected:  diag.NewAggregator(),
		loader:     cfg.loader,
		parser:     parser,
		translator: translate.New(cfg.profile),
		rt:         NewRuntime(store.New(cfg.clock), cfg.logger),
		lineages:   newLineageTable(),
		gens:       newGenIndex(),
		logger:     cfg.logger,
	}
	s.files, _ = cfg.loader.(*parse.FileLoader)

	s.rt.Register(ir.QueryFileText, s.fileTextHandler)
	s.rt.Register(ir.QueryParseHeader, s.parseHandler)
	s.rt.Register(ir.QueryResolveName, s.resolveHandler)
	s.rt.Register(ir.QueryTranslate, s.translateHandler)
	return s, nil
}

// BindRequest names the declarations to bind out of one header.
type BindRequest struct {
	Header string
	Flags  []string
	Names  []string
}

// BindResult carries the descriptors that bound and every diagnostic the
// demanded queries produced. A name that failed contributes a diagnostic
// instead of a descriptor; failures never suppress the other names.
type BindResult struct {
	Descriptors []ir.BindingDescriptor
	Diags       []diag.Diagnostic
}

// HasErrors reports whether any error-severity diagnostic was produced.
func (r *BindResult) HasErrors() bool {
	for _, d := range r.Diags {
		if d.Severity == diag.SeverityError {
			return true
		}
	}
	return false
}

// Bind resolves and translates the requested names. The returned error is
// reserved for interruptions (context cancellation) and engine defects;
// everything the headers themselves cause — parse damage, unknown names,
// untranslatable declarations — lands in the result's diagnostics, one
// per failing name, alongside the descriptors of the names that bound.
func (s *Session) Bind(ctx context.Context, req BindRequest) (*BindResult, error) {
	res := &BindResult{}
	ast := s.lineages.intern(req.Header, req.Flags)

	parseQ := ir.ParseHeaderQuery(req.Header, req.Flags)
	_, parseDiags, err := s.rt.Get(ctx, parseQ)
	res.Diags = appendTagged(res.Diags, parseDiags, parseQ)
	if err != nil {
		if bindFatal(err) {
			return nil, err
		}
		// The whole header is unusable; one diagnostic covers every name.
		res.Diags = append(res.Diags, errDiag(err, parseQ))
		s.collected.Add(res.Diags...)
		return res, nil
	}

	for _, name := range req.Names {
		rq := ir.ResolveQuery(ast, name)
		hv, rDiags, err := s.rt.Get(ctx, rq)
		res.Diags = appendTagged(res.Diags, rDiags, rq)
		if err != nil {
			if bindFatal(err) {
				return nil, err
			}
			res.Diags = append(res.Diags, errDiag(err, rq))
			continue
		}
		handles, _ := hv.([]ir.DeclHandle)

		for _, h := range handles {
			tq := ir.TranslateQuery(h)
			dv, tDiags, err := s.rt.Get(ctx, tq)
			res.Diags = appendTagged(res.Diags, tDiags, tq)
			if err != nil {
				if bindFatal(err) {
					return nil, err
				}
				res.Diags = append(res.Diags, errDiag(err, tq))
				continue
			}
			if desc, ok := dv.(*ir.BindingDescriptor); ok && desc != nil {
				res.Descriptors = append(res.Descriptors, *desc)
			}
		}
	}

	s.collected.Add(res.Diags...)
	s.logger.Debug("bind finished",
		"header", req.Header, "names", len(req.Names),
		"descriptors", len(res.Descriptors), "diags", len(res.Diags))
	return res, nil
}

// bindFatal reports whether an error aborts the whole Bind instead of
// degrading to a per-name diagnostic.
func bindFatal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e *Error
	return !errors.As(err, &e)
}

func errDiag(err error, q ir.Query) diag.Diagnostic {
	var e *Error
	if errors.As(err, &e) {
		return e.Diagnostic().WithOrigin(q.String())
	}
	return diag.Errorf(diag.CodeInternal, span.None, "%v", err).WithOrigin(q.String())
}

func appendTagged(dst []diag.Diagnostic, src []diag.Diagnostic, q ir.Query) []diag.Diagnostic {
	for _, d := range src {
		if d.Origin == "" {
			d = d.WithOrigin(q.String())
		}
		dst = append(dst, d)
	}
	return dst
}

// Invalidate tells the session that a header may have changed. The loader
// is re-read eagerly; if the content hash is unchanged nothing downstream
// is disturbed. Returns whether the input actually changed.
func (s *Session) Invalidate(path string) bool {
	q := ir.FileTextQuery(path)
	data, err := s.loader.Load(path)
	if err != nil {
		return s.rt.SetInputError(q, newError(CodeSourceUnavailable, q.String(), "", err))
	}
	return s.rt.SetInput(q, data, ir.ContentHash(data))
}

// SetOverlay shadows a header with in-memory content and invalidates it.
// Only available when the session owns the default file loader.
func (s *Session) SetOverlay(path string, content []byte) (bool, error) {
	if s.files == nil {
		return false, errors.New("session loader does not support overlays")
	}
	s.files.SetOverlay(path, content)
	return s.Invalidate(path), nil
}

// DropOverlay removes an overlay and invalidates the header.
func (s *Session) DropOverlay(path string) (bool, error) {
	if s.files == nil {
		return false, errors.New("session loader does not support overlays")
	}
	s.files.DropOverlay(path)
	return s.Invalidate(path), nil
}

// Evict drops one memoized query. Results are unaffected; the next
// demand recomputes.
func (s *Session) Evict(q ir.Query) { s.rt.Evict(q) }

// DeclNames lists the declarations a header exposes, parsing on demand.
func (s *Session) DeclNames(ctx context.Context, header string, flags []string) ([]string, error) {
	v, _, err := s.rt.Get(ctx, ir.ParseHeaderQuery(header, flags))
	if err != nil {
		return nil, err
	}
	tree, _ := v.(*parse.Tree)
	return tree.DeclNames(), nil
}

// SessionMetrics pairs the engine counters with the frontend's.
type SessionMetrics struct {
	Engine   MetricsSnapshot
	Frontend parse.MetricsSnapshot
}

// Metrics returns a snapshot of all counters.
func (s *Session) Metrics() SessionMetrics {
	return SessionMetrics{
		Engine:   s.rt.Metrics(),
		Frontend: s.parser.Metrics(),
	}
}

// Diagnostics returns every diagnostic collected across the session's
// binds so far, in arrival order. Each Bind result carries its own slice;
// this is the running build-wide view.
func (s *Session) Diagnostics() []diag.Diagnostic { return s.collected.All() }

// HasErrors reports whether any bind so far produced an error-severity
// diagnostic. Warnings and notes alone leave the session passing.
func (s *Session) HasErrors() bool { return s.collected.HasErrors() }

// ResetDiagnostics clears the session-wide collection. Memoized results
// are untouched; hosts call this between logical builds.
func (s *Session) ResetDiagnostics() { s.collected.Reset() }

// Runtime exposes the underlying query runtime for hosts that register
// their own query kinds or demand queries directly.
func (s *Session) Runtime() *Runtime { return s.rt }

// Spans exposes the span registry for rendering diagnostic locations.
func (s *Session) Spans() *span.Registry { return s.spans }
