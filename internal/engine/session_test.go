package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/parse"
	"github.com/roach88/ccbind/internal/translate"
)

const pointHeader = `
struct Point {
    int x;
    int y;
};

int distance(struct Point a, struct Point b);
`

const pointHeaderWithZ = `
struct Point {
    int x;
    int y;
    int z;
};

int distance(struct Point a, struct Point b);
`

func newTestSession(t *testing.T, files map[string]string, opts ...SessionOption) *Session {
	t.Helper()
	loader := parse.NewFileLoader()
	for path, src := range files {
		loader.SetOverlay(path, []byte(src))
	}
	tokens := make([]string, 64)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("gen-%02d", i+1)
	}
	opts = append([]SessionOption{
		WithLoader(loader),
		WithTokenGenerator(parse.NewFixedGenerator(tokens...)),
	}, opts...)
	s, err := NewSession(opts...)
	require.NoError(t, err)
	return s
}

func errorDiags(diags []diag.Diagnostic) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, d := range diags {
		if d.Severity == diag.SeverityError {
			out = append(out, d)
		}
	}
	return out
}

func TestSession_Bind_PointAndDistance(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})

	res, err := s.Bind(context.Background(), BindRequest{
		Header: "point.h",
		Names:  []string{"distance", "Point"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Diags)
	assert.False(t, res.HasErrors())
	require.Len(t, res.Descriptors, 2)

	fn := res.Descriptors[0]
	assert.Equal(t, ir.DescFunction, fn.Kind)
	assert.Equal(t, "distance", fn.Name)
	assert.Equal(t, ir.CallCdecl, fn.Convention)
	require.NotNil(t, fn.Return)
	assert.Equal(t, ir.TypeScalar, fn.Return.Kind)
	assert.EqualValues(t, 4, fn.Return.Size)

	require.Len(t, fn.Params, 2)
	assert.Equal(t, "a", fn.Params[0].Name)
	assert.Equal(t, "b", fn.Params[1].Name)
	for _, p := range fn.Params {
		assert.Equal(t, ir.PassByValue, p.Pass)
		assert.Equal(t, ir.TypeStruct, p.Type.Kind)
		assert.EqualValues(t, 8, p.Type.Size)
		assert.EqualValues(t, 4, p.Type.Align)
		require.Len(t, p.Type.Fields, 2)
		assert.Equal(t, "x", p.Type.Fields[0].Name)
		assert.EqualValues(t, 0, p.Type.Fields[0].Offset)
		assert.Equal(t, "y", p.Type.Fields[1].Name)
		assert.EqualValues(t, 4, p.Type.Fields[1].Offset)
	}

	record := res.Descriptors[1]
	assert.Equal(t, ir.DescType, record.Kind)
	assert.Equal(t, "Point", record.Name)
	require.NotNil(t, record.Type)
	assert.Equal(t, ir.TypeStruct, record.Type.Kind)
	assert.EqualValues(t, 8, record.Type.Size)
}

func TestSession_Bind_RepeatIsServedFromMemo(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})
	req := BindRequest{Header: "point.h", Names: []string{"distance", "Point"}}
	ctx := context.Background()

	res1, err := s.Bind(ctx, req)
	require.NoError(t, err)
	m1 := s.Metrics()

	res2, err := s.Bind(ctx, req)
	require.NoError(t, err)
	m2 := s.Metrics()

	assert.Equal(t, res1.Descriptors, res2.Descriptors)
	assert.Equal(t, res1.Diags, res2.Diags)
	for _, kind := range []ir.QueryKind{ir.QueryFileText, ir.QueryParseHeader, ir.QueryResolveName, ir.QueryTranslate} {
		assert.Equal(t, m1.Engine.ComputeCount(kind), m2.Engine.ComputeCount(kind),
			"kind %s must not recompute on a repeat bind", kind)
	}
	assert.Equal(t, m1.Frontend.FrontendParses, m2.Frontend.FrontendParses)
	assert.Greater(t, m2.Engine.Hits, m1.Engine.Hits)
}

func TestSession_Bind_DeterministicAcrossSessions(t *testing.T) {
	req := BindRequest{Header: "point.h", Names: []string{"distance", "Point"}}
	ctx := context.Background()

	s1 := newTestSession(t, map[string]string{"point.h": pointHeader})
	s2 := newTestSession(t, map[string]string{"point.h": pointHeader})

	res1, err := s1.Bind(ctx, req)
	require.NoError(t, err)
	res2, err := s2.Bind(ctx, req)
	require.NoError(t, err)

	require.Len(t, res1.Descriptors, 2)
	require.Len(t, res2.Descriptors, 2)
	for i := range res1.Descriptors {
		assert.Equal(t,
			ir.MustDescriptorFingerprint(res1.Descriptors[i]),
			ir.MustDescriptorFingerprint(res2.Descriptors[i]))
	}
}

func TestSession_Bind_OverlayEditRecomputes(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})
	req := BindRequest{Header: "point.h", Names: []string{"distance"}}
	ctx := context.Background()

	res1, err := s.Bind(ctx, req)
	require.NoError(t, err)
	require.Len(t, res1.Descriptors, 1)
	assert.EqualValues(t, 8, res1.Descriptors[0].Params[0].Type.Size)

	changed, err := s.SetOverlay("point.h", []byte(pointHeaderWithZ))
	require.NoError(t, err)
	assert.True(t, changed)

	res2, err := s.Bind(ctx, req)
	require.NoError(t, err)
	require.Len(t, res2.Descriptors, 1)
	assert.EqualValues(t, 12, res2.Descriptors[0].Params[0].Type.Size)
	require.Len(t, res2.Descriptors[0].Params[0].Type.Fields, 3)

	m := s.Metrics()
	assert.EqualValues(t, 2, m.Frontend.FrontendParses)
}

func TestSession_Bind_UnchangedRefreshIsFree(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})
	req := BindRequest{Header: "point.h", Names: []string{"distance", "Point"}}
	ctx := context.Background()

	_, err := s.Bind(ctx, req)
	require.NoError(t, err)
	m1 := s.Metrics()

	// Re-setting identical bytes must not disturb anything downstream.
	changed, err := s.SetOverlay("point.h", []byte(pointHeader))
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.Bind(ctx, req)
	require.NoError(t, err)
	m2 := s.Metrics()

	for _, kind := range []ir.QueryKind{ir.QueryFileText, ir.QueryParseHeader, ir.QueryResolveName, ir.QueryTranslate} {
		assert.Equal(t, m1.Engine.ComputeCount(kind), m2.Engine.ComputeCount(kind),
			"kind %s recomputed after a content-preserving refresh", kind)
	}
	assert.Equal(t, m1.Frontend.FrontendParses, m2.Frontend.FrontendParses)
}

func TestSession_Bind_PartialFailureKeepsGoodDeclarations(t *testing.T) {
	const damaged = `
int first(int a);

@@@@ not a declaration @@@@;

int second(double b);

struct Box { int v; };
`
	s := newTestSession(t, map[string]string{"damaged.h": damaged})

	res, err := s.Bind(context.Background(), BindRequest{
		Header: "damaged.h",
		Names:  []string{"first", "second", "Box"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Descriptors, 3, "valid declarations must bind despite the damage")
	errs := errorDiags(res.Diags)
	require.Len(t, errs, 1, "exactly one diagnostic for the damaged region")
	assert.Equal(t, diag.CodeParse, errs[0].Code)
}

func TestSession_Bind_UnknownNameGetsNotFound(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})

	res, err := s.Bind(context.Background(), BindRequest{
		Header: "point.h",
		Names:  []string{"distance", "missing_fn"},
	})
	require.NoError(t, err)

	require.Len(t, res.Descriptors, 1)
	assert.Equal(t, "distance", res.Descriptors[0].Name)

	errs := errorDiags(res.Diags)
	require.Len(t, errs, 1)
	assert.Equal(t, diag.CodeNotFound, errs[0].Code)
	assert.Contains(t, errs[0].Message, "missing_fn")
	assert.True(t, res.HasErrors())
}

func TestSession_Bind_UntranslatableIsolatedToItsName(t *testing.T) {
	const mixed = `
int ok_fn(int a);
int log_all(const char *fmt, ...);
`
	s := newTestSession(t, map[string]string{"mixed.h": mixed})

	res, err := s.Bind(context.Background(), BindRequest{
		Header: "mixed.h",
		Names:  []string{"ok_fn", "log_all"},
	})
	require.NoError(t, err)

	require.Len(t, res.Descriptors, 1)
	assert.Equal(t, "ok_fn", res.Descriptors[0].Name)

	errs := errorDiags(res.Diags)
	require.Len(t, errs, 1)
	assert.Equal(t, diag.CodeUnsupportedSignature, errs[0].Code)
}

func TestSession_Bind_OverloadSetBindsEveryMember(t *testing.T) {
	const overloads = `
int clamp(int v);
double clamp(double v);
`
	s := newTestSession(t, map[string]string{"util.hpp": overloads})

	res, err := s.Bind(context.Background(), BindRequest{
		Header: "util.hpp",
		Names:  []string{"clamp"},
	})
	require.NoError(t, err)
	assert.Empty(t, errorDiags(res.Diags))

	require.Len(t, res.Descriptors, 2, "every overload binds")
	assert.EqualValues(t, 4, res.Descriptors[0].Return.Size)
	assert.EqualValues(t, 8, res.Descriptors[1].Return.Size)
}

func TestSession_Bind_MissingHeaderSourceUnavailable(t *testing.T) {
	s := newTestSession(t, nil)

	res, err := s.Bind(context.Background(), BindRequest{
		Header: "/definitely/not/present.h",
		Names:  []string{"anything"},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Descriptors)
	require.Len(t, res.Diags, 1)
	assert.Equal(t, diag.CodeSourceUnavailable, res.Diags[0].Code)
}

func TestSession_Bind_DeletedHeaderReportedOnRebind(t *testing.T) {
	s := newTestSession(t, map[string]string{"/virtual/point.h": pointHeader})
	req := BindRequest{Header: "/virtual/point.h", Names: []string{"distance"}}
	ctx := context.Background()

	res, err := s.Bind(ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)

	// Dropping the overlay exposes the (nonexistent) on-disk file.
	changed, err := s.DropOverlay("/virtual/point.h")
	require.NoError(t, err)
	assert.True(t, changed)

	res, err = s.Bind(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, res.Descriptors)
	require.Len(t, res.Diags, 1)
	assert.Equal(t, diag.CodeSourceUnavailable, res.Diags[0].Code)

	// And coming back recovers.
	_, err = s.SetOverlay("/virtual/point.h", []byte(pointHeader))
	require.NoError(t, err)
	res, err = s.Bind(ctx, req)
	require.NoError(t, err)
	assert.Len(t, res.Descriptors, 1)
	assert.Empty(t, res.Diags)
}

func TestSession_Bind_FatalParseOneDiagnostic(t *testing.T) {
	s := newTestSession(t, map[string]string{"junk.h": "@@@@ #### $$$$"})

	res, err := s.Bind(context.Background(), BindRequest{
		Header: "junk.h",
		Names:  []string{"first", "second"},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Descriptors)
	require.Len(t, res.Diags, 1, "an unusable header reports once, not per name")
	assert.Equal(t, diag.CodeParse, res.Diags[0].Code)
}

func TestSession_StaleHandleRefusedAfterEdit(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})
	ctx := context.Background()

	_, err := s.Bind(ctx, BindRequest{Header: "point.h", Names: []string{"distance"}})
	require.NoError(t, err)

	ast := s.lineages.intern("point.h", nil)
	hv, _, err := s.rt.Get(ctx, ir.ResolveQuery(ast, "distance"))
	require.NoError(t, err)
	handles := hv.([]ir.DeclHandle)
	require.Len(t, handles, 1)
	stale := handles[0]

	_, err = s.SetOverlay("point.h", []byte(pointHeaderWithZ))
	require.NoError(t, err)

	_, _, err = s.rt.Get(ctx, ir.TranslateQuery(stale))
	require.Error(t, err)
	assert.True(t, IsStaleHandle(err))

	// Re-resolving yields a live handle bound to the new generation.
	hv, _, err = s.rt.Get(ctx, ir.ResolveQuery(ast, "distance"))
	require.NoError(t, err)
	live := hv.([]ir.DeclHandle)[0]
	assert.NotEqual(t, stale.Gen, live.Gen)

	dv, _, err := s.rt.Get(ctx, ir.TranslateQuery(live))
	require.NoError(t, err)
	desc := dv.(*ir.BindingDescriptor)
	assert.EqualValues(t, 12, desc.Params[0].Type.Size)
}

func TestSession_Evict_OnlyCostsRecomputation(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})
	req := BindRequest{Header: "point.h", Names: []string{"distance", "Point"}}
	ctx := context.Background()

	res1, err := s.Bind(ctx, req)
	require.NoError(t, err)

	s.Evict(ir.ParseHeaderQuery("point.h", nil))

	res2, err := s.Bind(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, res1.Descriptors, res2.Descriptors, "eviction never changes results")

	// Identical content means the reparse is served by the frontend
	// cache, not another tree-sitter run.
	m := s.Metrics()
	assert.EqualValues(t, 1, m.Frontend.FrontendParses)
	assert.EqualValues(t, 1, m.Frontend.CacheHits)
}

func TestSession_Bind_ConcurrentRequestsShareOneParse(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})
	req := BindRequest{Header: "point.h", Names: []string{"distance", "Point"}}
	ctx := context.Background()

	const n = 4
	results := make([]*BindResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.Bind(ctx, req)
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		require.Len(t, results[i].Descriptors, 2)
		assert.Equal(t, results[0].Descriptors, results[i].Descriptors)
	}

	m := s.Metrics()
	assert.EqualValues(t, 1, m.Engine.ComputeCount(ir.QueryParseHeader))
	assert.EqualValues(t, 1, m.Engine.ComputeCount(ir.QueryFileText))
	assert.EqualValues(t, 1, m.Frontend.FrontendParses)
}

func TestSession_DeclNames(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})

	names, err := s.DeclNames(context.Background(), "point.h", nil)
	require.NoError(t, err)
	assert.Contains(t, names, "distance")
	assert.Contains(t, names, "Point")
	assert.Contains(t, names, "struct Point")
}

func TestSession_FlagsSelectSeparateLineages(t *testing.T) {
	const header = "int f(int);\n"
	s := newTestSession(t, map[string]string{"dual.h": header})
	ctx := context.Background()

	res, err := s.Bind(ctx, BindRequest{Header: "dual.h", Names: []string{"f"}})
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)

	res, err = s.Bind(ctx, BindRequest{Header: "dual.h", Flags: []string{"-x", "c++"}, Names: []string{"f"}})
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)

	// Same path, different flags: two lineages, two frontend parses.
	m := s.Metrics()
	assert.EqualValues(t, 2, m.Frontend.FrontendParses)
	assert.EqualValues(t, 2, m.Engine.ComputeCount(ir.QueryParseHeader))
}

func TestSession_WithProfile_ChangesLayout(t *testing.T) {
	const header = "long counter;\n"
	ctx := context.Background()
	req := BindRequest{Header: "abi.h", Names: []string{"counter"}}

	lp64 := newTestSession(t, map[string]string{"abi.h": header})
	res, err := lp64.Bind(ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)
	assert.EqualValues(t, 8, res.Descriptors[0].Type.Size)

	llp64, err := translate.LoadNamed("llp64")
	require.NoError(t, err)
	win := newTestSession(t, map[string]string{"abi.h": header}, WithProfile(llp64))
	res, err = win.Bind(ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)
	assert.EqualValues(t, 4, res.Descriptors[0].Type.Size)
}

func TestSession_DiagnosticsAccumulateAcrossBinds(t *testing.T) {
	s := newTestSession(t, map[string]string{"point.h": pointHeader})
	ctx := context.Background()

	_, err := s.Bind(ctx, BindRequest{Header: "point.h", Names: []string{"distance"}})
	require.NoError(t, err)
	assert.Empty(t, s.Diagnostics())
	assert.False(t, s.HasErrors())

	res, err := s.Bind(ctx, BindRequest{Header: "point.h", Names: []string{"missing_fn"}})
	require.NoError(t, err)
	require.Len(t, res.Diags, 1)

	all := s.Diagnostics()
	require.Len(t, all, 1)
	assert.Equal(t, diag.CodeNotFound, all[0].Code)
	assert.True(t, s.HasErrors())

	// A clean bind adds nothing; the earlier failure stays on record.
	_, err = s.Bind(ctx, BindRequest{Header: "point.h", Names: []string{"Point"}})
	require.NoError(t, err)
	assert.Len(t, s.Diagnostics(), 1)

	s.ResetDiagnostics()
	assert.Empty(t, s.Diagnostics())
	assert.False(t, s.HasErrors())
}

func TestSession_WarningsAloneDoNotFailTheBuild(t *testing.T) {
	const header = `
union Raw {
    int bits;
    float value;
};
`
	s := newTestSession(t, map[string]string{"raw.h": header})

	res, err := s.Bind(context.Background(), BindRequest{Header: "raw.h", Names: []string{"Raw"}})
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)
	assert.True(t, res.Descriptors[0].Type.PartialLayout)

	require.Len(t, res.Diags, 1)
	assert.Equal(t, diag.SeverityWarning, res.Diags[0].Severity)
	assert.Equal(t, diag.CodePartialLayout, res.Diags[0].Code)

	assert.False(t, res.HasErrors())
	assert.False(t, s.HasErrors(), "warnings alone leave the session passing")
}
