package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestResolveCrossFileImport mirrors the end-to-end scenario in §8.2: a
// module defining CoreType, imported and used by another module's function.
func TestResolveCrossFileImport(t *testing.T) {
	g := New()
	g.AddDefinition(Definition{EntityID: "core-type", QualifiedName: "my_core::CoreType", Name: "CoreType", FilePath: "core/lib.rs", Module: "my_core"})
	g.AddImport(Import{FilePath: "utils/lib.rs", LocalName: "CoreType", SourceModule: "my_core", Symbol: "CoreType"})
	g.AddReference(Reference{FilePath: "utils/lib.rs", LocalName: "CoreType", SourceEntity: "my_utils::process_core"})

	results := g.Resolve()
	require.Len(t, results, 1)
	require.True(t, results[0].Resolved)
	require.Equal(t, "my_core::CoreType", results[0].Target.QualifiedName)
}

func TestResolveSameFileDefinitionWins(t *testing.T) {
	g := New()
	g.AddDefinition(Definition{EntityID: "local", QualifiedName: "pkg.helper", Name: "helper", FilePath: "a.go", Module: "pkg"})
	g.AddImport(Import{FilePath: "a.go", LocalName: "helper", SourceModule: "other", Symbol: "helper"})
	g.AddReference(Reference{FilePath: "a.go", LocalName: "helper"})

	results := g.Resolve()
	require.True(t, results[0].Resolved)
	require.Equal(t, "pkg.helper", results[0].Target.QualifiedName)
}

func TestResolveUnresolvedExternalDependency(t *testing.T) {
	g := New()
	g.AddReference(Reference{FilePath: "a.go", LocalName: "fmt.Println"})

	results := g.Resolve()
	require.False(t, results[0].Resolved)
	require.Equal(t, ReasonExternalDependency, results[0].Reason)
}

func TestFollowImportDetectsReexportCycle(t *testing.T) {
	g := New()
	// a re-exports from b, b re-exports from a: a cycle that must terminate.
	g.AddImport(Import{FilePath: "a.go", LocalName: "X", SourceModule: "b", Symbol: "X", Public: true})
	g.AddImport(Import{FilePath: "b.go", LocalName: "X", SourceModule: "a", Symbol: "X", Public: true})
	g.AddReference(Reference{FilePath: "a.go", LocalName: "X"})

	results := g.Resolve()
	require.False(t, results[0].Resolved)
}

func TestAuditReportsPerFileCounts(t *testing.T) {
	g := New()
	g.AddDefinition(Definition{EntityID: "e1", QualifiedName: "pkg.Foo", Name: "Foo", FilePath: "a.go", Module: "pkg"})
	g.AddReference(Reference{FilePath: "a.go", LocalName: "Foo"})
	g.AddReference(Reference{FilePath: "a.go", LocalName: "Unknown"})

	audit := g.Audit()
	fa := audit["a.go"]
	require.Equal(t, 2, fa.TotalCount)
	require.Equal(t, 1, fa.ResolvedCount)
	require.Equal(t, 1, fa.UnresolvedKind[ReasonExternalDependency])
}
