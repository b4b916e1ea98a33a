package lang_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
	"github.com/madeindigio/codesearch/internal/lang/python"
	"github.com/madeindigio/codesearch/internal/resolver"
)

// TestCrossFileResolutionScenario exercises §8 scenario 2 end to end: a
// my_core module defining CoreType, a my_utils module importing it and
// calling CoreType(), Contains edges within each file, and a reference to
// CoreType in my_utils that the resolver (C3) raises through the Imports
// binding to the concrete my_core entity — the wiring Finding 4 put in place between internal/lang and
// internal/resolver.
func TestCrossFileResolutionScenario(t *testing.T) {
	reg := lang.NewRegistry()
	reg.Register(python.New())
	eng := lang.NewEngine(reg)

	core, err := eng.ExtractFile(context.Background(), "repo-1", "my_core.py", []byte(`
class CoreType:
    def build(self):
        pass
`))
	require.NoError(t, err)

	utils, err := eng.ExtractFile(context.Background(), "repo-1", "my_utils/process.py", []byte(`
from my_core import CoreType

def process_core():
    CoreType()
`))
	require.NoError(t, err)

	// Each file satisfies §3's Contains invariant independently.
	requireContainsEdge(t, core)
	requireContainsEdge(t, utils)

	graph := resolver.New()
	for _, fe := range []*lang.ExtractResult{core, utils} {
		module := moduleOf(fe.Entities)
		for _, e := range fe.Entities {
			graph.AddDefinition(resolver.Definition{
				EntityID: e.ID, QualifiedName: e.QualifiedName, Name: e.Name,
				FilePath: fe.FilePath, Module: module,
			})
		}
		for _, rel := range fe.Relationships {
			if rel.Kind == entity.RelImports || rel.Kind == entity.RelReexports {
				graph.AddImport(resolver.Import{
					FilePath: fe.FilePath, LocalName: rel.TargetQualifiedName,
					SourceModule: rel.ImportSourceModule, Symbol: rel.ImportSymbol,
					Wildcard: rel.ImportWildcard, Public: rel.Kind == entity.RelReexports,
				})
			}
		}
	}

	var coreTypeID string
	for _, e := range core.Entities {
		if e.Name == "CoreType" {
			coreTypeID = e.ID
		}
	}
	require.NotEmpty(t, coreTypeID)

	graph.AddReference(resolver.Reference{FilePath: "my_utils/process.py", LocalName: "CoreType", SourceEntity: "whatever"})
	resolutions := graph.Resolve()
	require.Len(t, resolutions, 1)
	require.True(t, resolutions[0].Resolved, "CoreType should resolve through the Imports edge into my_core")
	require.Equal(t, coreTypeID, resolutions[0].Target.EntityID)

	audit := graph.Audit()
	fa, ok := audit["my_utils/process.py"]
	require.True(t, ok)
	require.Equal(t, 1, fa.ResolvedCount)
	require.Equal(t, 1, fa.TotalCount)
}

func requireContainsEdge(t *testing.T, res *lang.ExtractResult) {
	t.Helper()
	var found bool
	for _, rel := range res.Relationships {
		if rel.Kind == entity.RelContains {
			found = true
		}
	}
	require.True(t, found, "expected at least one Contains edge in %s", res.FilePath)
}

func moduleOf(entities []*entity.Entity) string {
	for _, e := range entities {
		if e.EntityType == entity.TypeModule {
			return e.QualifiedName
		}
	}
	return ""
}
