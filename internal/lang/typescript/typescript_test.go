package typescript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
)

func newTestEngine() *lang.Engine {
	reg := lang.NewRegistry()
	reg.Register(New())
	return lang.NewEngine(reg)
}

func mustExtract(t *testing.T, eng *lang.Engine, relPath, src string) *lang.ExtractResult {
	t.Helper()
	res, err := eng.ExtractFile(context.Background(), "repo-1", relPath, []byte(src))
	require.NoError(t, err)
	return res
}

func findEntity(entities []*entity.Entity, qname string) *entity.Entity {
	for _, e := range entities {
		if e.QualifiedName == qname {
			return e
		}
	}
	return nil
}

// TestMethodQualifiedNameNestsUnderClass regression-tests the same-named
// method collision fixed by wiring class_declaration into BuildQualifiedName.
func TestMethodQualifiedNameNestsUnderClass(t *testing.T) {
	src := `
class Alpha {
  run(): void {}
}

class Beta {
  run(): void {}
}
`
	eng := newTestEngine()
	res := mustExtract(t, eng, "widgets/both.ts", src)

	a := findEntity(res.Entities, "widgets.both.Alpha.run")
	b := findEntity(res.Entities, "widgets.both.Beta.run")
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, "widgets.both.Alpha", a.ParentScope)
}

func TestReexportEmitsReexportsRelationship(t *testing.T) {
	src := `export { CoreType } from "my_core";`
	eng := newTestEngine()
	res := mustExtract(t, eng, "my_utils/barrel.ts", src)

	var found *entity.Relationship
	for _, rel := range res.Relationships {
		if rel.Kind == entity.RelReexports {
			found = rel
		}
	}
	require.NotNil(t, found)
	require.Equal(t, "my_core", found.ImportSourceModule)
	require.Equal(t, "CoreType", found.ImportSymbol)
}

func TestExtractionIsDeterministic(t *testing.T) {
	src := "interface Shape {\n  area(): number;\n}\n"
	first := mustExtract(t, newTestEngine(), "shapes/shape.ts", src)
	second := mustExtract(t, newTestEngine(), "shapes/shape.ts", src)

	require.Equal(t, len(first.Entities), len(second.Entities))
	firstIDs := make(map[string]string, len(first.Entities))
	for _, e := range first.Entities {
		firstIDs[e.QualifiedName] = e.ID
	}
	for _, e := range second.Entities {
		require.Equal(t, firstIDs[e.QualifiedName], e.ID)
	}
}
