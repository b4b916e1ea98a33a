package rust

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

// TestMethodQualifiedNameNestsUnderImpl regression-tests the same-named
// method collision for two impl blocks in the same file, now that
// BuildQualifiedName's impl_item/"type" scope pattern is actually applied.
func TestMethodQualifiedNameNestsUnderImpl(t *testing.T) {
	src := `
struct Alpha;
struct Beta;

impl Alpha {
    pub fn run(&self) {}
}

impl Beta {
    pub fn run(&self) {}
}
`
	eng := newTestEngine()
	res := mustExtract(t, eng, "both.rs", src)

	a := findEntity(res.Entities, "both::Alpha::run")
	b := findEntity(res.Entities, "both::Beta::run")
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, entity.TypeMethod, a.EntityType)
}

func TestEnumVariantsNestUnderEnum(t *testing.T) {
	src := `
enum Shape {
    Circle,
    Square,
}
`
	eng := newTestEngine()
	res := mustExtract(t, eng, "shapes.rs", src)

	enum := findEntity(res.Entities, "shapes::Shape")
	circle := findEntity(res.Entities, "shapes::Shape::Circle")
	require.NotNil(t, enum)
	require.NotNil(t, circle)
	require.Equal(t, "shapes::Shape", circle.ParentScope)
}

// TestModuleRootFoldingAndUseDeclarations covers lib.rs crate-root folding
// and the use_declaration handler's structured Import edges: a plain path, a
// renamed import, a grouped use-list and a wildcard import.
func TestModuleRootFoldingAndUseDeclarations(t *testing.T) {
	src := `
use my_core::CoreType;
use my_core::helper as aliased_helper;
use my_core::{Left, Right as R};
use legacy::*;
`
	eng := newTestEngine()
	res := mustExtract(t, eng, "my_utils/lib.rs", src)

	mod := findEntity(res.Entities, "my_utils")
	require.NotNil(t, mod)
	require.Equal(t, entity.TypeModule, mod.EntityType)

	var imports []*entity.Relationship
	for _, rel := range res.Relationships {
		if rel.Kind == entity.RelImports {
			imports = append(imports, rel)
		}
	}
	// CoreType, helper-as-aliased_helper, Left, Right-as-R, and the wildcard.
	require.Len(t, imports, 5)

	byLocal := make(map[string]*entity.Relationship)
	var wildcard *entity.Relationship
	for _, rel := range imports {
		if rel.ImportWildcard {
			wildcard = rel
			continue
		}
		byLocal[rel.TargetQualifiedName] = rel
	}

	require.Equal(t, "my_core::CoreType", byLocal["CoreType"].ImportSourceModule)
	require.Equal(t, "aliased_helper", byLocal["aliased_helper"].TargetQualifiedName)
	require.Equal(t, "my_core::Left", byLocal["Left"].ImportSourceModule)
	require.Equal(t, "my_core::Right", byLocal["R"].ImportSourceModule)

	require.NotNil(t, wildcard)
	require.Equal(t, "legacy", wildcard.ImportSourceModule)
}

func TestExtractionIsDeterministic(t *testing.T) {
	src := "pub fn compute(x: i32) -> i32 {\n    x + 1\n}\n"
	first := mustExtract(t, newTestEngine(), "lib/compute.rs", src)
	second := mustExtract(t, newTestEngine(), "lib/compute.rs", src)

	require.Equal(t, len(first.Entities), len(second.Entities))
	firstIDs := make(map[string]string, len(first.Entities))
	for _, e := range first.Entities {
		firstIDs[e.QualifiedName] = e.ID
	}
	for _, e := range second.Entities {
		require.Equal(t, firstIDs[e.QualifiedName], e.ID)
	}
}
