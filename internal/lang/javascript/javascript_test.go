package javascript

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
  run() {}
}

class Beta {
  run() {}
}
`
	eng := newTestEngine()
	res := mustExtract(t, eng, "widgets/both.js", src)

	a := findEntity(res.Entities, "widgets.both.Alpha.run")
	b := findEntity(res.Entities, "widgets.both.Beta.run")
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotEqual(t, a.ID, b.ID)
}

func TestModuleEntityEmitted(t *testing.T) {
	eng := newTestEngine()
	res := mustExtract(t, eng, "my_core/index.js", "export class CoreType {}\n")

	// index.js folds to the parent directory per the documented convention.
	mod := findEntity(res.Entities, "my_core")
	require.NotNil(t, mod)
	require.Equal(t, entity.TypeModule, mod.EntityType)
}

// TestImportVariantsEmitRelationships covers default, named, aliased and
// namespace imports plus a relative specifier resolved against the file's
// directory (§8 scenario 2).
func TestImportVariantsEmitRelationships(t *testing.T) {
	src := `
import Default from "./local";
import { Named, Other as Alias } from "my_core";
import * as NS from "some-package";
`
	eng := newTestEngine()
	res := mustExtract(t, eng, "my_utils/process.js", src)

	var imports []*entity.Relationship
	for _, rel := range res.Relationships {
		if rel.Kind == entity.RelImports {
			imports = append(imports, rel)
		}
	}
	require.Len(t, imports, 4)

	byLocal := make(map[string]*entity.Relationship)
	for _, rel := range imports {
		byLocal[rel.TargetQualifiedName] = rel
	}

	require.Equal(t, "my_utils.local", byLocal["Default"].ImportSourceModule)
	require.Equal(t, "default", byLocal["Default"].ImportSymbol)

	require.Equal(t, "my_core", byLocal["Named"].ImportSourceModule)
	require.Equal(t, "Named", byLocal["Named"].ImportSymbol)

	require.Equal(t, "my_core", byLocal["Alias"].ImportSourceModule)
	require.Equal(t, "Other", byLocal["Alias"].ImportSymbol)

	var wildcard *entity.Relationship
	for _, rel := range imports {
		if rel.ImportWildcard {
			wildcard = rel
		}
	}
	require.NotNil(t, wildcard)
	require.Equal(t, "some-package", wildcard.ImportSourceModule)
}

func TestExtractionIsDeterministic(t *testing.T) {
	src := "function compute(x) {\n  return x + 1;\n}\n"
	first := mustExtract(t, newTestEngine(), "lib/compute.js", src)
	second := mustExtract(t, newTestEngine(), "lib/compute.js", src)

	require.Equal(t, len(first.Entities), len(second.Entities))
	firstIDs := make(map[string]string, len(first.Entities))
	for _, e := range first.Entities {
		firstIDs[e.QualifiedName] = e.ID
	}
	for _, e := range second.Entities {
		require.Equal(t, firstIDs[e.QualifiedName], e.ID)
	}
}
