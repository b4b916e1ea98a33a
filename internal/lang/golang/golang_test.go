package golang

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

// TestStructFieldScopePatternFixed regression-tests the latently broken Go
// ScopePattern (type_declaration/name, which has no such field) now reading
// type_spec/name, and exercises field/method nesting under the struct.
func TestStructFieldScopePatternFixed(t *testing.T) {
	src := `
package widgets

type Box struct {
	Width  int
	Height int
}

func (b *Box) Area() int {
	return b.Width * b.Height
}
`
	eng := newTestEngine()
	res := mustExtract(t, eng, "box.go", src)

	box := findEntity(res.Entities, "Box")
	width := findEntity(res.Entities, "Box.Width")
	method := findEntity(res.Entities, "Box.Area")
	require.NotNil(t, box)
	require.NotNil(t, width)
	require.NotNil(t, method, "method keyed by receiver type should be found")
	require.Equal(t, entity.TypeStruct, box.EntityType)
	require.Equal(t, "Box", width.ParentScope)
}

func TestPackageEntityEmitted(t *testing.T) {
	eng := newTestEngine()
	res := mustExtract(t, eng, "box.go", "package widgets\n\nfunc Noop() {}\n")

	pkg := findEntity(res.Entities, "/widgets")
	require.NotNil(t, pkg)
	require.Equal(t, entity.TypeModule, pkg.EntityType)
}

func TestExtractionIsDeterministic(t *testing.T) {
	src := "package lib\n\nfunc Compute(x int) int {\n\treturn x + 1\n}\n"
	first := mustExtract(t, newTestEngine(), "lib/compute.go", src)
	second := mustExtract(t, newTestEngine(), "lib/compute.go", src)

	require.Equal(t, len(first.Entities), len(second.Entities))
	firstIDs := make(map[string]string, len(first.Entities))
	for _, e := range first.Entities {
		firstIDs[e.QualifiedName] = e.ID
	}
	for _, e := range second.Entities {
		require.Equal(t, firstIDs[e.QualifiedName], e.ID)
	}
}
