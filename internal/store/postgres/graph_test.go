package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/store"
)

func TestWhitelistedKindFilterEmpty(t *testing.T) {
	filter, args, err := whitelistedKindFilter("rel.kind", nil)
	require.NoError(t, err)
	require.Empty(t, filter)
	require.Nil(t, args)
}

func TestWhitelistedKindFilterRejectsUnknownKind(t *testing.T) {
	_, _, err := whitelistedKindFilter("rel.kind", []entity.RelationshipKind{"drops_table"})
	require.Error(t, err)
	require.Equal(t, store.KindInvalidConfig, store.KindOf(err))
}

func TestWhitelistedKindFilterBuildsFragment(t *testing.T) {
	filter, args, err := whitelistedKindFilter("rel.kind", []entity.RelationshipKind{entity.RelCalls, entity.RelImports})
	require.NoError(t, err)
	require.Contains(t, filter, "rel.kind = ANY($4::text[])")
	require.Len(t, args, 1)
	require.ElementsMatch(t, []string{string(entity.RelCalls), string(entity.RelImports)}, args[0])
}
