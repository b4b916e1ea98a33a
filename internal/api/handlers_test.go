package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/search"
	"github.com/madeindigio/codesearch/internal/store"
)

func TestResultEntitiesSkipsNilEntity(t *testing.T) {
	results := []search.Result{
		{Entity: &entity.Entity{ID: "a"}},
		{Entity: nil},
		{Entity: &entity.Entity{ID: "b"}},
	}
	out := resultEntities(results)
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].ID)
	require.Equal(t, "b", out[1].ID)
}

func TestToMetadataBodyCarriesFields(t *testing.T) {
	body := toMetadataBody(time.Now().Add(-5*time.Millisecond), search.Metadata{TotalResults: 3, Reranked: true})
	require.Equal(t, 3, body.TotalResults)
	require.True(t, body.Reranked)
	require.GreaterOrEqual(t, body.QueryTimeMS, int64(0))
}

func TestBackendErrorStatusMapsKinds(t *testing.T) {
	status, _ := backendErrorStatus(store.NewInvalidConfigError("bad"))
	require.Equal(t, 400, status)

	status, _ = backendErrorStatus(store.NewCollectionNotFoundError("repo-x"))
	require.Equal(t, 404, status)

	status, _ = backendErrorStatus(store.NewBackendError(nil))
	require.Equal(t, 500, status)
}
