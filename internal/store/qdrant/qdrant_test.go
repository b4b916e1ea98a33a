package qdrant

import (
	"testing"

	qd "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/require"

	"github.com/madeindigio/codesearch/internal/store"
)

func TestToFilterBuildsKeywordMatch(t *testing.T) {
	filter, err := toFilter(store.PayloadFilter{"repository_id": "repo-1"})
	require.NoError(t, err)
	require.Len(t, filter.Must, 1)

	field := filter.Must[0].GetField()
	require.Equal(t, "repository_id", field.Key)
	require.Equal(t, "repo-1", field.Match.GetKeyword())
}

func TestToFilterRejectsNonStringValues(t *testing.T) {
	_, err := toFilter(store.PayloadFilter{"count": 5})
	require.Error(t, err)
}

func TestFromPayloadDecodesEachValueKind(t *testing.T) {
	payload := map[string]*qd.Value{
		"name":   {Kind: &qd.Value_StringValue{StringValue: "foo"}},
		"count":  {Kind: &qd.Value_IntegerValue{IntegerValue: 7}},
		"score":  {Kind: &qd.Value_DoubleValue{DoubleValue: 0.5}},
		"active": {Kind: &qd.Value_BoolValue{BoolValue: true}},
	}

	out := fromPayload(payload)
	require.Equal(t, "foo", out["name"])
	require.Equal(t, int64(7), out["count"])
	require.Equal(t, 0.5, out["score"])
	require.Equal(t, true, out["active"])
}

func TestNewDefaultsGRPCPort(t *testing.T) {
	v := New("localhost", 0, "")
	require.Equal(t, 6334, v.port)
}
