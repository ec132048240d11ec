package stripesync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/stripesync/pkg/stripesync/stripe"
)

// The sink's REST API wraps list responses in {"results": [...]} on newer
// versions and returns a bare array on older ones; both must decode.
func TestDecodeResults(t *testing.T) {
	wrapped := json.RawMessage(`{"results":[{"id":"p1","distinct_ids":["a","b"]}],"next":null}`)
	bare := json.RawMessage(`[{"id":"p1","distinct_ids":["a","b"]}]`)

	for name, raw := range map[string]json.RawMessage{"wrapped": wrapped, "bare": bare} {
		t.Run(name, func(t *testing.T) {
			var persons []personResult
			require.NoError(t, decodeResults(raw, &persons))
			require.Len(t, persons, 1)
			assert.Equal(t, flexID("p1"), persons[0].ID)
			assert.Equal(t, []string{"a", "b"}, persons[0].DistinctIDs)
		})
	}
}

func TestDecodeResults_Groups(t *testing.T) {
	raw := json.RawMessage(`{"results":[{"group_type_index":0,"group_key":"org_1"},{"group_type_index":1,"group_key":"team_1"}]}`)

	var groups []relatedGroup
	require.NoError(t, decodeResults(raw, &groups))
	require.Len(t, groups, 2)
	assert.Equal(t, "org_1", groups[0].GroupKey)
	assert.Equal(t, 1, groups[1].GroupTypeIndex)
}

// Person ids arrive as numbers on self-hosted instances and as UUID strings
// on cloud.
func TestFlexID(t *testing.T) {
	var numeric personResult
	require.NoError(t, json.Unmarshal([]byte(`{"id":12345}`), &numeric))
	assert.Equal(t, flexID("12345"), numeric.ID)

	var uuid personResult
	require.NoError(t, json.Unmarshal([]byte(`{"id":"01823f10-a0c9"}`), &uuid))
	assert.Equal(t, flexID("01823f10-a0c9"), uuid.ID)
}

func TestPaidAt(t *testing.T) {
	assert.EqualValues(t, 0, paidAt(&stripe.Invoice{}))
	assert.EqualValues(t, 42, paidAt(&stripe.Invoice{
		StatusTransitions: &stripe.StatusTransitions{PaidAt: 42},
	}))
}

func TestIsoTime(t *testing.T) {
	assert.Equal(t, "2021-09-27T15:59:53.000Z", isoTime(1632758393))
}
