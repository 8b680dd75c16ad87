package engine

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestPartition(t *testing.T) {
	for _, n := range []int{0, 1, 24, 25, 26, 50, 51, 137} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			items := make([]int, n)
			for i := range items {
				items[i] = i
			}

			batches := Partition(items, 25)

			assert.Len(t, batches, (n+24)/25)
			var joined []int
			for i, b := range batches {
				assert.NotEmpty(t, b)
				assert.LessOrEqual(t, len(b), 25)
				if i < len(batches)-1 {
					assert.Len(t, b, 25)
				}
				joined = append(joined, b...)
			}
			assert.True(t, slices.Equal(items, joined), "concatenation must equal input")
		})
	}
}

func TestPartition_AppendDoesNotClobberNextBatch(t *testing.T) {
	batches := Partition([]string{"a", "b", "c"}, 2)
	require.Len(t, batches, 2)

	_ = append(batches[0], "x")
	assert.Equal(t, []string{"c"}, batches[1])
}

func TestRemaining(t *testing.T) {
	d := &model.CampaignDetail{
		Type:  model.CampaignTypeConnection,
		Users: []model.User{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}, {ID: "u4"}},
	}

	got := Remaining(unitsOf(d), []string{"u3"}, map[string]struct{}{"u1": {}})

	keys := make([]string, 0, len(got))
	for _, u := range got {
		keys = append(keys, u.Key)
	}
	assert.Equal(t, []string{"u2", "u4"}, keys)
}

func TestUnitsOf_Commenting(t *testing.T) {
	d := &model.CampaignDetail{
		Type:  model.CampaignTypeCommenting,
		Posts: []model.Post{{ID: "p1", PostID: "urn:1"}, {ID: "p2", PostID: "urn:2"}},
	}

	units := unitsOf(d)

	require.Len(t, units, 2)
	assert.Equal(t, "p1", units[0].Key)
	assert.Equal(t, "urn:2", units[1].Post.PostID)
	assert.Nil(t, units[0].User)
	assert.Equal(t, model.CampaignTypeCommenting, units[0].campaignType())
}
