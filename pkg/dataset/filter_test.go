package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

func ratedRun(id string, rating float64, tags ...string) datamodel.TaskRun {
	v := rating
	return datamodel.TaskRun{
		ID:   id,
		Tags: tags,
		Output: datamodel.TaskOutput{
			Output: "out",
			Rating: &datamodel.TaskRunRating{Value: &v, Type: datamodel.ScoreTypeFiveStar},
		},
	}
}

func TestParseFilterID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "all"},
		{id: "high_rating"},
		{id: "thinking_model"},
		{id: "tag::eval_set"},
		{id: "tag::eval_set*"},
		{id: "tag::", wantErr: true},
		{id: "tag::[", wantErr: true},
		{id: "bogus", wantErr: true},
		{id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			f, err := ParseFilterID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, f.String())
		})
	}
}

func TestTagFilter(t *testing.T) {
	f, err := ParseFilterID("tag::eval_set")
	require.NoError(t, err)

	runs := []datamodel.TaskRun{
		ratedRun("r1", 5, "eval_set"),
		ratedRun("r2", 5, "golden"),
		ratedRun("r3", 2, "eval_set", "golden"),
		ratedRun("r4", 4),
	}

	got := Select(runs, f)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "r3", got[1].ID)
}

func TestTagFilterGlob(t *testing.T) {
	f, err := ParseFilterID("tag::eval_set*")
	require.NoError(t, err)

	assert.True(t, f.Match(&datamodel.TaskRun{Tags: []string{"eval_set"}}))
	assert.True(t, f.Match(&datamodel.TaskRun{Tags: []string{"eval_set_v2"}}))
	assert.False(t, f.Match(&datamodel.TaskRun{Tags: []string{"golden"}}))
}

func TestHighRatingFilter(t *testing.T) {
	f, err := ParseFilterID("high_rating")
	require.NoError(t, err)

	assert.True(t, f.Match(toPtrRun(ratedRun("r1", 4))))
	assert.True(t, f.Match(toPtrRun(ratedRun("r2", 5))))
	assert.False(t, f.Match(toPtrRun(ratedRun("r3", 3))))
	assert.False(t, f.Match(&datamodel.TaskRun{ID: "unrated"}))
}

func TestThinkingModelFilter(t *testing.T) {
	f, err := ParseFilterID("thinking_model")
	require.NoError(t, err)

	withReasoning := datamodel.TaskRun{
		ID:                  "r1",
		IntermediateOutputs: map[string]string{"reasoning": "step one"},
	}
	withChain := datamodel.TaskRun{
		ID:                  "r2",
		IntermediateOutputs: map[string]string{"chain_of_thought": "because"},
	}
	without := datamodel.TaskRun{
		ID:                  "r3",
		IntermediateOutputs: map[string]string{"reasoning": "   "},
	}

	assert.True(t, f.Match(&withReasoning))
	assert.True(t, f.Match(&withChain))
	assert.False(t, f.Match(&without))
}

func toPtrRun(r datamodel.TaskRun) *datamodel.TaskRun {
	return &r
}
