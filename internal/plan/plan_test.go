package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"FREE", Free, false},
		{"pro", Pro, false},
		{"  Enterprise ", Enterprise, false},
		{"GOLD", Free, true},
		{"", Free, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTier(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTier_TextRoundTrip(t *testing.T) {
	for _, tier := range Tiers {
		b, err := tier.MarshalText()
		require.NoError(t, err)

		var back Tier
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, tier, back)
	}

	_, err := Tier(42).MarshalText()
	assert.Error(t, err, "undeclared tier must not marshal")
}

func TestFor_UnknownTierFallsBackToFree(t *testing.T) {
	assert.Equal(t, For(Free), For(Tier(99)))
}

func TestLimit_Allows(t *testing.T) {
	assert.True(t, Limit(2).Allows(1, 1))
	assert.False(t, Limit(2).Allows(2, 1))
	assert.False(t, Limit(2).Allows(0, 3))
	assert.True(t, Unlimited.Allows(1_000_000, 1_000_000))
}

func TestLimit_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Limit `json:"a"`
		B Limit `json:"b"`
	}{A: 10, B: Unlimited})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":10,"b":null}`, string(b))
}

func TestEvaluate_EnterpriseIsUnlimited(t *testing.T) {
	r := Evaluate(Enterprise, Usage{
		TotalProjects:  10_000,
		TotalPolls:     50_000,
		TotalResponses: 9_999_999,
	})

	assert.True(t, r.Unlimited)
	assert.Nil(t, r.Remaining.Projects)
	assert.Nil(t, r.Remaining.Polls)
	assert.Nil(t, r.Remaining.Responses)
	assert.False(t, r.Exceeded.Projects)
	assert.False(t, r.Exceeded.Polls)
	assert.False(t, r.Exceeded.Responses)
}

func TestEvaluate_FreeProjectsExceeded(t *testing.T) {
	r := Evaluate(Free, Usage{TotalProjects: 3})

	require.NotNil(t, r.Remaining.Projects)
	assert.Equal(t, 0, *r.Remaining.Projects)
	assert.True(t, r.Exceeded.Projects)

	require.NotNil(t, r.Remaining.Polls)
	assert.Equal(t, 4, *r.Remaining.Polls)
	assert.False(t, r.Exceeded.Polls)
	assert.False(t, r.Unlimited)
}

func TestEvaluate_AtLimitIsNotExceeded(t *testing.T) {
	r := Evaluate(Pro, Usage{TotalProjects: 10, TotalPolls: 20, TotalResponses: 10000})

	assert.Equal(t, 0, *r.Remaining.Projects)
	assert.Equal(t, 0, *r.Remaining.Polls)
	assert.Equal(t, 0, *r.Remaining.Responses)
	assert.False(t, r.Exceeded.Projects)
	assert.False(t, r.Exceeded.Polls)
	assert.False(t, r.Exceeded.Responses)
}

func TestEvaluate_IsTotal(t *testing.T) {
	// Negative counts never come from the store, but the evaluator must
	// not panic on them either.
	r := Evaluate(Free, Usage{TotalProjects: -5, TotalPolls: -1, TotalResponses: -100})
	assert.Equal(t, 7, *r.Remaining.Projects)
	assert.False(t, r.Exceeded.Projects)
}

func TestEvaluate_Deterministic(t *testing.T) {
	u := Usage{TotalProjects: 1, TotalPolls: 3, TotalResponses: 500}
	assert.Equal(t, Evaluate(Free, u), Evaluate(Free, u))
}

func TestReport_Allows(t *testing.T) {
	tests := []struct {
		name         string
		tier         Tier
		usage        Usage
		projects     int
		polls        int
		wantProjects bool
		wantPolls    bool
	}{
		{"free with room", Free, Usage{TotalProjects: 1, TotalPolls: 2}, 1, 2, true, true},
		{"free at ceiling", Free, Usage{TotalProjects: 2, TotalPolls: 4}, 1, 1, false, false},
		{"free over ceiling", Free, Usage{TotalProjects: 5, TotalPolls: 9}, 1, 1, false, false},
		{"free polls would overflow", Free, Usage{TotalProjects: 0, TotalPolls: 3}, 1, 2, true, false},
		{"enterprise never full", Enterprise, Usage{TotalProjects: 1_000, TotalPolls: 1_000_000}, 1, 1_000, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Evaluate(tt.tier, tt.usage)
			assert.Equal(t, tt.wantProjects, r.AllowsProjects(tt.projects))
			assert.Equal(t, tt.wantPolls, r.AllowsPolls(tt.polls))

			// Same answer as the raw limits.
			p := For(tt.tier)
			assert.Equal(t, p.MaxProjects.Allows(tt.usage.TotalProjects, tt.projects), r.AllowsProjects(tt.projects))
			assert.Equal(t, p.MaxTotalPolls.Allows(tt.usage.TotalPolls, tt.polls), r.AllowsPolls(tt.polls))
		})
	}
}
