package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	t.Run("identical coordinates", func(t *testing.T) {
		assert.Equal(t, 0, Distance(47.3769, 8.5417, 47.3769, 8.5417))
		assert.Equal(t, 0, Distance(-90, 0, -90, 0))
	})

	t.Run("london to paris", func(t *testing.T) {
		d := Distance(51.5074, -0.1278, 48.8566, 2.3522)
		assert.InDelta(t, 343_500, d, 1_500)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Distance(40.7128, -74.0060, 35.6762, 139.6503)
		b := Distance(35.6762, 139.6503, 40.7128, -74.0060)
		assert.Equal(t, a, b)
	})

	t.Run("antipodes below timeout penalty", func(t *testing.T) {
		d := Distance(0, 0, 0, 180)
		assert.InDelta(t, 20_015_087, d, 2)
		assert.Less(t, d, TimeoutPenalty)
	})
}

func TestApply(t *testing.T) {
	assert.Equal(t, 50, Apply(100, 0.5))
	assert.Equal(t, 200, Apply(100, 2))
	assert.Equal(t, 100, Apply(100, 0))

	// a doubled antipodal guess must still beat not guessing at all
	antipode := Distance(0, 0, 0, 180)
	assert.Equal(t, MaxScored, Apply(antipode, 2))
	assert.Less(t, Apply(antipode, 2), TimeoutPenalty)
}

func TestRoundWinner(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		entries []Entry
		want    string
		wantOK  bool
	}{
		{
			name: "closest non-timeout wins",
			entries: []Entry{
				{PlayerID: "A", Distance: 120, SubmittedAt: base},
				{PlayerID: "B", Distance: 95, SubmittedAt: base.Add(time.Second)},
				{PlayerID: "C", Distance: TimeoutPenalty, Timeout: true},
			},
			want:   "B",
			wantOK: true,
		},
		{
			name: "tie goes to earliest submission",
			entries: []Entry{
				{PlayerID: "A", Distance: 10, SubmittedAt: base.Add(2 * time.Second)},
				{PlayerID: "B", Distance: 10, SubmittedAt: base.Add(time.Second)},
			},
			want:   "B",
			wantOK: true,
		},
		{
			name: "all timeouts has no winner",
			entries: []Entry{
				{PlayerID: "A", Distance: TimeoutPenalty, Timeout: true},
				{PlayerID: "B", Distance: TimeoutPenalty, Timeout: true},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RoundWinner(tt.entries)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.PlayerID)
			}
		})
	}
}

func TestGameWinner(t *testing.T) {
	tests := []struct {
		name      string
		standings []Standing
		want      string
		wantOK    bool
	}{
		{
			name: "lower cumulative distance wins",
			standings: []Standing{
				{PlayerID: "A", Cumulative: []int{120, 200}, Order: 0},
				{PlayerID: "B", Cumulative: []int{95, 245}, Order: 1},
			},
			want:   "A",
			wantOK: true,
		},
		{
			name: "tie broken by earliest lead",
			standings: []Standing{
				{PlayerID: "A", Cumulative: []int{150, 300}, Order: 0},
				{PlayerID: "B", Cumulative: []int{100, 300}, Order: 1},
			},
			want:   "B",
			wantOK: true,
		},
		{
			name: "identical history falls back to roster order",
			standings: []Standing{
				{PlayerID: "A", Cumulative: []int{100, 300}, Order: 1},
				{PlayerID: "B", Cumulative: []int{100, 300}, Order: 0},
			},
			want:   "B",
			wantOK: true,
		},
		{
			name: "everyone timed out every round",
			standings: []Standing{
				{PlayerID: "A", Cumulative: []int{TimeoutPenalty, 2 * TimeoutPenalty}},
				{PlayerID: "B", Cumulative: []int{TimeoutPenalty, 2 * TimeoutPenalty}},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GameWinner(tt.standings)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.PlayerID)
			}
		})
	}
}
