package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeRange_Contains(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	r := TimeRange{Since: since, Until: until}

	tests := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		{name: "inside the range", at: since.Add(12 * time.Hour), expected: true},
		{name: "exactly at since is inclusive", at: since, expected: true},
		{name: "exactly at until is inclusive", at: until, expected: true},
		{name: "before since", at: since.Add(-time.Second), expected: false},
		{name: "after until", at: until.Add(time.Second), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Contains(tt.at))
		})
	}
}

func TestTimeRange_Valid(t *testing.T) {
	now := time.Now().UTC()

	assert.True(t, TimeRange{Since: now.Add(-time.Hour), Until: now}.Valid())
	assert.True(t, TimeRange{Since: now, Until: now}.Valid())
	assert.False(t, TimeRange{Since: now, Until: now.Add(-time.Hour)}.Valid())
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "items:late-played-log:42--abc123", DedupKey(42, "abc123"))
}
