package schedule

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Overlaps(t *testing.T) {
	base := Window{Start: 540, End: 660} // 09:00-11:00

	testCases := []struct {
		name     string
		other    Window
		expected bool
	}{
		{name: "Identical", other: Window{540, 660}, expected: true},
		{name: "Touching after", other: Window{660, 720}, expected: false},
		{name: "Touching before", other: Window{480, 540}, expected: false},
		{name: "Partial start", other: Window{600, 720}, expected: true},
		{name: "Partial end", other: Window{480, 600}, expected: true},
		{name: "Contained", other: Window{570, 630}, expected: true},
		{name: "Containing", other: Window{480, 720}, expected: true},
		{name: "Disjoint", other: Window{780, 840}, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, base.Overlaps(tc.other))
			assert.Equal(t, tc.expected, tc.other.Overlaps(base))
		})
	}
}

func TestHasOverlap(t *testing.T) {
	existing := []Window{{540, 660}, {720, 780}}
	assert.False(t, HasOverlap(existing, Window{660, 720}))
	assert.True(t, HasOverlap(existing, Window{750, 840}))
	assert.False(t, HasOverlap(nil, Window{540, 600}))
}

func TestWindow_Within(t *testing.T) {
	open, close := 540, 1080
	assert.True(t, Window{540, 660}.Within(open, close))
	assert.True(t, Window{960, 1080}.Within(open, close))
	assert.False(t, Window{480, 600}.Within(open, close))
	assert.False(t, Window{1020, 1140}.Within(open, close))
	assert.False(t, Window{600, 600}.Within(open, close))
	assert.Equal(t, 2, Window{540, 660}.Hours())
}

func TestAvailable(t *testing.T) {
	free := Available(Range(5), []int64{4, 2, 2})
	assert.Equal(t, []int64{1, 3, 5}, free)
	assert.Empty(t, Available(Range(2), []int64{1, 2}))
}

func TestPick(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	_, err := Pick(r, nil)
	assert.ErrorIs(t, err, ErrNoneAvailable)

	available := []int64{3, 7, 9}
	seen := map[int64]int{}
	for i := 0; i < 3000; i++ {
		id, err := Pick(r, available)
		require.NoError(t, err)
		seen[id]++
	}
	require.Len(t, seen, 3)
	for _, id := range available {
		// Each of three ids should land near 1000 draws.
		assert.InDelta(t, 1000, seen[id], 150)
	}
}
