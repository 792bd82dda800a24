package candles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caller-alert-lab/internal/domain"
)

func sparse(ts ...int64) domain.CandleSlice {
	out := make(domain.CandleSlice, len(ts))
	for i, t := range ts {
		out[i] = &domain.Candle{Ts: t, IntervalSeconds: 60, Close: 1}
	}
	return out
}

func TestExpectedTimestamps(t *testing.T) {
	// Unaligned from rounds up to the grid.
	assert.Equal(t, []int64{120, 180, 240}, ExpectedTimestamps(61, 240, 60))
	assert.Equal(t, []int64{60, 120}, ExpectedTimestamps(60, 179, 60))
	assert.Nil(t, ExpectedTimestamps(120, 60, 60))
	assert.Nil(t, ExpectedTimestamps(0, 100, 0))
}

func TestFindGaps_SetDifference(t *testing.T) {
	// Expected {60..360}, present {60, 120, 300}.
	gaps := FindGaps(sparse(60, 120, 300), 60, 360, 60)
	require.Len(t, gaps, 2)
	assert.Equal(t, Gap{From: 180, To: 240}, gaps[0])
	assert.Equal(t, Gap{From: 360, To: 360}, gaps[1])
}

func TestFindGaps_Complete(t *testing.T) {
	gaps := FindGaps(sparse(60, 120, 180), 60, 180, 60)
	assert.Empty(t, gaps)
}

func TestFindGaps_EmptyDataSingleRange(t *testing.T) {
	// A range entirely outside stored data is one contiguous gap.
	gaps := FindGaps(nil, 60, 300, 60)
	require.Len(t, gaps, 1)
	assert.Equal(t, Gap{From: 60, To: 300}, gaps[0])
}

func TestLRUCache_EvictsOldest(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", sparse(60))
	c.put("b", sparse(120))
	c.put("c", sparse(180))

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_GetRefreshes(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", sparse(60))
	c.put("b", sparse(120))

	_, ok := c.get("a")
	require.True(t, ok)

	c.put("c", sparse(180))

	// "b" was the least recently used entry.
	_, ok = c.get("b")
	assert.False(t, ok)
	_, ok = c.get("a")
	assert.True(t, ok)
}

func TestLRUCache_ReturnsCopies(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", sparse(60))

	got, ok := c.get("a")
	require.True(t, ok)
	got[0].Close = 99

	again, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 1.0, again[0].Close)
}
