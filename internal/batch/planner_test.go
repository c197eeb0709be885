package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

func makeEntries(n int) []subtitle.Entry {
	ret := make([]subtitle.Entry, n)
	for i := range ret {
		ret[i] = subtitle.Entry{
			ID:       i + 1,
			Timecode: fmt.Sprintf("00:00:%02d,000 --> 00:00:%02d,500", i%60, i%60),
			Text:     fmt.Sprintf("line %d", i+1),
		}
	}
	return ret
}

func assertPartition(t *testing.T, entries []subtitle.Entry, batches []Batch) {
	t.Helper()
	next := 1
	for _, b := range batches {
		require.NotEmpty(t, b.Entries)
		assert.Equal(t, b.Entries[0].ID, b.StartID)
		for _, e := range b.Entries {
			require.Equal(t, next, e.ID, "gap or overlap at id %d", next)
			next++
		}
	}
	assert.Equal(t, len(entries)+1, next)
}

func TestPlan_FixedCount(t *testing.T) {
	t.Parallel()

	entries := makeEntries(10)
	batches := NewPlanner(Config{BatchSize: 4}, nil).Plan(context.Background(), entries)

	require.Len(t, batches, 3)
	assert.Equal(t, []int{4, 4, 2}, []int{batches[0].Len(), batches[1].Len(), batches[2].Len()})
	assertPartition(t, entries, batches)
}

func TestPlan_SingleUnitWithoutCeiling(t *testing.T) {
	t.Parallel()

	entries := makeEntries(25)
	batches := NewPlanner(Config{BatchSize: 4, SingleUnit: true}, nil).Plan(context.Background(), entries)

	require.Len(t, batches, 1)
	assert.Equal(t, 25, batches[0].Len())
}

func TestPlan_Empty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewPlanner(Config{BatchSize: 4}, nil).Plan(context.Background(), nil))
}

func TestFit_SplitsOnlyOversizedRegion(t *testing.T) {
	t.Parallel()

	entries := makeEntries(8)
	// entries 1-4 cost 10 tokens each, the rest cost 1
	measure := func(_ context.Context, b Batch) int {
		total := 0
		for _, e := range b.Entries {
			if e.ID <= 4 {
				total += 10
			} else {
				total++
			}
		}
		return total
	}

	batches := NewPlanner(Config{SingleUnit: true, TokenCeiling: 20}, measure).Plan(context.Background(), entries)

	assertPartition(t, entries, batches)
	// [1-2] [3-4] [5-8]
	require.Len(t, batches, 3)
	assert.Equal(t, 2, batches[0].Len())
	assert.Equal(t, 2, batches[1].Len())
	assert.Equal(t, 4, batches[2].Len())
	for _, b := range batches {
		assert.LessOrEqual(t, measure(context.Background(), b), 20)
	}
}

func TestFit_DepthBounded(t *testing.T) {
	t.Parallel()

	entries := makeEntries(13)
	calls := 0
	// nothing ever fits
	measure := func(_ context.Context, _ Batch) int {
		calls++
		return 1_000_000
	}

	batches := NewPlanner(Config{SingleUnit: true, TokenCeiling: 1}, measure).Plan(context.Background(), entries)

	assertPartition(t, entries, batches)
	assert.Len(t, batches, 13)
	for _, b := range batches {
		assert.Equal(t, 1, b.Len())
	}
	// every internal node is measured once; 13 leaves -> 12 splits
	assert.Equal(t, 12, calls)
}

func TestMaxSplitDepth(t *testing.T) {
	t.Parallel()

	cases := map[int]int{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 1000: 10}
	for n, want := range cases {
		assert.Equal(t, want, MaxSplitDepth(n), "n=%d", n)
	}
}

func TestHeuristicTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, HeuristicTokens(""))
	assert.Equal(t, 2, HeuristicTokens("abcd")) // ceil(1*1.1)
	assert.Equal(t, 11, HeuristicTokens(string(make([]byte, 40))))
	assert.Equal(t, 2, HeuristicTokens("你好世界")) // rune based
}

func TestBatch_SubAndIndexOf(t *testing.T) {
	t.Parallel()

	b := New(makeEntries(5))
	sub := b.Sub([]int{1, 3, 9})
	require.Equal(t, 2, sub.Len())
	assert.Equal(t, 2, sub.StartID)

	pos, ok := sub.IndexOf(4)
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	_, ok = sub.IndexOf(3)
	assert.False(t, ok)
	assert.Equal(t, 4, sub.EndID())
}
