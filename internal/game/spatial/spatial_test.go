package spatial

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridNegativeOrigin(t *testing.T) {
	g := NewSpatialGrid(-25, -5, 50, 30, 4, 16)

	g.Insert(0, -24, 1)
	g.Insert(1, 0, 1)
	g.Insert(2, 24, 20)

	got := g.QueryRadius(-23, 1, 2)
	assert.Contains(t, got, uint32(0))
	assert.NotContains(t, got, uint32(1))

	got = g.QueryRadius(1, 2, 1.5)
	assert.Contains(t, got, uint32(1))

	g.Clear()
	assert.Equal(t, 0, g.Stats().TotalEntities)
}

func TestGridClampsOutsidePoints(t *testing.T) {
	g := NewSpatialGrid(0, 0, 10, 10, 5, 4)
	g.Insert(7, -100, -100)
	g.Insert(8, 100, 100)

	assert.Equal(t, []uint32{7}, g.QueryCell(0, 0))
	assert.Equal(t, []uint32{8}, g.QueryCell(9, 9))

	cols, rows, size := g.Dimensions()
	assert.Equal(t, 2, cols)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 5.0, size)
}

func TestSkipListRanksByScore(t *testing.T) {
	sl := NewSkipList(1)
	sl.Insert("a", 10)
	sl.Insert("b", 30)
	sl.Insert("c", 20)

	assert.Equal(t, 1, sl.GetRank("b"))
	assert.Equal(t, 2, sl.GetRank("c"))
	assert.Equal(t, 3, sl.GetRank("a"))
	assert.Equal(t, 0, sl.GetRank("missing"))

	// Moving a key re-ranks it without duplicating it.
	sl.Insert("a", 50)
	assert.Equal(t, 3, sl.Length())
	assert.Equal(t, 1, sl.GetRank("a"))

	top, ok := sl.GetByRank(1)
	require.True(t, ok)
	assert.Equal(t, SkipListEntry{Key: "a", Score: 50}, top)

	assert.True(t, sl.Remove("b"))
	assert.False(t, sl.Remove("b"))
	assert.Equal(t, []SkipListEntry{{"a", 50}, {"c", 20}}, sl.GetRange(1, 10))
}

func TestSkipListTiesBreakByKey(t *testing.T) {
	sl := NewSkipList(2)
	sl.Insert("zed", 5)
	sl.Insert("amy", 5)

	assert.Equal(t, 1, sl.GetRank("amy"))
	assert.Equal(t, 2, sl.GetRank("zed"))
}

func TestSkipListManyEntries(t *testing.T) {
	sl := NewSkipList(3)
	for i := 0; i < 500; i++ {
		sl.Insert(fmt.Sprintf("p%03d", i), float64(i))
	}
	for i := 0; i < 500; i += 2 {
		sl.Insert(fmt.Sprintf("p%03d", i), float64(1000+i))
	}

	prev := 1e18
	count := 0
	sl.ForEach(func(rank int, e SkipListEntry) bool {
		assert.LessOrEqual(t, e.Score, prev)
		prev = e.Score
		count++
		assert.Equal(t, rank, sl.GetRank(e.Key))
		return true
	})
	assert.Equal(t, 500, count)

	e, ok := sl.GetByRank(1)
	require.True(t, ok)
	assert.Equal(t, "p498", e.Key)

	page := sl.GetRange(249, 252)
	require.Len(t, page, 4)
	assert.Equal(t, 251, sl.GetRank(page[2].Key))

	sl.Clear()
	assert.Equal(t, 0, sl.Length())
	_, ok = sl.GetScore("p001")
	assert.False(t, ok)
}
