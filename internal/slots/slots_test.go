package slots

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotbook/internal/calendar"
)

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func block(id string, startMin, endMin int) calendar.FreeBlock {
	return calendar.FreeBlock{
		ID:    id,
		Start: base.Add(time.Duration(startMin) * time.Minute),
		End:   base.Add(time.Duration(endMin) * time.Minute),
	}
}

func TestDecompose_HourIntoHalves(t *testing.T) {
	got := DecomposeMinutes([]calendar.FreeBlock{block("b1", 0, 60)}, 30)

	require.Len(t, got, 2)
	assert.Equal(t, base, got[0].Start)
	assert.Equal(t, base.Add(30*time.Minute), got[0].End)
	assert.Equal(t, base.Add(30*time.Minute), got[1].Start)
	assert.Equal(t, base.Add(60*time.Minute), got[1].End)
	assert.Equal(t, "b1", got[1].SourceBlockID)
}

func TestDecompose_Counts(t *testing.T) {
	tests := []struct {
		name      string
		blocks    []calendar.FreeBlock
		minutes   int
		wantCount int
	}{
		{name: "remainder discarded", blocks: []calendar.FreeBlock{block("b", 0, 100)}, minutes: 30, wantCount: 3},
		{name: "exact fit", blocks: []calendar.FreeBlock{block("b", 0, 90)}, minutes: 45, wantCount: 2},
		{name: "block shorter than duration", blocks: []calendar.FreeBlock{block("b", 0, 20)}, minutes: 30, wantCount: 0},
		{name: "inverted block", blocks: []calendar.FreeBlock{block("b", 60, 0)}, minutes: 30, wantCount: 0},
		{name: "empty block", blocks: []calendar.FreeBlock{block("b", 30, 30)}, minutes: 30, wantCount: 0},
		{name: "zero duration", blocks: []calendar.FreeBlock{block("b", 0, 60)}, minutes: 0, wantCount: 0},
		{name: "negative duration", blocks: []calendar.FreeBlock{block("b", 0, 60)}, minutes: -15, wantCount: 0},
		{name: "no blocks", blocks: nil, minutes: 30, wantCount: 0},
		{
			name:      "multiple blocks independent",
			blocks:    []calendar.FreeBlock{block("a", 0, 60), block("b", 120, 165)},
			minutes:   15,
			wantCount: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, DecomposeMinutes(tt.blocks, tt.minutes), tt.wantCount)
		})
	}
}

func TestDecompose_Properties(t *testing.T) {
	for _, length := range []int{0, 1, 29, 30, 31, 59, 60, 61, 90, 240, 479} {
		for _, d := range []int{1, 7, 15, 30, 45, 60} {
			t.Run(fmt.Sprintf("len=%d,d=%d", length, d), func(t *testing.T) {
				b := block("blk", 0, length)
				dur := time.Duration(d) * time.Minute
				got := Decompose([]calendar.FreeBlock{b}, dur)

				require.Len(t, got, length/d)
				cursor := b.Start
				for _, s := range got {
					assert.Equal(t, dur, s.End.Sub(s.Start))
					assert.Equal(t, cursor, s.Start, "slots are contiguous")
					assert.False(t, s.Start.Before(b.Start))
					assert.False(t, s.End.After(b.End))
					cursor = s.End
				}
				assert.Less(t, b.End.Sub(cursor), dur, "remainder shorter than duration")
			})
		}
	}
}

func TestDecompose_BlockOrderPreserved(t *testing.T) {
	got := DecomposeMinutes([]calendar.FreeBlock{block("late", 300, 360), block("early", 0, 60)}, 30)

	require.Len(t, got, 4)
	assert.Equal(t, []string{"late", "late", "early", "early"},
		[]string{got[0].SourceBlockID, got[1].SourceBlockID, got[2].SourceBlockID, got[3].SourceBlockID})
	assert.True(t, got[0].Start.Before(got[1].Start))
}

func TestDecompose_Idempotent(t *testing.T) {
	blocks := []calendar.FreeBlock{block("a", 0, 120), block("b", 200, 260)}
	first := DecomposeMinutes(blocks, 30)
	second := DecomposeMinutes(blocks, 30)
	assert.Equal(t, first, second)

	ids := map[string]bool{}
	for _, s := range first {
		assert.False(t, ids[s.ID], "ids are unique")
		ids[s.ID] = true
	}
}

func TestSlotID_ZoneIndependent(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	assert.Equal(t, SlotID("b", base), SlotID("b", base.In(ams)))
	assert.NotEqual(t, SlotID("b", base), SlotID("c", base))
}

func TestFind(t *testing.T) {
	all := DecomposeMinutes([]calendar.FreeBlock{block("a", 0, 60), block("b", 0, 60)}, 30)

	s, ok := Find(all, "b", base.Add(30*time.Minute))
	require.True(t, ok)
	assert.Equal(t, "b", s.SourceBlockID)

	byID, ok := FindByID(all, s.ID)
	require.True(t, ok)
	assert.Equal(t, s, byID)

	_, ok = Find(all, "a", base.Add(10*time.Minute))
	assert.False(t, ok)
	_, ok = FindByID(all, "nope")
	assert.False(t, ok)
}
