// Package slots decomposes free blocks into fixed-duration bookable slots.
//
// Decomposition is pure: the same blocks and duration always yield the same
// slots, including their ids.
package slots

import (
	"time"

	"github.com/google/uuid"

	"github.com/teemow/slotbook/internal/calendar"
)

// namespace scopes slot ids derived with UUIDv5.
var namespace = uuid.MustParse("6f1c1d0e-5b0a-4c2e-9a57-2f3f8e0b9c41")

// BookableSlot is one offerable interval carved out of a free block.
type BookableSlot struct {
	ID            string    `json:"id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	SourceBlockID string    `json:"sourceBlockId"`
}

// Decompose emits floor(len(block)/duration) back-to-back slots per block,
// starting at the block start. The remainder is never offered. Output is in
// block order, ascending within a block.
func Decompose(blocks []calendar.FreeBlock, duration time.Duration) []BookableSlot {
	if duration <= 0 {
		return nil
	}

	var out []BookableSlot
	for _, block := range blocks {
		if !block.End.After(block.Start) {
			continue
		}
		count := int(block.End.Sub(block.Start) / duration)
		for i := range count {
			start := block.Start.Add(time.Duration(i) * duration)
			out = append(out, BookableSlot{
				ID:            SlotID(block.ID, start),
				Start:         start,
				End:           start.Add(duration),
				SourceBlockID: block.ID,
			})
		}
	}
	return out
}

// DecomposeMinutes is Decompose with the duration given in minutes.
func DecomposeMinutes(blocks []calendar.FreeBlock, minutes int) []BookableSlot {
	return Decompose(blocks, time.Duration(minutes)*time.Minute)
}

// SlotID derives the stable id of the slot starting at start in blockID.
func SlotID(blockID string, start time.Time) string {
	return uuid.NewSHA1(namespace, []byte(blockID+"|"+start.UTC().Format(time.RFC3339))).String()
}

// Find returns the slot of blockID that starts at start.
func Find(slots []BookableSlot, blockID string, start time.Time) (BookableSlot, bool) {
	for _, s := range slots {
		if s.SourceBlockID == blockID && s.Start.Equal(start) {
			return s, true
		}
	}
	return BookableSlot{}, false
}

// FindByID returns the slot with the given id.
func FindByID(slots []BookableSlot, id string) (BookableSlot, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return BookableSlot{}, false
}
