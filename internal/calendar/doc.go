// Package calendar is the typed gateway to the one Google Calendar that
// holds the owner's bookable blocks.
//
// Free blocks are events whose text matches the availability query. Writes
// that shrink or remove a block are conditional on the ETag the block was
// read at, so a concurrent change surfaces as ErrPreconditionFailed instead
// of being overwritten.
package calendar
