// Package booking reserves one slot of a free block.
//
// A booking runs Validating, Fetching, Creating, Reconciling, Notifying and
// Done, or ends in Failed. Creating the booking event commits it. The block
// is then shrunk, split in two, or deleted with a write conditional on the
// ETag it was fetched at; if that write loses to a concurrent change the
// booking event is removed and the caller gets SlotNoLongerAvailable. Nothing
// is retried.
package booking
