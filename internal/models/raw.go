package models

import "time"

// RawShowing is one unvalidated performance record produced by a source adapter.
// It is never persisted; the resolver consumes it immediately.
type RawShowing struct {
	Title     string
	StartTime time.Time

	// Free text the source attaches to the performance (language, "OmU", "OV", ...)
	Hint string
	// Set when the source exposes an explicit flag for the dub variant
	DubVariant DubVariant

	// Booking state, only meaningful when BookingKnown is true
	BookingKnown bool
	Bookable     bool
	Reservable   bool

	URL          string
	ShopURL      string
	SpecialEvent string

	Metadata *MovieMetadata
}
