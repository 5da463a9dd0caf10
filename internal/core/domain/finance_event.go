package domain

import (
	"errors"
	"time"
)

// FinanceEventStatus is the state machine gating when a booking gets priced.
// PENDING: the booking exists but is not final yet.
// READY: the booking was used (or cancelled with an incident) and awaits the
// nightly pricing job. An event whose venue has no pricing point configured
// stays READY until the configuration arrives.
// PRICED: a pricing row was created; terminal, never revisited. Incident
// corrections create a new, separate event referencing the original.
type FinanceEventStatus string

const (
	EventPending FinanceEventStatus = "PENDING"
	EventReady   FinanceEventStatus = "READY"
	EventPriced  FinanceEventStatus = "PRICED"
)

// FinanceEventMotive records why the booking became priceable.
type FinanceEventMotive string

const (
	MotiveBookingUsed              FinanceEventMotive = "BOOKING_USED"
	MotiveBookingCancelledIncident FinanceEventMotive = "BOOKING_CANCELLED_INCIDENT"
)

var ErrEventBookingXor = errors.New("finance event must reference exactly one of individual or collective booking")

// FinanceEvent marks a booking as eligible for pricing. Exactly one of
// IndividualBookingID / CollectiveBookingID is set; the xor is enforced both
// here and by a database check constraint.
type FinanceEvent struct {
	FinanceEventID      string             `json:"financeEventID"` // Primary key (UUID)
	Sequence            int64              `json:"sequence"`       // Monotonic ingestion order, drives deterministic pricing order
	Status              FinanceEventStatus `json:"status"`
	Motive              FinanceEventMotive `json:"motive"`
	IndividualBookingID *string            `json:"individualBookingID,omitempty"`
	CollectiveBookingID *string            `json:"collectiveBookingID,omitempty"`
	VenueID             string             `json:"venueID"`
	PricingPointID      *string            `json:"pricingPointID,omitempty"` // Nullable: venue may not be configured yet
	ValueDate           time.Time          `json:"valueDate"`                // When the booking became priceable
	OriginEventID       *string            `json:"originEventID,omitempty"`  // Set on incident compensation events
	AuditFields
}

// BookingID returns whichever booking reference is set.
func (e *FinanceEvent) BookingID() string {
	if e.IndividualBookingID != nil {
		return *e.IndividualBookingID
	}
	if e.CollectiveBookingID != nil {
		return *e.CollectiveBookingID
	}
	return ""
}

// Validate checks the individual/collective xor invariant.
func (e *FinanceEvent) Validate() error {
	hasIndividual := e.IndividualBookingID != nil && *e.IndividualBookingID != ""
	hasCollective := e.CollectiveBookingID != nil && *e.CollectiveBookingID != ""
	if hasIndividual == hasCollective {
		return ErrEventBookingXor
	}
	return nil
}
