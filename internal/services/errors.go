package services

import "errors"

// Typed failures surfaced by the marketplace core. Handlers map these to HTTP
// statuses; the core never collapses a classifiable condition into a generic
// error.
var (
	// ErrInvalidOffer means the offer amount is out of range for the listing
	// (non-positive, above asking price, or a currency mismatch).
	ErrInvalidOffer = errors.New("offer amount is invalid for this listing")

	// ErrListingUnavailable means the listing does not exist, was removed, or
	// is already sold, so no new offers can be placed on it.
	ErrListingUnavailable = errors.New("listing is not available")

	// ErrListingAlreadySold means the listing reached its terminal Sold state
	// before the attempted transition.
	ErrListingAlreadySold = errors.New("listing is already sold")

	// ErrOfferNotFound means no open offer matches the given identifiers.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrOfferAlreadyAccepted means the offer was already converted into a
	// sale and can no longer be withdrawn or re-accepted.
	ErrOfferAlreadyAccepted = errors.New("offer has already been accepted")

	// ErrForbidden means the caller does not own the resource it is mutating.
	ErrForbidden = errors.New("caller does not own this resource")

	// ErrConcurrentAcceptanceConflict means the acceptance transaction kept
	// conflicting with concurrent attempts and the bounded retries ran out.
	ErrConcurrentAcceptanceConflict = errors.New("acceptance conflicted with a concurrent attempt")

	// ErrThreadParticipantInvalid means the user is not a valid participant
	// for the thread operation (not a member, or opening a thread to self).
	ErrThreadParticipantInvalid = errors.New("invalid thread participant")

	// ErrEmptyMessage means a chat message with no text was rejected.
	ErrEmptyMessage = errors.New("message text must not be empty")

	// ErrThreadNotFound means no thread matches the given id.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrOrderNotFound means no order matches the given id.
	ErrOrderNotFound = errors.New("order not found")
)
