package handler

import "github.com/gofiber/fiber/v3"

// ErrInvalidQueryParameters indicates the query string could not be bound.
var ErrInvalidQueryParameters = fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")

var ErrSameTokenBadRequest = fiber.NewError(fiber.StatusBadRequest, "pair tokens are the same")

var ErrPairMismatchBadRequest = fiber.NewError(fiber.StatusBadRequest, "src is not a token of the pair")

// ErrEmptyReservesBadRequest maps an empty pool to a 400 error.
var ErrEmptyReservesBadRequest = fiber.NewError(fiber.StatusBadRequest, "pool has empty reserves")

var ErrInvalidFee = fiber.NewError(fiber.StatusBadRequest, "fee_num and fee_den must satisfy 0 < fee_num <= fee_den")

// ErrQuoteFailedInternal signals a generic server-side quoting error.
var ErrQuoteFailedInternal = fiber.NewError(fiber.StatusInternalServerError, "quote failed")

// ErrUpstreamUnavailable is returned when the chain cannot be read.
var ErrUpstreamUnavailable = fiber.NewError(fiber.StatusBadGateway, "chain read failed")

// NewInvalidAmount returns a 400 Bad Request for an unparsable amount field.
func NewInvalidAmount(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, field+" must be a positive base-10 integer")
}

// NewAddressRequired returns a 400 Bad Request for a missing address field.
func NewAddressRequired(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, field+" address is required")
}

// NewInvalidAddress returns a 400 Bad Request for an invalid address format.
func NewInvalidAddress(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" address")
}
