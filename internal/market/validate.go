package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrStaleQuote is returned when a trade names a price the AI no longer
	// quotes.
	ErrStaleQuote = errors.New("quote has moved")
)

// ValidationError lists every rule a quote update broke.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, " ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Book is the view of AI quotes that validation checks against.
type Book interface {
	LowestOffer() (decimal.Decimal, bool)
	HighestBid() (decimal.Decimal, bool)
}

// Validate checks a player's quote update against the AI quotes. A player may
// not bid at or above the lowest AI offer, nor offer at or below the highest
// AI bid. When both sides are supplied the bid may not exceed the offer.
func Validate(u QuoteUpdate, book Book, c Commodity) error {
	var errs []string

	if u.Bid != nil {
		if u.Bid.IsNegative() {
			errs = append(errs, "The bid cannot be negative.")
		}
		if lowest, ok := book.LowestOffer(); ok && u.Bid.GreaterThanOrEqual(lowest) {
			errs = append(errs, fmt.Sprintf("The bid must be below the lowest AI offer of %s.", c.FormatPrice(lowest)))
		}
	}
	if u.Offer != nil {
		if u.Offer.IsNegative() {
			errs = append(errs, "The offer cannot be negative.")
		}
		if highest, ok := book.HighestBid(); ok && u.Offer.LessThanOrEqual(highest) {
			errs = append(errs, fmt.Sprintf("The offer must be above the highest AI bid of %s.", c.FormatPrice(highest)))
		}
	}
	if u.Bid != nil && u.Offer != nil && u.Bid.GreaterThan(*u.Offer) {
		errs = append(errs, "The bid cannot be higher than the offer.")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
