package market

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type staticBook struct {
	offer, bid       decimal.Decimal
	hasOffer, hasBid bool
}

func (b staticBook) LowestOffer() (decimal.Decimal, bool) { return b.offer, b.hasOffer }
func (b staticBook) HighestBid() (decimal.Decimal, bool)  { return b.bid, b.hasBid }

func ptr(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestValidate(t *testing.T) {
	book := staticBook{
		offer: decimal.NewFromInt(77), hasOffer: true,
		bid: decimal.NewFromInt(63), hasBid: true,
	}

	tests := []struct {
		name   string
		update QuoteUpdate
		errs   int
	}{
		{"inside ai spread", QuoteUpdate{Bid: ptr("65"), Offer: ptr("75")}, 0},
		{"bid only", QuoteUpdate{Bid: ptr("70")}, 0},
		{"offer only", QuoteUpdate{Offer: ptr("70")}, 0},
		{"bid at ai offer", QuoteUpdate{Bid: ptr("77")}, 1},
		{"offer at ai bid", QuoteUpdate{Offer: ptr("63")}, 1},
		{"crossed", QuoteUpdate{Bid: ptr("72"), Offer: ptr("70")}, 1},
		{"everything wrong", QuoteUpdate{Bid: ptr("80"), Offer: ptr("60")}, 3},
		{"negative", QuoteUpdate{Bid: ptr("-1")}, 1},
		{"empty", QuoteUpdate{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.update, book, Barge)
			if tt.errs == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Errors) != tt.errs {
				t.Errorf("expected %d errors, got %v", tt.errs, verr.Errors)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("expected errors.Is ErrValidation")
			}
		})
	}
}

func TestValidateCrossedMessage(t *testing.T) {
	err := Validate(QuoteUpdate{Bid: ptr("72"), Offer: ptr("70")}, staticBook{}, Barge)
	if err == nil || err.Error() != "The bid cannot be higher than the offer." {
		t.Errorf("unexpected error %v", err)
	}
}

func TestValidateEmptyBook(t *testing.T) {
	if err := Validate(QuoteUpdate{Bid: ptr("500"), Offer: ptr("501")}, staticBook{}, Barge); err != nil {
		t.Errorf("expected no error without ai quotes, got %v", err)
	}
}

func TestParseSide(t *testing.T) {
	if s, ok := ParseSide("SELL"); !ok || s != SideSell {
		t.Errorf("expected sell, got %v %v", s, ok)
	}
	if _, ok := ParseSide("hold"); ok {
		t.Error("expected hold to be rejected")
	}
}
