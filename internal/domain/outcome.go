package domain

import (
	"github.com/shopspring/decimal"
)

// Outcome is the terminal state of a single PlaceBid call.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeNotFound
	OutcomeTooLow
	OutcomeClosed
	OutcomeBusy
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTooLow:
		return "too_low"
	case OutcomeClosed:
		return "closed"
	case OutcomeBusy:
		return "busy"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Retryable reports whether the caller may usefully resubmit the same bid.
func (o Outcome) Retryable() bool {
	return o == OutcomeBusy || o == OutcomeError
}

// BidResult is what the arbiter hands back to the session layer.
// Bid is set only for OutcomeAccepted. MinimumBid is set for OutcomeTooLow
// when the current price is known.
type BidResult struct {
	Outcome      Outcome
	Reason       string
	Bid          *Bid
	CurrentPrice decimal.Decimal
	MinimumBid   decimal.Decimal
}

func (r BidResult) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}
