package jobstate

import (
	"fmt"

	"github.com/openwrench/servicelink/internal/models"
)

// QuoteAction is a customer response to a pending quote.
type QuoteAction string

const (
	QuoteAcceptWithParts QuoteAction = "accept_with_parts"
	QuoteAcceptOwnParts  QuoteAction = "accept_own_parts"
	QuoteReject          QuoteAction = "reject"
)

// QuoteOutcome maps a customer quote response to the resulting status and
// parts source. When the quote carries no billable part lines there is
// nothing to procure, so either accept action moves straight to in_progress.
func QuoteOutcome(action QuoteAction, hasPartItems bool) (Status, models.PartsSource, error) {
	switch action {
	case QuoteAcceptWithParts:
		if !hasPartItems {
			return StatusInProgress, models.PartsFromTechnician, nil
		}
		return StatusPartsRequired, models.PartsFromTechnician, nil
	case QuoteAcceptOwnParts:
		if !hasPartItems {
			return StatusInProgress, models.PartsFromCustomer, nil
		}
		return StatusPartsRequired, models.PartsFromCustomer, nil
	case QuoteReject:
		return StatusQuoteRejected, "", nil
	default:
		return "", "", fmt.Errorf("%w: quote action %q", ErrUnknownAction, action)
	}
}

// BillAction is a customer response to a pending bill.
type BillAction string

const (
	BillPayCash   BillAction = "pay_cash"
	BillPayOnline BillAction = "pay_online"
	BillReject    BillAction = "reject"
)

// BillOutcome maps a customer bill response to the resulting status. Online
// payment is captured server-side before the status echo, so pay_online
// lands directly on completed.
func BillOutcome(action BillAction) (Status, error) {
	switch action {
	case BillPayCash:
		return StatusPaymentPendingCash, nil
	case BillPayOnline:
		return StatusCompleted, nil
	case BillReject:
		return StatusBillRejected, nil
	default:
		return "", fmt.Errorf("%w: bill action %q", ErrUnknownAction, action)
	}
}
