package gatewaysvc

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core/fee"
)

// Notification is the payload Midtrans posts to the payment webhook.
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

type Outcome int

const (
	// OutcomeIgnore covers pending & refund notifications; the order stays as is.
	OutcomeIgnore Outcome = iota
	OutcomeConfirm
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirm:
		return "confirm"
	case OutcomeFail:
		return "fail"
	default:
		return "ignore"
	}
}

// Outcome maps the transaction & fraud statuses onto what the ledger should do.
func (n Notification) Outcome() Outcome {
	switch n.TransactionStatus {
	case "settlement":
		return OutcomeConfirm
	case "capture":
		switch n.FraudStatus {
		case "", "accept":
			return OutcomeConfirm
		case "deny":
			return OutcomeFail
		}
		return OutcomeIgnore // challenge
	case "deny", "cancel", "expire", "failure":
		return OutcomeFail
	}
	return OutcomeIgnore
}

func (n Notification) ExternalPayment() (fee.ExternalPayment, error) {
	amount, err := decimal.NewFromString(n.GrossAmount)
	if err != nil {
		return fee.ExternalPayment{}, errors.Wrap(err, "parsing gross_amount")
	}
	return fee.ExternalPayment{
		OrderReference: n.OrderID,
		TransactionID:  n.TransactionID,
		Amount:         amount,
	}, nil
}
