// Package gatewaysvc connects the fee ledger to the Midtrans Snap checkout.
package gatewaysvc

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
)

// ErrWholeAmount is returned for amounts Midtrans cannot charge.
var ErrWholeAmount = errors.New("online payments must be a whole amount of at least 1")

// snapClient is the part of snap.Client used here.
type snapClient interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type Midtrans struct {
	client    snapClient
	serverKey string
	appName   string
	logger    core.Logger
}

var _ fee.Gateway = (*Midtrans)(nil) // interface compliance check

// NewMidtrans returns nil when no server key is configured: online payments are then disabled.
func NewMidtrans(conf *core.Config, logger core.Logger) *Midtrans {
	if conf.Gateway.MidtransServerKey == "" {
		return nil
	}
	env := midtrans.Sandbox
	if conf.Gateway.Production {
		env = midtrans.Production
	}
	var c snap.Client
	c.New(conf.Gateway.MidtransServerKey, env)

	return &Midtrans{
		client:    &c,
		serverKey: conf.Gateway.MidtransServerKey,
		appName:   conf.AppName,
		logger:    logger,
	}
}

func (m *Midtrans) CreateCheckout(_ context.Context, order fee.GatewayOrder, student user.User) (fee.Checkout, error) {
	if !order.Amount.IsInteger() || order.Amount.LessThan(decimal.NewFromInt(1)) {
		return fee.Checkout{}, core.NewValidationError(ErrWholeAmount, core.FieldError{Field: "amount", Error: ErrWholeAmount.Error()})
	}
	gross := order.Amount.IntPart()

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.Reference,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: student.Name,
			Email: student.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:       order.StudentFeeID,
				Price:    gross,
				Qty:      1,
				Name:     truncate(m.appName+" fee payment", 50),
				Category: "fees",
			},
		},
	}

	resp, mErr := m.client.CreateTransaction(req)
	if mErr != nil {
		m.logger.Error("midtrans: creating transaction "+order.Reference, mErr, user.User{ID: student.ID, Username: student.Username})
		return fee.Checkout{}, errors.Wrap(mErr, "midtrans.CreateTransaction")
	}
	return fee.Checkout{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// VerifySignature checks a notification against SHA512(order_id + status_code + gross_amount + server_key).
func (m *Midtrans) VerifySignature(n Notification) bool {
	return VerifySignature(n, m.serverKey)
}

func VerifySignature(n Notification, serverKey string) bool {
	if n.SignatureKey == "" {
		return false
	}
	want := Sign(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	got := strings.ToLower(n.SignatureKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
