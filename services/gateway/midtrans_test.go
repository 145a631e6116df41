package gatewaysvc

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
	logsvc "github.com/trezcool/masomo-fees/services/logger"
)

const testServerKey = "SB-Mid-server-test"

type snapClientMock struct {
	req  *snap.Request
	resp *snap.Response
	err  *midtrans.Error
}

func (m *snapClientMock) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	m.req = req
	return m.resp, m.err
}

type loggerMock struct {
	core.Logger
	errArgs [][]interface{}
}

func (l *loggerMock) Error(_ string, args ...interface{}) {
	l.errArgs = append(l.errArgs, args)
}

func newTestMidtrans(client snapClient) *Midtrans {
	return &Midtrans{
		client:    client,
		serverKey: testServerKey,
		appName:   "Masomo",
		logger:    logsvc.NewDiscardLogger(),
	}
}

func TestNewMidtrans(t *testing.T) {
	conf := &core.Config{AppName: "Masomo"}
	assert.Nil(t, NewMidtrans(conf, logsvc.NewDiscardLogger()))

	conf.Gateway.MidtransServerKey = testServerKey
	m := NewMidtrans(conf, logsvc.NewDiscardLogger())
	require.NotNil(t, m)
	assert.Equal(t, testServerKey, m.serverKey)
}

func TestMidtrans_CreateCheckout(t *testing.T) {
	order := fee.GatewayOrder{
		Reference:    "ORD-1",
		StudentFeeID: "sf-1",
		Amount:       decimal.RequireFromString("2500"),
	}
	student := user.User{ID: "u-1", Username: "asha", Name: "Asha Rao", Email: "asha@example.com", PasswordHash: []byte("hash")}

	t.Run("success", func(t *testing.T) {
		client := &snapClientMock{resp: &snap.Response{Token: "tok", RedirectURL: "https://pay.example/tok"}}
		co, err := newTestMidtrans(client).CreateCheckout(context.Background(), order, student)
		require.NoError(t, err)
		assert.Equal(t, fee.Checkout{Token: "tok", RedirectURL: "https://pay.example/tok"}, co)

		require.NotNil(t, client.req)
		assert.Equal(t, "ORD-1", client.req.TransactionDetails.OrderID)
		assert.Equal(t, int64(2500), client.req.TransactionDetails.GrossAmt)
		assert.Equal(t, "Asha Rao", client.req.CustomerDetail.FName)
		assert.Equal(t, "asha@example.com", client.req.CustomerDetail.Email)
		require.Len(t, *client.req.Items, 1)
		assert.Equal(t, int64(2500), (*client.req.Items)[0].Price)
	})

	t.Run("gateway error", func(t *testing.T) {
		client := &snapClientMock{err: &midtrans.Error{Message: "unauthorized", StatusCode: http.StatusUnauthorized}}
		logger := &loggerMock{}
		m := newTestMidtrans(client)
		m.logger = logger

		_, err := m.CreateCheckout(context.Background(), order, student)
		assert.Error(t, err)

		// only the student's identity is reported
		require.Len(t, logger.errArgs, 1)
		require.Len(t, logger.errArgs[0], 2)
		assert.Equal(t, user.User{ID: "u-1", Username: "asha"}, logger.errArgs[0][1])
	})

	t.Run("fractional amount", func(t *testing.T) {
		client := &snapClientMock{}
		o := order
		o.Amount = decimal.RequireFromString("10.50")
		_, err := newTestMidtrans(client).CreateCheckout(context.Background(), o, student)

		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, ErrWholeAmount, vErr.Err)
		assert.Nil(t, client.req)
	})
}

func TestVerifySignature(t *testing.T) {
	n := Notification{OrderID: "ORD-1", StatusCode: "200", GrossAmount: "2500.00"}
	sig := Sign(n.OrderID, n.StatusCode, n.GrossAmount, testServerKey)

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{"valid", sig, true},
		{"upper case", strings.ToUpper(sig), true},
		{"empty", "", false},
		{"other key", Sign(n.OrderID, n.StatusCode, n.GrossAmount, "other"), false},
		{"tampered amount", Sign(n.OrderID, n.StatusCode, "1.00", testServerKey), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n.SignatureKey = tt.signature
			assert.Equal(t, tt.want, VerifySignature(n, testServerKey))
			assert.Equal(t, tt.want, newTestMidtrans(nil).VerifySignature(n))
		})
	}
}

func TestNotification_Outcome(t *testing.T) {
	tests := []struct {
		status, fraud string
		want          Outcome
	}{
		{"settlement", "", OutcomeConfirm},
		{"capture", "accept", OutcomeConfirm},
		{"capture", "", OutcomeConfirm},
		{"capture", "challenge", OutcomeIgnore},
		{"capture", "deny", OutcomeFail},
		{"pending", "", OutcomeIgnore},
		{"deny", "", OutcomeFail},
		{"cancel", "", OutcomeFail},
		{"expire", "", OutcomeFail},
		{"failure", "", OutcomeFail},
		{"refund", "", OutcomeIgnore},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.fraud, func(t *testing.T) {
			n := Notification{TransactionStatus: tt.status, FraudStatus: tt.fraud}
			assert.Equal(t, tt.want, n.Outcome())
		})
	}
}

func TestNotification_ExternalPayment(t *testing.T) {
	n := Notification{OrderID: "ORD-1", TransactionID: "tx-9", GrossAmount: "2500.00"}
	ep, err := n.ExternalPayment()
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", ep.OrderReference)
	assert.Equal(t, "tx-9", ep.TransactionID)
	assert.True(t, ep.Amount.Equal(decimal.NewFromInt(2500)))

	n.GrossAmount = "abc"
	_, err = n.ExternalPayment()
	assert.Error(t, err)
}
