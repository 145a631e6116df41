package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/apps/api/echo"
	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/scholarship"
	"github.com/trezcool/masomo-fees/core/user"
	"github.com/trezcool/masomo-fees/services/email"
	"github.com/trezcool/masomo-fees/services/export"
	"github.com/trezcool/masomo-fees/services/gateway"
	"github.com/trezcool/masomo-fees/services/metrics"
	"github.com/trezcool/masomo-fees/storage/database/dummy"
	"github.com/trezcool/masomo-fees/tests"
)

const serverKey = "SB-Mid-server-test"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type gatewayMock struct{}

func (gatewayMock) CreateCheckout(_ context.Context, order fee.GatewayOrder, _ user.User) (fee.Checkout, error) {
	return fee.Checkout{Token: "tok-" + order.Reference, RedirectURL: "https://pay.test/" + order.Reference}, nil
}

type testApp struct {
	*echoapi.Server
	conf    *core.Config
	usrRepo user.Repository
	feeRepo fee.Repository
	mailSvc *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *testApp {
	conf := testutil.NewConfig()
	conf.Gateway.MidtransServerKey = serverKey
	logger := testutil.NewLogger()
	validate, translator := testutil.NewValidator()
	core.ParseEmailTemplates(conf, logger)

	// set up DB & repos
	db := dummydb.Open()
	app := &testApp{
		conf:    conf,
		usrRepo: dummydb.NewUserRepository(db),
		feeRepo: dummydb.NewFeeRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	}

	// set up services
	usrSvc := user.NewService(app.usrRepo)
	recorder := metrics.New()
	feeSvc, err := fee.NewService(fee.Deps{
		Conf:     conf,
		Logger:   logger,
		TxRunner: db,
		Repo:     app.feeRepo,
		Students: usrSvc,
		Validate: validate,
		MailSvc:  app.mailSvc,
		Gateway:  gatewayMock{},
		Receipts: exportsvc.NewPDFReceipts(),
		Recorder: recorder,
	})
	require.NoError(t, err)

	// set up server
	app.Server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		FeeSvc:         feeSvc,
		ScholarshipSvc: scholarship.NewService(db, dummydb.NewScholarshipRepository(db), validate),
		Validate:       validate,
		Translator:     translator,
		Gateway:        gatewaysvc.NewMidtrans(conf, logger),
		Metrics:        recorder,
	})
	return app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves the request and returns the recorded response.
func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
