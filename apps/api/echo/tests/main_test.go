package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/schoolfees/apps/api/echo"
	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/duedate"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/core/student"
	"github.com/trezcool/schoolfees/services/lock"
	"github.com/trezcool/schoolfees/services/messaging"
	"github.com/trezcool/schoolfees/storage/database/inmem"
	"github.com/trezcool/schoolfees/tests"
)

const secretKey = "test-secret"

var (
	now = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type env struct {
	app       *echoapi.Server
	ledgers   fee.Repository
	students  student.Repository
	notifRepo notification.Repository
	sender    *messaging.SenderMock
	locker    *locksvc.LocalLocker

	adminToken   string
	cashierToken string
}

func setup(t *testing.T) env {
	testutil.FreezeTime(t, now)

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	db := inmemdb.Open()
	e := env{
		ledgers:   inmemdb.NewLedgerRepository(db),
		students:  inmemdb.NewStudentRepository(db),
		notifRepo: inmemdb.NewNotificationRepository(db),
		sender:    new(messaging.SenderMock),
		locker:    locksvc.NewLocalLocker(),
	}

	validate := validator.New()
	uni := ut.New(en.New())
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)

	reg := prometheus.NewRegistry()
	notifSvc := notification.NewService(
		conf,
		e.notifRepo,
		e.students,
		map[notification.Channel]notification.Sender{notification.ChannelEmail: e.sender},
		notification.NewMetrics(reg),
		logger,
	)
	policy, err := duedate.NewPolicy(conf)
	if err != nil {
		t.Fatalf("duedate.NewPolicy(): %v", err)
	}

	e.app = echoapi.NewServer(&echoapi.Options{
		AppName:        conf.AppName,
		SecretKey:      secretKey,
		DisableReqLogs: true,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Gatherer:       reg,
		FeeSvc:         fee.NewServiceMock(e.ledgers, e.students, notifSvc, logger),
		NotifSvc:       notifSvc,
		Scanner:        duedate.NewScanner(conf, e.ledgers, notifSvc, policy, e.locker, duedate.NewMetrics(reg), logger),
	})
	e.adminToken = getToken(t, "admin-1", echoapi.RoleAdmin)
	e.cashierToken = getToken(t, "cashier-1", echoapi.RoleCashier)
	return e
}

func (e env) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	e.app.ServeHTTP(rec, req)
}

func (e env) ledger(t *testing.T, id string) fee.Ledger {
	ldg, err := e.ledgers.GetLedger(context.Background(), id)
	if err != nil {
		t.Fatalf("GetLedger(): %v", err)
	}
	return ldg
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

func getToken(t *testing.T, subject string, roles ...string) string {
	token, err := echoapi.GenerateToken(secretKey, echoapi.NewClaims("schoolfees-test", subject, time.Hour, roles...))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarshallObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarshallObj(): %v; body %s", err, rec.Body.String())
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
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
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

func runHTTPTests(t *testing.T, e env, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			e.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
