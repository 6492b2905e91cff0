package echoapi

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
	"github.com/stretchr/testify/assert"

	"github.com/enlighten-ed/backend/core"
	"github.com/enlighten-ed/backend/core/attendance"
	"github.com/enlighten-ed/backend/core/chat"
	"github.com/enlighten-ed/backend/core/user"
	emailsvc "github.com/enlighten-ed/backend/services/email"
	dummydb "github.com/enlighten-ed/backend/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

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

type testDeps struct {
	conf    *core.Config
	auth    *auth
	server  Server
	usrSvc  user.Service
	usrRepo user.Repository
	chatSvc chat.Service
	attSvc  attendance.Service
}

func newTestConfig() *core.Config {
	conf := &core.Config{
		TestMode:  true,
		AppName:   "EnlightenEd",
		SecretKey: "secret",
	}
	conf.Server.JWTExpirationDelta = 10 * time.Minute
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	conf.Server.PasswordResetTimeoutDelta = 3 * 24 * time.Hour
	return conf
}

func setup(t *testing.T, aiSvc *fakeAISvc) *testDeps {
	t.Helper()

	conf := newTestConfig()
	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf), conf)
	chatSvc := chat.NewService(dummydb.NewChatRepository(db))
	attSvc := attendance.NewService(dummydb.NewAttendanceRepository(db))

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	if aiSvc == nil {
		aiSvc = &fakeAISvc{}
	}

	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         nopLogger{},
		UserSvc:        usrSvc,
		ChatSvc:        chatSvc,
		AttendanceSvc:  attSvc,
		AISvc:          aiSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	return &testDeps{
		conf:    conf,
		auth:    newAuth(conf),
		server:  server,
		usrSvc:  usrSvc,
		usrRepo: usrRepo,
		chatSvc: chatSvc,
		attSvc:  attSvc,
	}
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

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

func (d *testDeps) createUser(t *testing.T, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()
	usr, err := d.usrSvc.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	if !isActive {
		active := false
		usr, err = d.usrRepo.UpdateUser(context.Background(), user.User{ID: usr.ID, UpdatedAt: time.Now().UTC()}, &active)
		if err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	return usr
}

func (d *testDeps) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := d.auth.generateToken(d.auth.getUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
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
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

type fakeAISvc struct {
	reply string
	err   error
}

func (s *fakeAISvc) Chat(_ context.Context, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}
