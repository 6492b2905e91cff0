package echoapi

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core/user"
)

func Test_aiApi_chat(t *testing.T) {
	t.Run("replies", func(t *testing.T) {
		deps := setup(t, &fakeAISvc{reply: "Focus on recursion basics."})
		lecturer := deps.createUser(t, "Lecturer", "lectureruser", "lecturer@enlightened.cd", "AwesomePass", []string{user.RoleLecturer}, true)
		token := deps.getToken(t, lecturer)

		tt := httpTest{
			body:     marchallObj(t, AIChatRequest{Message: "How do I teach recursion?"}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, AIChatResponse{Response: "Focus on recursion basics."}),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/ai/chat", token, tt.body)
		deps.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("auth required", func(t *testing.T) {
		deps := setup(t, nil)
		tt := httpTest{
			body:     marchallObj(t, AIChatRequest{Message: "hello"}),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		}
		req, rec := newRequest(http.MethodPost, "/v1/ai/chat", tt.body)
		deps.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("message required", func(t *testing.T) {
		deps := setup(t, nil)
		usr := deps.createUser(t, "Lecturer", "lectureruser", "lecturer@enlightened.cd", "AwesomePass", []string{user.RoleLecturer}, true)
		token := deps.getToken(t, usr)

		tt := httpTest{
			body:     marchallObj(t, AIChatRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"Message is required"}`),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/ai/chat", token, tt.body)
		deps.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("provider failure", func(t *testing.T) {
		deps := setup(t, &fakeAISvc{err: errors.New("upstream down")})
		usr := deps.createUser(t, "Lecturer", "lectureruser", "lecturer@enlightened.cd", "AwesomePass", []string{user.RoleLecturer}, true)
		token := deps.getToken(t, usr)

		tt := httpTest{
			body:     marchallObj(t, AIChatRequest{Message: "hello"}),
			wantCode: http.StatusInternalServerError,
			wantData: []byte(`{"error":"AI service failed"}`),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/ai/chat", token, tt.body)
		deps.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}
