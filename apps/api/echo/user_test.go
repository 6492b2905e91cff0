package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enlighten-ed/backend/core/user"
)

func Test_userApi_login(t *testing.T) {
	deps := setup(t, nil)
	deps.createUser(t, "Grace Hopper", "ghopper", "ghopper@enlightened.cd", "AwesomePass", []string{user.RoleLecturer}, true)
	deps.createUser(t, "Inactive Ivan", "inactivan", "ivan@enlightened.cd", "AwesomePass", nil, false)

	tests := []httpTest{
		{
			name:     "empty credentials",
			body:     marchallObj(t, LoginRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username":"this field is required","password":"this field is required"}`),
		},
		{
			name:     "unknown user",
			body:     marchallObj(t, LoginRequest{Username: "nobody", Password: "AwesomePass"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			body:     marchallObj(t, LoginRequest{Username: "ghopper", Password: "WrongPass"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			body:     marchallObj(t, LoginRequest{Username: "inactivan", Password: "AwesomePass"}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			deps.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("successful login by username", func(t *testing.T) {
		body := marchallObj(t, LoginRequest{Username: "ghopper", Password: "AwesomePass"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		deps.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp LoginResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("successful login by email", func(t *testing.T) {
		body := marchallObj(t, LoginRequest{Username: "ghopper@enlightened.cd", Password: "AwesomePass"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		deps.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_query(t *testing.T) {
	deps := setup(t, nil)
	admin := deps.createUser(t, "Admin", "adminuser", "admin@enlightened.cd", "AwesomePass", []string{user.RoleAdmin}, true)
	student := deps.createUser(t, "Student", "studentuser", "student@enlightened.cd", "AwesomePass", []string{user.RoleStudent}, true)

	adminToken := deps.getToken(t, admin)
	studentToken := deps.getToken(t, student)

	tests := []httpTest{
		{
			name:     "auth required",
			path:     "/v1/users",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "admin required",
			path:     "/v1/users",
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			deps.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("admin lists all users", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", adminToken)
		deps.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var users []user.User
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		assert.Len(t, users, 2)
	})

	t.Run("filter by role", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users?role="+user.RoleStudent, adminToken)
		deps.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var users []user.User
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		assert.Len(t, users, 1)
		assert.Equal(t, student.ID, users[0].ID)
	})
}

func Test_userApi_detail(t *testing.T) {
	deps := setup(t, nil)
	admin := deps.createUser(t, "Admin", "adminuser", "admin@enlightened.cd", "AwesomePass", []string{user.RoleAdmin}, true)
	alice := deps.createUser(t, "Alice", "aliceuser", "alice@enlightened.cd", "AwesomePass", []string{user.RoleStudent}, true)
	bob := deps.createUser(t, "Bob", "bobuser", "bob@enlightened.cd", "AwesomePass", []string{user.RoleStudent}, true)

	adminToken := deps.getToken(t, admin)
	aliceToken := deps.getToken(t, alice)

	t.Run("owner retrieves self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+alice.ID, aliceToken)
		deps.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var usr user.User
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usr))
		assert.Equal(t, alice.ID, usr.ID)
	})

	t.Run("non-owner is told not found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+bob.ID, aliceToken)
		deps.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("admin retrieves anyone", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+bob.ID, adminToken)
		deps.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-admin cannot change roles", func(t *testing.T) {
		body := marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdmin}})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+alice.ID, aliceToken, body)
		deps.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin cannot delete self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+admin.ID, adminToken)
		deps.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin deletes user", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+bob.ID, adminToken)
		deps.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/users/"+bob.ID, adminToken)
		deps.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
