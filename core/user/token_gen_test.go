package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/enlighten-ed/backend/core"
)

func TestMakeVerifyToken(t *testing.T) {
	conf := &core.Config{SecretKey: "poq5-wer)enb$+v%m-)^m@xt@fl0t(bohrl0mh-*siu9ew45k-"}
	conf.Server.PasswordResetTimeoutDelta = 3 * 24 * time.Hour

	usr := User{
		ID:        "0b1b9b12-9e22-4fee-8c8d-30b6df2a135c",
		Username:  "awesomeuser",
		Email:     "awesomeuser@test.cd",
		LastLogin: time.Now().Add(-24 * time.Hour),
	}
	_ = usr.SetPassword("AwesomePass")

	validToken, err := MakeToken(usr, conf)
	if err != nil {
		t.Fatalf("MakeToken() failed, %v", err)
	}
	expiredToken, err := makeTokenWithTimestamp(usr, numDaysSince2001(time.Now().Add(-4*24*time.Hour)), conf)
	if err != nil {
		t.Fatalf("makeTokenWithTimestamp() failed, %v", err)
	}

	tests := []struct {
		name    string
		token   string
		now     time.Time
		wantErr error
	}{
		{name: "no token", token: "", wantErr: errInvalidToken},
		{name: "invalid parts len", token: "lol", wantErr: errInvalidToken},
		{name: "invalid base32 timestamp", token: "0@-whatever", wantErr: errInvalidToken},
		{name: "invalid timestamp", token: "NRXWY-whatever", wantErr: errInvalidToken}, // b32("lol")
		{name: "tampered token", token: validToken + "x", wantErr: errInvalidToken},
		{name: "expired token", token: expiredToken, wantErr: errTokenExpired},
		{name: "valid token", token: validToken},
		{name: "valid token at expiry boundary", token: validToken, now: time.Now().Add(3 * 24 * time.Hour)},
		{name: "valid token past expiry", token: validToken, now: time.Now().Add(5 * 24 * time.Hour), wantErr: errTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			NowFunc = time.Now
			if !tt.now.IsZero() {
				NowFunc = func() time.Time { return tt.now }
				defer func() { NowFunc = time.Now }()
			}

			err := verifyToken(usr, tt.token, conf)
			if tt.wantErr != nil {
				assert.EqualError(t, err, tt.wantErr.Error())
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("token invalidated by login", func(t *testing.T) {
		NowFunc = time.Now
		loggedIn := usr
		loggedIn.LastLogin = time.Now()
		assert.EqualError(t, verifyToken(loggedIn, validToken, conf), errInvalidToken.Error())
	})

	t.Run("token invalidated by password change", func(t *testing.T) {
		changed := usr
		_ = changed.SetPassword("NewAwesomePass")
		assert.EqualError(t, verifyToken(changed, validToken, conf), errInvalidToken.Error())
	})
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "0b1b9b12-9e22-4fee-8c8d-30b6df2a135c"}
	uid := EncodeUID(usr)
	assert.NotEqual(t, usr.ID, uid)

	id, err := decodeUID(uid)
	assert.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("@@@not-base64@@@")
	assert.Error(t, err)
}
