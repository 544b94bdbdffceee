package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

const testSecret = "super-secret"

func sign(t *testing.T, secret string, claims jwt.StandardClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifier_UserID(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier(testSecret, "auth", "authenticated", 30*time.Second)
	v.now = func() time.Time { return now }

	valid := jwt.StandardClaims{
		Subject:   "user-42",
		Issuer:    "auth",
		Audience:  "authenticated",
		ExpiresAt: now.Add(time.Minute).Unix(),
	}

	cases := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{"valid", sign(t, testSecret, valid), "user-42", nil},
		{"wrong secret", sign(t, "other", valid), "", ErrInvalidToken},
		{"garbage", "abc.def.ghi", "", ErrInvalidToken},
		{"wrong issuer", sign(t, testSecret, func() jwt.StandardClaims { c := valid; c.Issuer = "x"; return c }()), "", ErrInvalidIssuer},
		{"wrong audience", sign(t, testSecret, func() jwt.StandardClaims { c := valid; c.Audience = "x"; return c }()), "", ErrInvalidAudience},
		{"expired", sign(t, testSecret, func() jwt.StandardClaims { c := valid; c.ExpiresAt = now.Add(-time.Minute).Unix(); return c }()), "", ErrTokenExpired},
		{"expired within skew", sign(t, testSecret, func() jwt.StandardClaims { c := valid; c.ExpiresAt = now.Add(-10 * time.Second).Unix(); return c }()), "user-42", nil},
		{"no subject", sign(t, testSecret, func() jwt.StandardClaims { c := valid; c.Subject = ""; return c }()), "", ErrInvalidSubject},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := v.UserID(tc.token)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if id != tc.wantID {
				t.Fatalf("id = %q, want %q", id, tc.wantID)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
	}
	for in, want := range cases {
		if got := BearerToken(in); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
