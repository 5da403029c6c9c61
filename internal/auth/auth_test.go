package auth

import (
	"errors"
	"testing"
	"time"
)

func newService(t *testing.T) *Service {
	t.Helper()

	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	return NewService("jwt-secret", time.Hour, "admin", hash)
}

func TestLoginIssuesValidToken(t *testing.T) {
	s := newService(t)

	token, err := s.Login("admin", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.Username != "admin" || claims.Subject != "admin" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newService(t)

	if _, err := s.Login("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v", err)
	}

	if _, err := s.Login("root", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong user = %v", err)
	}
}

func TestValidateTokenRejectsForeignAndExpired(t *testing.T) {
	s := newService(t)

	foreign := NewService("other-secret", time.Hour, "admin", "")
	token, _ := foreign.GenerateToken("admin")

	if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token = %v", err)
	}

	expired := NewService("jwt-secret", -time.Minute, "admin", "")
	token, _ = expired.GenerateToken("admin")

	if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token = %v", err)
	}
}
