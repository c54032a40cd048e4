package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTServiceGenerateValidate(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	token, err := service.Generate("user-1", "User")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	p, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.ID != "user-1" || p.Name != "User" {
		t.Fatalf("expected user-1/User, got %+v", p)
	}
}

func TestJWTServiceRejects(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	other := NewJWTService("other", time.Hour)
	token, _ := other.Generate("user-1", "")
	if _, err := service.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong-secret token to fail, got %v", err)
	}

	noExpiry := NewJWTService("secret", -time.Hour)
	token, _ = noExpiry.Generate("user-1", "")
	if _, err := service.Validate(token); err != nil {
		t.Fatalf("expected token without exp to validate, got %v", err)
	}

	if _, err := service.Generate("  ", ""); err == nil {
		t.Fatal("expected empty subject to fail")
	}
}
