package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"minimum length", strings.Repeat("a", MinPasswordLength), nil},
		{"one short", strings.Repeat("a", MinPasswordLength-1), ErrPasswordTooShort},
		{"bcrypt limit", strings.Repeat("a", 72), nil},
		{"over bcrypt limit", strings.Repeat("a", 73), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password, 4)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HashPassword() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if err := CheckPassword(tt.password, hash); err != nil {
					t.Errorf("CheckPassword() on own hash: %v", err)
				}
			}
		})
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword(testPassword, 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := CheckPassword("not-the-password", hash); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("mismatch: got %v, want ErrInvalidPassword", err)
	}
	if err := CheckPassword(testPassword, ""); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("empty hash: got %v, want ErrInvalidPassword", err)
	}
}

func TestGenerateSessionSecret(t *testing.T) {
	a, err := GenerateSessionSecret()
	if err != nil {
		t.Fatalf("GenerateSessionSecret() error = %v", err)
	}
	b, _ := GenerateSessionSecret()
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("two secrets should differ")
	}
}
