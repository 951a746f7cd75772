package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{
			name:  "simple",
			id:    "user42",
			valid: true,
		},
		{
			name:  "uuid",
			id:    "0b6f7c1e-3f4a-4c2d-9a51-2a8f1d7c9e10",
			valid: true,
		},
		{
			name:  "email-like",
			id:    "kid@school.example",
			valid: true,
		},
		{
			name:  "empty",
			id:    "",
			valid: false,
		},
		{
			name:  "leading dash",
			id:    "-user",
			valid: false,
		},
		{
			name:  "contains slash",
			id:    "a/b",
			valid: false,
		},
		{
			name:  "contains space",
			id:    "a b",
			valid: false,
		},
		{
			name:  "too long",
			id:    strings.Repeat("a", 129),
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidIdentifier(tt.id)
			if got != tt.valid {
				t.Fatalf("IsValidIdentifier(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

type testRequest struct {
	AccountID  string `validate:"identifier"`
	Currency   string `validate:"currency"`
	StreakType string `validate:"omitempty,streaktype"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name      string
		req       testRequest
		wantField string
	}{
		{
			name: "valid",
			req:  testRequest{AccountID: "u1", Currency: "gems", StreakType: "weekly"},
		},
		{
			name: "streak type optional",
			req:  testRequest{AccountID: "u1", Currency: "coins"},
		},
		{
			name:      "bad account",
			req:       testRequest{AccountID: "", Currency: "coins"},
			wantField: "AccountID(identifier)",
		},
		{
			name:      "xp is not spendable",
			req:       testRequest{AccountID: "u1", Currency: "xp"},
			wantField: "Currency(currency)",
		},
		{
			name:      "unknown streak type",
			req:       testRequest{AccountID: "u1", Currency: "coins", StreakType: "hourly"},
			wantField: "StreakType(streaktype)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Struct() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("Struct() error = %v, want ErrInvalidRequest", err)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Fatalf("Struct() error = %q, want mention of %q", err.Error(), tt.wantField)
			}
		})
	}
}
