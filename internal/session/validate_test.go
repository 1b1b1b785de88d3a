package session

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"main", false},
		{"work123", false},
		{"my-session", false},
		{"my_session", false},
		{"a", false},
		{strings.Repeat("a", 64), false},
		{"", true},
		{"Main", true},
		{"my session", true},
		{"my.session", true},
		{strings.Repeat("a", 65), true},
		{"../escape", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("error %v should wrap ErrInvalidName", err)
			}
		})
	}
}

func TestValidateShip(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"~zod", false},
		{"~sampel-palnet", false},
		{"~dozzod-dozzod", false},
		{"~sampel-palnet-sampel-palnet", false},
		{"zod", true},
		{"~", true},
		{"~Zod", true},
		{"~zo", true},
		{"~zod-", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateShip(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateShip(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
