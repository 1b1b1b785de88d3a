package session

import (
	"testing"

	"github.com/matheus3301/chatsync/internal/config"
)

func TestResolve(t *testing.T) {
	cfg := &config.Config{DefaultSession: "work"}
	tests := []struct {
		name string
		flag string
		cfg  *config.Config
		want string
	}{
		{"flag wins", "other", cfg, "other"},
		{"config default", "", cfg, "work"},
		{"no config", "", nil, DefaultSessionName},
		{"empty default", "", &config.Config{}, DefaultSessionName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.flag, tt.cfg); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}
