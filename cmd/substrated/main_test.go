package main

import (
	"os"
	"testing"

	"github.com/concord-network/substrate/internal/config"
)

func TestResolveDSNPrecedence(t *testing.T) {
	cases := []struct {
		name string
		flag string
		env  string
		cfg  *config.Config
		want string
	}{
		{
			name: "flag wins",
			flag: "postgres://flag",
			env:  "postgres://env",
			cfg:  &config.Config{DatabaseDSN: "postgres://cfg"},
			want: "postgres://flag",
		},
		{
			name: "env when flag missing",
			flag: "",
			env:  "postgres://env",
			cfg:  &config.Config{DatabaseDSN: "postgres://cfg"},
			want: "postgres://env",
		},
		{
			name: "config dsn when flag/env empty",
			flag: "",
			env:  "",
			cfg:  &config.Config{DatabaseDSN: "postgres://cfg"},
			want: "postgres://cfg",
		},
		{
			name: "empty when nothing provided",
			flag: "",
			env:  "",
			cfg:  &config.Config{},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.env != "" {
				if err := os.Setenv("DATABASE_URL", tc.env); err != nil {
					t.Fatalf("setenv: %v", err)
				}
				t.Cleanup(func() { os.Unsetenv("DATABASE_URL") })
			} else {
				os.Unsetenv("DATABASE_URL")
			}

			got := resolveDSN(tc.flag, tc.cfg)
			if got != tc.want {
				t.Fatalf("resolveDSN() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDetermineAddrDefaultsTo8080(t *testing.T) {
	if got := determineAddr("", nil); got != ":8080" {
		t.Fatalf("expected default :8080, got %q", got)
	}
	if got := determineAddr(" :9090 ", nil); got != ":9090" {
		t.Fatalf("expected trimmed flag value, got %q", got)
	}
	if got := determineAddr("", &config.Config{ListenAddr: ":7070"}); got != ":7070" {
		t.Fatalf("expected config listen addr, got %q", got)
	}
}
