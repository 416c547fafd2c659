package configuration

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv_SkipsMissingFiles(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "RELAY_TEST_ENV_LOAD=ok\n")

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("RELAY_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("RELAY_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded, got %q", got)
	}
}

func TestRateLimitOptions_Validate(t *testing.T) {
	cases := []struct {
		name    string
		opts    RateLimitOptions
		wantErr bool
	}{
		{"memory storage", RateLimitOptions{Storage: "memory", EventsPerMinute: 100}, false},
		{"redis with url", RateLimitOptions{Storage: "redis", RedisURL: "redis://localhost:6379", EventsPerMinute: 100}, false},
		{"redis without url", RateLimitOptions{Storage: "redis", EventsPerMinute: 100}, true},
		{"unknown storage", RateLimitOptions{Storage: "etcd", EventsPerMinute: 100}, true},
		{"negative limit", RateLimitOptions{Storage: "memory", EventsPerMinute: -1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestForwarderOptions_Validate(t *testing.T) {
	valid := ForwarderOptions{BatchSize: 10, MaxRetries: 5, MaxQueueSize: 10000, BreakerThreshold: 5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := valid
	bad.BatchSize = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
