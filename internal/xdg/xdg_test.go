package xdg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirsHonourEnvironment(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(base, "data"))

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"config", ConfigDir, filepath.Join(base, "cfg", AppName)},
		{"state", StateDir, filepath.Join(base, "state", AppName)},
		{"data", DataDir, filepath.Join(base, "data", AppName)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("dir = %q, want %q", got, tt.want)
			}
			info, err := os.Stat(got)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if !info.IsDir() {
				t.Errorf("%s is not a directory", got)
			}
		})
	}
}
