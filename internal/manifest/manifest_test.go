package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeManifest(t, `
command: ./run.sh
args: ["--env", "dev"]
env:
  NODE_ENV: development
workdir: web
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Command != "./run.sh" {
		t.Errorf("Command = %q, want ./run.sh", m.Command)
	}
	if len(m.Args) != 2 || m.Args[0] != "--env" {
		t.Errorf("Args = %v", m.Args)
	}
	if m.Env["NODE_ENV"] != "development" {
		t.Errorf("Env = %v", m.Env)
	}
	if m.Workdir != "web" {
		t.Errorf("Workdir = %q, want web", m.Workdir)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		dir     func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "missing manifest",
			dir:     func(t *testing.T) string { return t.TempDir() },
			wantErr: ErrNotFound,
		},
		{
			name:    "unparseable yaml",
			dir:     func(t *testing.T) string { return writeManifest(t, "command: [broken") },
			wantErr: ErrInvalid,
		},
		{
			name:    "missing command",
			dir:     func(t *testing.T) string { return writeManifest(t, "args: [foo]") },
			wantErr: ErrInvalid,
		},
		{
			name:    "absolute workdir",
			dir:     func(t *testing.T) string { return writeManifest(t, "command: run\nworkdir: /etc") },
			wantErr: ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.dir(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My News Website", "my_news_website"},
		{"NetSuite Integration Hub", "netsuite_integration_hub"},
		{"  spaced  out  ", "spaced_out"},
		{"already_slugged", "already_slugged"},
		{"UPPER-case.app", "upper_case_app"},
		{"app2", "app2"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
