//go:build unix

package cmd

import "testing"

func TestAppPath(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   string
	}{
		{"my_news_website", "open", "/api/apps/my_news_website/open"},
		{"My News Website", "open", "/api/apps/my_news_website/open"},
		{"alpha", "", "/api/apps/alpha"},
		{"UPPER-case.app", "stop", "/api/apps/upper_case_app/stop"},
	}
	for _, tt := range tests {
		if got := appPath(tt.name, tt.action); got != tt.want {
			t.Errorf("appPath(%q, %q) = %q, want %q", tt.name, tt.action, got, tt.want)
		}
	}
}
