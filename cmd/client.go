//go:build unix

package cmd

import (
	"net/url"

	"github.com/appyard/appyard/internal/apiclient"
	"github.com/appyard/appyard/internal/manifest"
)

func newClient() (*apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return apiclient.NewWithSocket(cfg.SocketPath), nil
}

// appPath builds the API path for an app. The argument may be the human
// project name; it is slugified the same way app directories are named,
// so `appyard open "My News Website"` reaches my_news_website. Slugs pass
// through unchanged.
func appPath(name, action string) string {
	p := "/api/apps/" + url.PathEscape(manifest.Slugify(name))
	if action != "" {
		p += "/" + action
	}
	return p
}
