package utils

import (
	"net/url"
	"regexp"
	"strings"
)

const driveDirectViewURL = "https://drive.google.com/uc?export=view&id="

var driveFilePath = regexp.MustCompile(`^/file/d/([A-Za-z0-9_-]+)`)

// DirectImageURL rewrites Google Drive share links into their direct-view form
// so they can be used as image sources. Any other URL is returned unchanged.
func DirectImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Host != "drive.google.com" && u.Host != "docs.google.com" {
		return raw
	}

	if m := driveFilePath.FindStringSubmatch(u.Path); m != nil {
		return driveDirectViewURL + m[1]
	}

	// open?id=... and uc?id=... links
	if id := u.Query().Get("id"); id != "" {
		return driveDirectViewURL + id
	}

	return raw
}

// DirectImageURLs applies DirectImageURL to every entry, returning a new slice.
func DirectImageURLs(raw []string) []string {
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i] = DirectImageURL(r)
	}
	return out
}
