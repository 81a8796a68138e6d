package crawler

import (
	"errors"
	"net/url"
	"strings"
)

// Normalize resolves raw against base and returns its canonical form: scheme
// and host lowercased, trailing slashes removed from the path. An empty base
// requires raw to be absolute. Query and fragment are preserved; fragments
// are rejected later by the Filter. Normalize is idempotent.
func Normalize(raw, base string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &MalformedURLError{Raw: raw, Cause: errors.New("empty url")}
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return "", &MalformedURLError{Raw: raw, Cause: err}
	}
	resolved := ref
	if base != "" {
		baseURL, err := url.Parse(strings.TrimSpace(base))
		if err != nil {
			return "", &MalformedURLError{Raw: raw, Cause: err}
		}
		resolved = baseURL.ResolveReference(ref)
	}
	if !resolved.IsAbs() || resolved.Host == "" || resolved.Opaque != "" {
		return "", &MalformedURLError{Raw: raw, Cause: errors.New("not an absolute hierarchical url")}
	}

	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	resolved.Path = strings.TrimRight(resolved.Path, "/")
	resolved.RawPath = strings.TrimRight(resolved.RawPath, "/")
	return resolved.String(), nil
}

// origin is the scheme, host, and port triple of a URL. The port is always
// explicit so that https://ex.com and https://ex.com:443 compare equal.
type origin struct {
	scheme string
	host   string
	port   string
}

func originOf(u *url.URL) origin {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return origin{
		scheme: scheme,
		host:   strings.ToLower(u.Hostname()),
		port:   port,
	}
}
