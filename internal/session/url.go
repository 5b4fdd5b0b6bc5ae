package session

import (
	"net/url"
	"strings"

	mcp "github.com/nakad-pixel/Mcpclient"
)

// loopbackHosts may be reached over plain http. Every other host requires https.
var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
}

// ValidateServerURL checks that raw is an absolute http(s) URL that may be contacted.
// Plain http is only accepted for localhost and 127.0.0.1. Failures are
// INVALID_REQUEST errors and are detected without any network access.
func ValidateServerURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "serverUrl is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindInvalidRequest, err, "serverUrl is not a valid URL")
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !loopbackHosts[strings.ToLower(u.Hostname())] {
			return nil, mcp.Errorf(mcp.KindInvalidRequest,
				"serverUrl must use https (http is only allowed for localhost), got %q", raw)
		}
	default:
		return nil, mcp.Errorf(mcp.KindInvalidRequest, "serverUrl must be an http or https URL, got %q", raw)
	}

	if u.Hostname() == "" {
		return nil, mcp.Errorf(mcp.KindInvalidRequest, "serverUrl has no host: %q", raw)
	}
	if u.User != nil {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "serverUrl must not embed credentials, use headers instead")
	}

	return u, nil
}
