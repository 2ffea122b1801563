package ratelimit

import "net/http"

// Identity is one outbound request profile: the identifying headers a
// request carries. Rotating between identities reduces the chance that the
// data source correlates and throttles the harvester's traffic.
type Identity struct {
	// Name labels the profile for logging.
	Name string `yaml:"name" json:"name"`

	// UserAgent is the User-Agent header value.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// AcceptLanguage is the Accept-Language header value.
	AcceptLanguage string `yaml:"accept_language" json:"accept_language"`

	// Headers holds any additional headers the profile sets.
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`
}

// Apply sets the identity's headers on the given header map.
func (id Identity) Apply(h http.Header) {
	if id.UserAgent != "" {
		h.Set("User-Agent", id.UserAgent)
	}
	if id.AcceptLanguage != "" {
		h.Set("Accept-Language", id.AcceptLanguage)
	}
	for k, v := range id.Headers {
		h.Set(k, v)
	}
}

// DefaultIdentities returns the built-in rotation pool used when no custom
// profiles are configured. The profiles mimic common desktop browsers.
func DefaultIdentities() []Identity {
	return []Identity{
		{
			Name:           "firefox-linux",
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
			AcceptLanguage: "en-US,en;q=0.5",
		},
		{
			Name:           "chrome-windows",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			AcceptLanguage: "en-US,en;q=0.9",
		},
		{
			Name:           "safari-macos",
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
			AcceptLanguage: "en-GB,en;q=0.8",
		},
		{
			Name:           "firefox-windows",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
			AcceptLanguage: "en-US,en;q=0.7",
		},
	}
}
