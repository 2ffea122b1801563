package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
)

// DefaultMinBodyBytes is the plausibility floor for response bodies. Real
// record pages are rarely smaller than this; tiny bodies usually carry an
// interstitial or an error stub served with a 200.
const DefaultMinBodyBytes = 512

// blockMarkers are lowercase substrings that indicate a nominally successful
// response was actually rejected or throttled by the source.
var blockMarkers = []string{
	"captcha",
	"access denied",
	"unusual traffic",
	"rate limit",
	"too many requests",
	"temporarily blocked",
	"verify you are a human",
	"request blocked",
}

// Classify inspects a response outcome and reports whether it is a soft
// block: a throttling status code, an implausibly short body, or a known
// blocking marker in the content. The returned reason is empty when the
// response looks genuine.
//
// minBodyBytes <= 0 uses DefaultMinBodyBytes.
func Classify(statusCode int, body []byte, minBodyBytes int) (blocked bool, reason string) {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusForbidden:
		return true, fmt.Sprintf("throttling status %d", statusCode)
	}

	if minBodyBytes <= 0 {
		minBodyBytes = DefaultMinBodyBytes
	}
	if len(body) < minBodyBytes {
		return true, fmt.Sprintf("implausibly short body (%d bytes)", len(body))
	}

	lower := strings.ToLower(string(body))
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true, fmt.Sprintf("blocking marker %q", marker)
		}
	}

	return false, ""
}
