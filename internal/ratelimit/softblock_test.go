package ratelimit

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
)

// plausibleBody returns a body comfortably above the plausibility floor.
func plausibleBody(content string) []byte {
	return []byte(content + strings.Repeat(" <!-- padding -->", 100))
}

// TestClassify tests soft-block classification.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		statusCode  int
		body        []byte
		wantBlocked bool
	}{
		{
			name:        "plain success",
			statusCode:  http.StatusOK,
			body:        plausibleBody("<html><body>profile records</body></html>"),
			wantBlocked: false,
		},
		{
			name:        "429 is throttling",
			statusCode:  http.StatusTooManyRequests,
			body:        plausibleBody("anything"),
			wantBlocked: true,
		},
		{
			name:        "403 is throttling",
			statusCode:  http.StatusForbidden,
			body:        plausibleBody("anything"),
			wantBlocked: true,
		},
		{
			name:        "implausibly short body",
			statusCode:  http.StatusOK,
			body:        []byte("<html></html>"),
			wantBlocked: true,
		},
		{
			name:        "captcha marker in 200 response",
			statusCode:  http.StatusOK,
			body:        plausibleBody("<html>please solve this CAPTCHA to continue</html>"),
			wantBlocked: true,
		},
		{
			name:        "unusual traffic marker",
			statusCode:  http.StatusOK,
			body:        plausibleBody("We detected unusual traffic from your network."),
			wantBlocked: true,
		},
		{
			name:        "rate limit marker",
			statusCode:  http.StatusOK,
			body:        plausibleBody("You have hit the rate limit, slow down."),
			wantBlocked: true,
		},
		{
			name:        "empty body",
			statusCode:  http.StatusOK,
			body:        nil,
			wantBlocked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			blocked, reason := Classify(tt.statusCode, tt.body, DefaultMinBodyBytes)
			if blocked != tt.wantBlocked {
				t.Errorf("Classify() blocked = %v (reason %q), want %v", blocked, reason, tt.wantBlocked)
			}
			if blocked && reason == "" {
				t.Error("blocked classification must carry a reason")
			}
			if !blocked && reason != "" {
				t.Errorf("clean classification carried reason %q", reason)
			}
		})
	}
}

// TestClassifyCustomFloor tests the configurable body-size floor.
func TestClassifyCustomFloor(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte("x"), 100)

	if blocked, _ := Classify(http.StatusOK, body, 50); blocked {
		t.Error("100-byte body should pass a 50-byte floor")
	}
	if blocked, _ := Classify(http.StatusOK, body, 200); !blocked {
		t.Error("100-byte body should fail a 200-byte floor")
	}
}
