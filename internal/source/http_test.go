package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harvestd/harvestd/internal/model"
	"github.com/harvestd/harvestd/internal/ratelimit"
)

func testProcessor(t *testing.T, handler http.HandlerFunc) (*HTTPProcessor, *ratelimit.Limiter, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := ratelimit.New(ratelimit.Params{
		BaseDelay:   time.Millisecond,
		JitterRange: 0,
		MaxDelay:    50 * time.Millisecond,
		BackoffCap:  2,
	})
	proc := NewHTTPProcessor(limiter,
		WithRPSCeiling(10_000),
		WithMinBodyBytes(1),
	)
	return proc, limiter, srv.URL
}

func sessionConfig(urlTemplate string) model.SessionConfig {
	return model.SessionConfig{
		Options: map[string]string{"url_template": urlTemplate},
	}
}

func TestHTTPProcessorFetch(t *testing.T) {
	t.Parallel()

	var gotPath, gotUA string
	proc, limiter, base := testProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42}`))
	})

	raw, err := proc.Process(context.Background(), "alice smith", sessionConfig(base+"/users/{name}"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if gotPath != "/users/alice%20smith" {
		t.Errorf("expected escaped item name in path, got %s", gotPath)
	}
	if want := limiter.CurrentIdentity().UserAgent; gotUA != want {
		t.Errorf("expected identity user agent %q, got %q", want, gotUA)
	}

	var result fetchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.Name != "alice smith" || result.StatusCode != http.StatusOK {
		t.Errorf("unexpected envelope: %+v", result)
	}
	if string(result.Body) != `{"id":42}` {
		t.Errorf("expected raw JSON body embedded, got %s", result.Body)
	}
}

func TestHTTPProcessorExtraHeaders(t *testing.T) {
	t.Parallel()

	var gotAccept string
	proc, _, base := testProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	WithExtraHeaders(map[string]string{"Accept": "application/json"})(proc)

	if _, err := proc.Process(context.Background(), "alice", sessionConfig(base+"/{name}")); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if gotAccept != "application/json" {
		t.Errorf("expected extra header to be sent, got %q", gotAccept)
	}
}

func TestHTTPProcessorNonJSONBody(t *testing.T) {
	t.Parallel()

	proc, _, base := testProcessor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>profile page</html>"))
	})

	raw, err := proc.Process(context.Background(), "alice", sessionConfig(base+"/{name}"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	var result fetchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.Body != nil {
		t.Errorf("non-JSON body must not be embedded, got %s", result.Body)
	}
	if result.BodyBytes == 0 {
		t.Error("expected body size to be recorded")
	}
}

func TestHTTPProcessorSoftBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "rate limit status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "block marker in body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(strings.Repeat("x", 600) + " unusual traffic detected"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			proc, limiter, base := testProcessor(t, tt.handler)
			before := limiter.Stats().Rotations

			_, err := proc.Process(context.Background(), "alice", sessionConfig(base+"/{name}"))
			if err == nil {
				t.Fatal("expected a soft-block error")
			}
			if got := limiter.Stats().Rotations; got != before+1 {
				t.Errorf("expected a forced identity rotation, rotations %d -> %d", before, got)
			}
		})
	}
}

func TestHTTPProcessorErrorStatus(t *testing.T) {
	t.Parallel()

	proc, limiter, base := testProcessor(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	before := limiter.Stats().Rotations

	_, err := proc.Process(context.Background(), "alice", sessionConfig(base+"/{name}"))
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	if got := limiter.Stats().Rotations; got != before {
		t.Errorf("plain HTTP errors must not rotate identities, rotations %d -> %d", before, got)
	}
}

func TestHTTPProcessorMissingTemplate(t *testing.T) {
	t.Parallel()

	proc, _, _ := testProcessor(t, func(http.ResponseWriter, *http.Request) {})
	_, err := proc.Process(context.Background(), "alice", model.SessionConfig{})
	if !errors.Is(err, ErrMissingURLTemplate) {
		t.Errorf("expected ErrMissingURLTemplate, got %v", err)
	}
}

func TestHTTPProcessorBodyCap(t *testing.T) {
	t.Parallel()

	proc, _, base := testProcessor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	})
	WithMaxBodyBytes(1024)(proc)

	raw, err := proc.Process(context.Background(), "alice", sessionConfig(base+"/{name}"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	var result fetchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.BodyBytes != 1024 {
		t.Errorf("expected body capped at 1024 bytes, got %d", result.BodyBytes)
	}
}
