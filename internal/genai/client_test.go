package genai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "sk-test-0000",
		Model:   "test-model",
	}, NewRateLimiter(20, time.Minute))
	return c, srv
}

func TestCompleteSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test-0000" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}],"usage":{"total_tokens":12}}`))
	})

	got, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello there" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestCompleteErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrInvalidCredential},
		{"throttled", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrUpstreamThrottled},
		{"server error", http.StatusBadGateway, `oops`, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCompleteUnrecognizedStatusPassesUpstreamMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	})

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, sentinel := range []error{ErrInvalidCredential, ErrUpstreamThrottled, ErrTransient} {
		if errors.Is(err, sentinel) {
			t.Errorf("unexpected sentinel %v for unrecognized status", sentinel)
		}
	}
	if want := "quota exceeded"; !strings.Contains(err.Error(), want) {
		t.Errorf("expected upstream message %q in %q", want, err.Error())
	}
}

func TestCompleteEmptyCompletion(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[],"usage":{"total_tokens":0}}`))
	})

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestCompletePlaceholderCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	for _, key := range []string{"", "your-api-key-here", "CHANGEME", "sk-xxx"} {
		c := NewClient(Config{BaseURL: srv.URL, APIKey: key}, nil)
		_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
		if !errors.Is(err, ErrMissingCredential) {
			t.Errorf("key %q: expected ErrMissingCredential, got %v", key, err)
		}
	}
	if called {
		t.Error("no network call should be made with an unusable credential")
	}
}

func TestCompleteRateLimitedLocally(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})
	c.limiter = NewRateLimiter(2, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != 2 {
		t.Errorf("rejected request must not reach the network, got %d calls", calls)
	}
}
