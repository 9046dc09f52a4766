package bundler

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func textHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func serve(t *testing.T, stack *Stack, path string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	stack.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Body.String()
}

func TestStackOrdering(t *testing.T) {
	stack := NewStack(textHandler("fallback"))
	stack.Mount("/", textHandler("static"))

	// A root static mount swallows everything until the manifest handler
	// is moved to the front.
	if got := serve(t, stack, "/manifest"); got != "static" {
		t.Fatalf("before MountFront: got %q, want %q", got, "static")
	}

	stack.MountFront("/manifest", textHandler("manifest"))

	if got := serve(t, stack, "/manifest"); got != "manifest" {
		t.Errorf("manifest request: got %q, want %q", got, "manifest")
	}
	if got := serve(t, stack, "/bundle.js"); got != "static" {
		t.Errorf("static request: got %q, want %q", got, "static")
	}
}

func TestStackFallback(t *testing.T) {
	stack := NewStack(textHandler("fallback"))
	stack.Mount("/message", textHandler("socket"))

	if got := serve(t, stack, "/index.bundle"); got != "fallback" {
		t.Errorf("unmatched request: got %q, want %q", got, "fallback")
	}
	if got := serve(t, stack, "/message"); got != "socket" {
		t.Errorf("mounted request: got %q, want %q", got, "socket")
	}
}

func TestMatchesPrefix(t *testing.T) {
	tests := []struct {
		path   string
		prefix string
		want   bool
	}{
		{"/manifest", "/manifest", true},
		{"/manifest/extra", "/manifest", true},
		{"/manifesto", "/manifest", false},
		{"/anything", "/", true},
		{"/", "/", true},
	}

	for _, tt := range tests {
		if got := matchesPrefix(tt.path, tt.prefix); got != tt.want {
			t.Errorf("matchesPrefix(%q, %q) = %v, want %v", tt.path, tt.prefix, got, tt.want)
		}
	}
}
