package browserextract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/normanking/aura-orchestrator/internal/types"
)

func TestHTTPExtractor_ExtractText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`
<html><head><style>.x{color:red}</style><script>evil()</script></head>
<body><h1>Hello</h1><p>  world   with   spaces </p></body></html>
`))
	}))
	defer srv.Close()

	e := NewHTTPExtractor(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	text, err := e.ExtractText(ctx, types.ApplicationInfo{Name: srv.URL})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "Hello world with spaces" {
		t.Errorf("ExtractText() = %q, want %q", text, "Hello world with spaces")
	}
}

func TestHTTPExtractor_ExtractText_NoURL(t *testing.T) {
	t.Parallel()

	e := NewHTTPExtractor(nil)
	if _, err := e.ExtractText(context.Background(), types.ApplicationInfo{}); err == nil {
		t.Error("expected error for missing URL, got nil")
	}
}

func TestHTTPExtractor_ExtractText_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewHTTPExtractor(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := e.ExtractText(ctx, types.ApplicationInfo{Name: srv.URL}); err == nil {
		t.Error("expected error for 404 response, got nil")
	}
}

func TestHTTPExtractor_ExtractText_EmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	e := NewHTTPExtractor(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := e.ExtractText(ctx, types.ApplicationInfo{Name: srv.URL}); err == nil {
		t.Error("expected error for empty extracted text, got nil")
	}
}
