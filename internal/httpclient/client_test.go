package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewRedirectPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/end", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	t.Run("Redirects surface directly when disabled", func(t *testing.T) {
		client, err := New(Options{Timeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		resp, err := client.Get(srv.URL + "/start")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			t.Errorf("Expected 302 surfaced, got %d", resp.StatusCode)
		}
	})

	t.Run("Redirects followed when enabled", func(t *testing.T) {
		client, err := New(Options{Timeout: 5 * time.Second, FollowRedirect: true})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		resp, err := client.Get(srv.URL + "/start")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected final 200, got %d", resp.StatusCode)
		}
	})
}

func TestNewRedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Redirect forever.
		http.Redirect(w, r, srv.URL+"/loop", http.StatusFound)
	}))
	defer srv.Close()

	client, err := New(Options{Timeout: 5 * time.Second, FollowRedirect: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := client.Get(srv.URL); err == nil {
		t.Error("Expected an error after exhausting the redirect limit")
	}
}

func TestNewSkipsTLSVerifyByDefault(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Expected self-signed cert accepted with verification off, got %v", err)
	}
	resp.Body.Close()
}

func TestNewVerifiesTLSWhenAsked(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(Options{Timeout: 5 * time.Second, VerifySSL: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := client.Get(srv.URL); err == nil {
		t.Error("Expected certificate verification failure for a self-signed cert")
	}
}

func TestNewInvalidProxy(t *testing.T) {
	if _, err := New(Options{Proxy: "://bad"}); err == nil {
		t.Error("Expected error for unparsable proxy URL")
	}
}

func TestNewTimeoutApplies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := New(Options{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := client.Get(srv.URL); err == nil {
		t.Error("Expected timeout error for a slow server")
	}
}
