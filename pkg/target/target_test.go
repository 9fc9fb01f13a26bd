package target

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAddresses(t *testing.T) {
	addrs := Addresses("127.0.0.1", 11223, 4)
	want := []string{
		"http://127.0.0.1:11223/",
		"http://127.0.0.1:11224/",
		"http://127.0.0.1:11225/",
		"http://127.0.0.1:11226/",
	}
	if len(addrs) != len(want) {
		t.Fatalf("expected %d addresses, got %d", len(want), len(addrs))
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Errorf("address %d: expected %s, got %s", i, want[i], addrs[i])
		}
	}
}

func TestAddressesMinimumOne(t *testing.T) {
	if n := len(Addresses("h", 80, 0)); n != 1 {
		t.Errorf("expected 1 address, got %d", n)
	}
}

func TestPreflight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The real endpoint 405s on GET; that still proves it is up.
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if err := Preflight(context.Background(), []string{srv.URL}); err != nil {
		t.Fatalf("preflight against live server: %v", err)
	}
}

func TestPreflightUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Preflight(ctx, []string{"http://127.0.0.1:1/"})
	}()
	cancel()
	err := <-done
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}
