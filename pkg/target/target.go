package target

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/inferload/pkg/retry"
)

// Addresses expands host:port into the listener fan-out pool
// http://host:port+0/ .. http://host:port+listeners-1/. The serve side
// binds one listener per port so spreading workers across them spreads
// accept-queue pressure.
func Addresses(host string, port, listeners int) []string {
	if listeners < 1 {
		listeners = 1
	}
	addrs := make([]string, listeners)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("http://%s:%d/", host, port+i)
	}
	return addrs
}

// Preflight probes every listener before workers are spawned, retrying with
// backoff. Reachability is what matters: any HTTP response counts as up,
// since the inference endpoint only speaks POST on /. A listener that never
// answers fails the run before any measurement starts.
func Preflight(ctx context.Context, addrs []string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for _, addr := range addrs {
		addr := addr
		err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			return nil
		})
		if err != nil {
			return fmt.Errorf("target %s unreachable: %w", addr, err)
		}
	}
	return nil
}
