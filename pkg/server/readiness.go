package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// probe checks whether a server on port is accepting connections, and
// when healthPath is set, whether it answers the health endpoint with 2xx.
func probe(ctx context.Context, port int, healthPath string) error {
	if err := probeTCP(ctx, port); err != nil {
		return err
	}
	if healthPath != "" {
		return probeHTTP(ctx, port, healthPath)
	}
	return nil
}

func probeTCP(ctx context.Context, port int) error {
	dialer := net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("tcp probe port %d: %w", port, err)
	}
	return conn.Close()
}

func probeHTTP(ctx context.Context, port int, path string) error {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health probe %s: status %d", url, resp.StatusCode)
	}
	return nil
}
