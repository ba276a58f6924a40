// Package network holds the connectivity probe that gates every
// network-dependent step, and the HTTP downloader used by those steps.
package network

import (
	"context"
	"net/http"
	"time"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/sirupsen/logrus"
)

// Probe reports whether cfg.URL answers within the configured bounds. Any
// HTTP response below 500 counts as reachable. A failed probe is not an
// error: callers use the result to skip network operations.
func Probe(ctx context.Context, client *http.Client, cfg models.ProbeConfig) bool {
	if client == nil {
		client = http.DefaultClient
	}
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		err := probeOnce(ctx, client, cfg.URL, cfg.Timeout)
		if err == nil {
			logrus.Debugf("Connectivity probe to %s succeeded on attempt %d", cfg.URL, attempt)
			return true
		}
		logrus.Debugf("Connectivity probe attempt %d/%d failed: %v", attempt, attempts, err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(cfg.Delay):
		}
	}

	return false
}

func probeOnce(ctx context.Context, client *http.Client, url string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	status, err := request(ctx, client, http.MethodHead, url)
	if err != nil {
		return err
	}
	// Some servers refuse HEAD outright
	if status == http.StatusMethodNotAllowed {
		status, err = request(ctx, client, http.MethodGet, url)
		if err != nil {
			return err
		}
	}
	if status >= 500 {
		return &StatusError{URL: url, StatusCode: status}
	}
	return nil
}

func request(ctx context.Context, client *http.Client, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
