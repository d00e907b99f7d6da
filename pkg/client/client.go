package client

import (
	"net/http"
	"time"
)

// NewClient returns an http client that stamps every request with the
// tool user agent and a JSON accept header.
func NewClient(userAgent string) *http.Client {
	transport := http.DefaultTransport

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	// Custom RoundTripper to add headers to every request
	client.Transport = roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.Header.Set("User-Agent", userAgent)
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/vnd.github+json")
		}
		return transport.RoundTrip(req)
	})

	return client
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (rf roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return rf(req)
}
