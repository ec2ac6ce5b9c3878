package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient returns the client used for calls to sibling services
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
