package domain

import "fmt"

// APIError is a non-2xx answer from the TPA backend.
// Message is the backend's own human-readable text.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return e.Message
}
