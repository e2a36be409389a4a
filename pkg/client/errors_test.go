package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"server error should retry", ErrorClassServer, true},
		{"rate limit should retry", ErrorClassRateLimit, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestISSError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ISSError
		expected string
	}{
		{
			name: "error with wrapped error",
			err: &ISSError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "Internal Server Error",
				Err:        errors.New("upstream timeout"),
			},
			expected: "ISS server error (status 500): Internal Server Error: upstream timeout",
		},
		{
			name: "error without wrapped error",
			err: &ISSError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "Not Found",
			},
			expected: "ISS client error (status 404): Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestISSError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := fmt.Errorf("fetch page: %w", &ISSError{ErrorClass: ErrorClassNetwork, Err: inner})

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var issErr *ISSError
	if !errors.As(err, &issErr) {
		t.Fatal("errors.As should find the ISSError")
	}
	if issErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %s, want network", issErr.ErrorClass)
	}
	if classOf(err) != ErrorClassNetwork {
		t.Errorf("classOf() = %q, want network", classOf(err))
	}
	if classOf(errors.New("plain")) != "" {
		t.Error("classOf() of a plain error should be empty")
	}
}
