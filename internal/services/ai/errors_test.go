package ai

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func TestExtractAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantNil       bool
		wantPermanent bool
		wantRetry     time.Duration
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "unrelated", err: errors.New("connection reset"), wantNil: true},
		{
			name:      "google rate limit with retry-after",
			err:       fmt.Errorf("search: %w", &googleapi.Error{Code: http.StatusTooManyRequests, Message: "slow down", Header: http.Header{"Retry-After": []string{"7"}}}),
			wantRetry: 7 * time.Second,
		},
		{
			name:          "google quota",
			err:           &googleapi.Error{Code: http.StatusTooManyRequests, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}},
			wantPermanent: true,
			wantRetry:     time.Hour,
		},
		{name: "google not found", err: &googleapi.Error{Code: http.StatusNotFound}, wantNil: true},
		{
			name:      "grpc resource exhausted text",
			err:       errors.New("rpc error: code = ResourceExhausted desc = try later"),
			wantRetry: time.Minute,
		},
		{
			name:          "quota json in text",
			err:           errors.New(`POST: 429 Too Many Requests {"message": "out of credit", "type": "insufficient_quota", "code": "insufficient_quota"}`),
			wantPermanent: true,
			wantRetry:     time.Hour,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractAPIError(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Errorf("ExtractAPIError() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("ExtractAPIError() = nil")
			}
			if got.StatusCode != http.StatusTooManyRequests {
				t.Errorf("StatusCode = %d", got.StatusCode)
			}
			if got.IsPermanent != tt.wantPermanent {
				t.Errorf("IsPermanent = %v, want %v", got.IsPermanent, tt.wantPermanent)
			}
			if got.RetryAfter == nil || *got.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %v, want %v", got.RetryAfter, tt.wantRetry)
			}
		})
	}
}

func TestGetRetryDelay(t *testing.T) {
	t.Parallel()

	rateLimited := &APIError{StatusCode: http.StatusTooManyRequests, Type: "rate_limit_error"}
	quota := &APIError{StatusCode: http.StatusTooManyRequests, Code: "insufficient_quota", IsPermanent: true}
	other := errors.New("boom")

	tests := []struct {
		name    string
		err     error
		attempt int
		want    time.Duration
	}{
		{"generic first attempt", other, 0, 5 * time.Second},
		{"generic grows", other, 2, 20 * time.Second},
		{"generic capped", other, 15, 5 * time.Minute},
		{"rate limit first attempt", rateLimited, 0, time.Minute},
		{"rate limit capped", rateLimited, 6, 15 * time.Minute},
		{"quota first attempt", quota, 0, time.Hour},
		{"quota capped", quota, 9, 24 * time.Hour},
		{"negative attempt", other, -3, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GetRetryDelay(tt.err, tt.attempt); got != tt.want {
				t.Errorf("GetRetryDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRateLimitAndQuota(t *testing.T) {
	t.Parallel()

	if !IsRateLimitError(errors.New("429 too many requests")) {
		t.Error("IsRateLimitError(429 text) = false")
	}
	if IsRateLimitError(&APIError{StatusCode: 429, IsPermanent: true}) {
		t.Error("IsRateLimitError(quota) = true")
	}
	if !IsQuotaError(&APIError{StatusCode: 429, IsPermanent: true}) {
		t.Error("IsQuotaError(permanent) = false")
	}
	if IsQuotaError(nil) || IsRateLimitError(nil) {
		t.Error("nil error classified")
	}
}
