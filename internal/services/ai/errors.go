package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"google.golang.org/api/googleapi"
)

var (
	// ErrRateLimited indicates the API rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded indicates the API quota was exceeded
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// APIError represents an error from the AI provider API
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	RetryAfter  *time.Duration
	IsPermanent bool // true for quota errors, false for rate limits
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests && !apiErr.IsPermanent
	}

	// Check error message for rate limit indicators
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "ResourceExhausted")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsPermanent || apiErr.Code == "insufficient_quota"
	}

	// Check error message for quota indicators
	errStr := err.Error()
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// ExtractAPIError extracts API error details from an error returned by the
// OpenAI or Gemini clients. It returns nil for errors that are not rate limits.
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		if oaiErr.StatusCode != http.StatusTooManyRequests {
			return nil
		}
		apiErr := &APIError{
			StatusCode:  oaiErr.StatusCode,
			Message:     oaiErr.Message,
			Type:        oaiErr.Type,
			Code:        oaiErr.Code,
			IsPermanent: oaiErr.Code == "insufficient_quota",
		}
		if oaiErr.Response != nil {
			apiErr.RetryAfter = parseRetryAfter(oaiErr.Response.Header.Get("Retry-After"))
		}
		return withDefaultRetryAfter(apiErr)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code != http.StatusTooManyRequests {
			return nil
		}
		apiErr := &APIError{
			StatusCode: gErr.Code,
			Message:    gErr.Message,
			Type:       "rate_limit_error",
		}
		for _, item := range gErr.Errors {
			if strings.Contains(strings.ToLower(item.Reason), "quota") {
				apiErr.Code = item.Reason
				apiErr.IsPermanent = true
			}
		}
		apiErr.RetryAfter = parseRetryAfter(gErr.Header.Get("Retry-After"))
		return withDefaultRetryAfter(apiErr)
	}

	// Gemini surfaces gRPC statuses as text
	errStr := err.Error()
	if !strings.Contains(errStr, "429") && !strings.Contains(errStr, "ResourceExhausted") {
		return nil
	}
	apiErr := &APIError{
		StatusCode: http.StatusTooManyRequests,
		Message:    errStr,
		Type:       "rate_limit_error",
	}

	// Try to parse JSON error details if present
	if jsonStart := strings.Index(errStr, "{"); jsonStart != -1 {
		jsonStr := errStr[jsonStart:]
		if jsonEnd := strings.LastIndex(jsonStr, "}"); jsonEnd != -1 {
			var errorData struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    string `json:"code"`
			}
			if json.Unmarshal([]byte(jsonStr[:jsonEnd+1]), &errorData) == nil {
				apiErr.Message = errorData.Message
				apiErr.Type = errorData.Type
				apiErr.Code = errorData.Code
				apiErr.IsPermanent = errorData.Code == "insufficient_quota"
			}
		}
	}
	return withDefaultRetryAfter(apiErr)
}

func parseRetryAfter(v string) *time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}

// withDefaultRetryAfter assumes a one minute reset for rate limits and an hour for quota
func withDefaultRetryAfter(apiErr *APIError) *APIError {
	if apiErr.RetryAfter != nil {
		return apiErr
	}
	retryAfter := 60 * time.Second
	if apiErr.IsPermanent {
		retryAfter = time.Hour
	}
	apiErr.RetryAfter = &retryAfter
	return apiErr
}

// GetRetryDelay calculates the delay before retrying based on error type
func GetRetryDelay(err error, attempt int) time.Duration {
	// shift stays in [0, 10]
	var shiftAmountUint uint
	switch {
	case attempt <= 0:
		shiftAmountUint = 0
	case attempt > 10:
		shiftAmountUint = 10
	default:
		shiftAmountUint = uint(attempt)
	}

	if IsQuotaError(err) {
		// Quota errors: exponential backoff starting at 1 hour
		delay := time.Hour * time.Duration(1<<shiftAmountUint)
		if delay > 24*time.Hour {
			delay = 24 * time.Hour
		}
		return delay
	}

	if IsRateLimitError(err) {
		// Rate limit errors: exponential backoff starting at 60 seconds
		delay := 60 * time.Second * time.Duration(1<<shiftAmountUint)
		if delay > 15*time.Minute {
			delay = 15 * time.Minute
		}

		// Try to extract retry-after from error
		if apiErr := ExtractAPIError(err); apiErr != nil && apiErr.RetryAfter != nil {
			if *apiErr.RetryAfter > delay {
				delay = *apiErr.RetryAfter
			}
		}

		return delay
	}

	// Default: exponential backoff starting at 5 seconds
	delay := 5 * time.Second * time.Duration(1<<shiftAmountUint)
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}
