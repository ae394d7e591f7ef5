// Package classify maps provider SDK failures onto llmerrors types so that the
// retry and circuit layers can treat every provider alike.
package classify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"kcexplore/pkg/oracle/llmerrors"
)

var statusPattern = regexp.MustCompile(`(?i)(?:status(?: code)?:?|http|code)\s*(\d{3})\b`)

// StatusFromText extracts an HTTP status code embedded in an error message,
// or 0 when none is present.
func StatusFromText(msg string) int {
	m := statusPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

// Error classifies err from provider. status is the HTTP status the SDK
// reported, or 0 when unknown.
func Error(provider string, err error, status int) *llmerrors.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, provider+" request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, provider+" request timeout")
	}

	msg := err.Error()
	if status == 0 {
		status = StatusFromText(msg)
	}
	if status != 0 {
		if et := llmerrors.FromStatus(status); et != llmerrors.ErrorTypeUnknown {
			e := llmerrors.NewErrorWithCause(et, err, fmt.Sprintf("%s returned HTTP %d", provider, status))
			e.StatusCode = status
			e.BodyStub = stub(msg)
			return e
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "connection refused", "connection reset", "timeout", "network", "temporary", "eof", "no such host"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, provider+" network or connection error")
	case containsAny(lower, "rate limit", "quota", "too many requests"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, provider+" rate limiting detected")
	case containsAny(lower, "unauthorized", "api key", "permission denied"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, provider+" authentication error")
	case containsAny(lower, "model") && containsAny(lower, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, provider+" model not found")
	case containsAny(lower, "malformed", "too large", "context length", "maximum context"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, provider+" prompt or request error")
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, provider+" unclassified error")
}

// Empty is the error for a reply with no text.
func Empty(provider string) *llmerrors.Error {
	return llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from "+provider)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func stub(msg string) string {
	const limit = 200
	if len(msg) > limit {
		return msg[:limit]
	}
	return msg
}
