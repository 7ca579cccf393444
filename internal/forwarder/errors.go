package forwarder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrKind sorts delivery failures into retry policies.
type ErrKind int

const (
	// KindTransient retries with exponential backoff up to the attempt cap.
	KindTransient ErrKind = iota
	// KindRateLimit honors the platform wait, then retries. Does not count
	// against the attempt cap.
	KindRateLimit
	// KindAuthInvalid revokes the owning account; no retry.
	KindAuthInvalid
	// KindConfiguration means the rule itself is unusable; no retry.
	KindConfiguration
	// KindPermanent means this destination cannot be delivered to; no retry.
	KindPermanent
)

// DeliveryError wraps an outbound failure with its retry policy. Wait is
// only set for rate limits.
type DeliveryError struct {
	Kind ErrKind
	Wait time.Duration
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error (kind %d): %s", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

var retryAfterPattern = regexp.MustCompile(`retry after (\d+)`)

// ClassifyError maps an error from the platform edge onto the taxonomy.
// tdlib errors arrive as "CODE message" strings; network faults arrive as
// net or context errors.
func ClassifyError(err error) *DeliveryError {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de
	}

	msg := err.Error()

	if strings.HasPrefix(msg, "429") || strings.Contains(msg, "Too Many Requests") {
		wait := 5 * time.Second
		if m := retryAfterPattern.FindStringSubmatch(msg); m != nil {
			if secs, perr := strconv.Atoi(m[1]); perr == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		return &DeliveryError{Kind: KindRateLimit, Wait: wait, Err: err}
	}

	if strings.HasPrefix(msg, "401") || strings.Contains(msg, "AUTH_KEY") || strings.Contains(msg, "Unauthorized") {
		return &DeliveryError{Kind: KindAuthInvalid, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(msg, "Connection") || strings.HasPrefix(msg, "500") {
		return &DeliveryError{Kind: KindTransient, Err: err}
	}

	// 400 family: chat not found, write forbidden, message to copy deleted.
	if strings.HasPrefix(msg, "400") || strings.HasPrefix(msg, "403") {
		return &DeliveryError{Kind: KindPermanent, Err: err}
	}

	return &DeliveryError{Kind: KindTransient, Err: err}
}

func configurationError(format string, args ...any) *DeliveryError {
	return &DeliveryError{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}
