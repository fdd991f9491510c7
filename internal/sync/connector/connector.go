// Package connector defines the CRM connector contract and its two
// implementations, Salesforce and HubSpot. Connectors translate between the
// local lead shape and each CRM's wire format; retry and batch policy live
// here so the orchestrator stays CRM-agnostic.
package connector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultRetryBase = time.Second
	retryCap         = 60 * time.Second
	maxAttempts      = 5
)

// Contact is the outbound shape of a lead pushed to a CRM. Score, grade and
// status are included read-only for the remote side; they are never pulled
// back.
type Contact struct {
	LeadID      uuid.UUID
	ExternalID  string // empty means the record does not exist remotely yet
	Username    string
	DisplayName string
	Email       string
	Phone       string
	Score       int
	Grade       string
	Status      string
}

// RemoteContact is the inbound shape of a CRM record during a pull.
type RemoteContact struct {
	ExternalID  string
	Username    string
	DisplayName string
	Email       string
	Phone       string
	Converted   bool
	UpdatedAt   time.Time
}

// PushOutcome reports what happened to one pushed contact.
type PushOutcome struct {
	LeadID     uuid.UUID
	ExternalID string
	Created    bool
	Err        error
}

// Page is one page of a pull with an opaque continuation cursor.
type Page struct {
	Contacts []RemoteContact
	Cursor   string // empty when this is the last page
}

// Connector is the capability contract every CRM adapter satisfies.
type Connector interface {
	// Platform identifies the CRM this connector talks to.
	Platform() domain.CRM
	// TestConnection verifies the credential without mutating remote state.
	TestConnection(ctx context.Context) error
	// PushBatch upserts the contacts remotely. One outcome per input contact,
	// in order; record failures are reported in the outcome, not as the
	// returned error. A non-nil error means the whole batch aborted.
	PushBatch(ctx context.Context, contacts []Contact) ([]PushOutcome, error)
	// PullBatch fetches one page of remote contacts starting at cursor.
	PullBatch(ctx context.Context, cursor string, limit int) (Page, error)
}

// classify maps an HTTP response status to the error kind that drives retry
// policy: 429 and 5xx are transient, 401/403 abort the job, 400/422 are
// permanent record failures.
func classify(status int, message string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Unauthorized(message)
	case status == http.StatusNotFound:
		return apperr.NotFound(message)
	case status == http.StatusTooManyRequests || status >= 500:
		return apperr.Transient(message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperr.Validation(message)
	default:
		return apperr.Internal(message)
	}
}

// recoverableRecordError reports whether a record failure lets the batch
// continue. Only an auth failure aborts the run: the credential is bad for
// every remaining record too.
func recoverableRecordError(err error) bool {
	return apperr.GetKind(err) != apperr.KindUnauthorized
}

// transportError maps a client-side request failure. Network errors are
// retryable; a canceled context is not.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Wrap(apperr.KindTransient, "request failed", err)
}

// readError extracts a short error message from a response body, falling back
// to the given default.
func readError(body io.Reader, fallback string) string {
	raw, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil || len(raw) == 0 {
		return fallback
	}
	return fallback + ": " + string(raw)
}

func displayOrUsername(contact Contact) string {
	if contact.DisplayName != "" {
		return contact.DisplayName
	}
	return contact.Username
}

// withRetry runs op with exponential backoff and jitter, retrying only
// transient failures. Base is configurable so tests avoid real sleeps.
func withRetry(ctx context.Context, base time.Duration, op func(ctx context.Context) error) error {
	if base <= 0 {
		base = defaultRetryBase
	}
	backoff := retry.NewExponential(base)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithCappedDuration(retryCap, backoff)
	backoff = retry.WithMaxRetries(maxAttempts-1, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && apperr.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
