// Package bills delivers transformed payment records to the remote billing
// endpoint, one request per record.
//
// All per-record faults are absorbed here: a failed record is logged and
// left unconfirmed so the next cycle retries it. Deliver never returns an
// error and never panics past its contract.
package bills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/parkops/billsync/internal/transform"
)

// RetryPolicy bounds per-record retries within one cycle. The delay grows
// linearly with the attempt number so a degraded endpoint is not hammered.
type RetryPolicy struct {
	// Attempts is the maximum number of tries per record, including the
	// first. Must be at least 1.
	Attempts int

	// BaseDelay is the wait after the first failure; attempt n waits
	// n * BaseDelay.
	BaseDelay time.Duration
}

// DefaultRetryPolicy retries each record three times with a growing pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second}
}

// Client sends delivery records to the billing endpoint.
type Client struct {
	endpoint string
	tokens   map[string]string // facility code -> Authorization credential
	httpc    *http.Client
	retry    RetryPolicy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Used by tests and
// by callers that need custom transport settings.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

// WithRetryPolicy overrides the per-record retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cl *Client) { cl.retry = p }
}

// New creates a delivery client. The timeout bounds every request so one
// hung call cannot pin a whole cycle.
func New(endpoint string, tokens map[string]string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		tokens:   tokens,
		httpc:    &http.Client{Timeout: timeout},
		retry:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// acceptedData is the payload of a 201 response.
type acceptedData struct {
	ID          any    `json:"id"`
	DocumentID  string `json:"document_id"`
	DatePayment string `json:"date_payment"`
}

type acceptedResponse struct {
	Data acceptedData `json:"data"`
}

// Deliver submits each record independently and returns the subset the
// endpoint confirmed (HTTP 201). Records keep their local identifiers and
// facility code; only the wire body is sent.
//
// An unresolved facility yields an empty credential - the request is still
// attempted and the remote rejection is recorded as a per-record failure.
func (c *Client) Deliver(ctx context.Context, batch []transform.Record) []transform.Record {
	var confirmed []transform.Record

	for _, rec := range batch {
		if ctx.Err() != nil {
			slog.Warn("delivery interrupted, remaining records deferred",
				"remaining", len(batch)-len(confirmed))
			break
		}

		if c.deliverOne(ctx, rec) {
			confirmed = append(confirmed, rec)
		}
	}

	return confirmed
}

// deliverOne attempts a single record with bounded retries.
func (c *Client) deliverOne(ctx context.Context, rec transform.Record) bool {
	token := c.tokens[rec.Facility]

	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		err := c.post(ctx, rec, token)
		if err == nil {
			return true
		}

		slog.Error("delivery failed",
			"source_id", rec.SourceID,
			"operation_id", rec.OperationID,
			"facility", rec.Facility,
			"attempt", attempt,
			"error", err,
		)

		if attempt == c.retry.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * c.retry.BaseDelay):
		}
	}

	return false
}

func (c *Client) post(ctx context.Context, rec transform.Record, token string) error {
	body, err := json.Marshal(rec.Body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var detail json.RawMessage
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail)
	}

	var accepted acceptedResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		// The record was created remotely; a malformed body only costs
		// the confirmation log fields.
		slog.Warn("accepted response body unreadable",
			"source_id", rec.SourceID, "error", err)
		return nil
	}

	slog.Info("record delivered",
		"remote_id", accepted.Data.ID,
		"document_id", accepted.Data.DocumentID,
		"date_payment", accepted.Data.DatePayment,
	)
	return nil
}
