package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"

	"github.com/formbricks/forms/internal/models"
)

// ErrEndpointGone is returned when a notify URL answers 410 Gone; the delivery
// should not be retried.
var ErrEndpointGone = errors.New("notify endpoint returned 410 Gone")

// SubmissionSender delivers one payload to a template's notify URL.
type SubmissionSender interface {
	Send(ctx context.Context, t *models.Template, payload *SubmissionPayload) error
}

// SubmissionSenderImpl signs payloads per Standard Webhooks and POSTs them with
// a small number of transport-level retries. Job-level retries are River's.
type SubmissionSenderImpl struct {
	httpClient *http.Client
	now        func() time.Time
}

// SenderOption configures the transport of SubmissionSenderImpl.
type SenderOption func(*retryablehttp.Client)

// WithTransportRetries sets how often one Send retries 5xx and connection errors
// and the wait bounds between tries.
func WithTransportRetries(maxRetries int, waitMin, waitMax time.Duration) SenderOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = maxRetries
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

// NewSubmissionSenderImpl creates a sender. Redirects are not followed.
func NewSubmissionSenderImpl(opts ...SenderOption) *SubmissionSenderImpl {
	const (
		requestTimeout = 15 * time.Second
		transportRetry = 2
	)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = requestTimeout
	retryClient.RetryMax = transportRetry
	retryClient.Logger = nil // logged by the worker
	retryClient.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	for _, opt := range opts {
		opt(retryClient)
	}

	return &SubmissionSenderImpl{
		httpClient: retryClient.StandardClient(),
		now:        time.Now,
	}
}

// Send signs payload with the template's signing key and POSTs it to the notify URL.
func (s *SubmissionSenderImpl) Send(ctx context.Context, t *models.Template, payload *SubmissionPayload) error {
	if t.NotifyURL == nil || *t.NotifyURL == "" {
		return fmt.Errorf("template %s has no notify URL", t.ID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal submission payload: %w", err)
	}

	signer, err := standardwebhooks.NewWebhook(t.SigningKey)
	if err != nil {
		return fmt.Errorf("create webhook signer: %w", err)
	}

	messageID := payload.ID.String()
	timestamp := s.now()

	signature, err := signer.Sign(messageID, timestamp, body)
	if err != nil {
		return fmt.Errorf("sign submission payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *t.NotifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(standardwebhooks.HeaderWebhookID, messageID)
	req.Header.Set(standardwebhooks.HeaderWebhookSignature, signature)
	req.Header.Set(standardwebhooks.HeaderWebhookTimestamp, strconv.FormatInt(timestamp.Unix(), 10))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send submission: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.WarnContext(ctx, "failed to close notify response body", "template_id", t.ID, "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %s", ErrEndpointGone, *t.NotifyURL)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("notify endpoint returned non-2xx status: %d", resp.StatusCode)
	}

	return nil
}
