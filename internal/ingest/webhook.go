package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// signaturePrefix is the algorithm tag the signature header must carry.
const signaturePrefix = "sha256="

// EventWorkflowRun is the only event category that produces ingestion.
const EventWorkflowRun = "workflow_run"

// Lifecycle actions carried by workflow_run deliveries.
const (
	ActionRequested  = "requested"
	ActionInProgress = "in_progress"
	ActionCompleted  = "completed"
)

// Webhook verification errors. The API layer maps these to status codes;
// the raw secret and computed digests never appear in error text.
var (
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
	ErrSignatureMismatch   = errors.New("webhook signature verification failed")
	ErrMalformedPayload    = errors.New("malformed webhook payload")
)

// VerifySignature checks an HMAC-SHA256 signature over the exact raw request
// body. Fail-closed: an empty secret rejects every request. The comparison
// is constant-time; a length mismatch is a verification failure, not an error.
func VerifySignature(secret string, body []byte, sigHeader string) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}
	if !strings.HasPrefix(sigHeader, signaturePrefix) {
		return ErrSignatureMismatch
	}

	supplied, err := hex.DecodeString(strings.TrimPrefix(sigHeader, signaturePrefix))
	if err != nil {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), supplied) {
		return ErrSignatureMismatch
	}
	return nil
}

// WorkflowRunDelivery is the decoded body of a workflow_run webhook event.
type WorkflowRunDelivery struct {
	Action      string    `json:"action"`
	WorkflowRun SourceRun `json:"workflow_run"`
	Repository  struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ParseWorkflowRunDelivery decodes a workflow_run event body.
func ParseWorkflowRunDelivery(body []byte) (*WorkflowRunDelivery, error) {
	var delivery WorkflowRunDelivery
	if err := json.Unmarshal(body, &delivery); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if delivery.Repository.FullName == "" || delivery.WorkflowRun.ID == 0 {
		return nil, fmt.Errorf("%w: missing repository or run id", ErrMalformedPayload)
	}
	return &delivery, nil
}
