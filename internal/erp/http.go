package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient posts invoices to an accounting system over its REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates an HTTP-backed Client.
// Pass nil to use http.DefaultClient; callers own the timeout via ctx.
func NewHTTPClient(baseURL, apiKey string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, client: client}
}

type postResponse struct {
	ID      string `json:"id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// PostInvoice implements Client.
//
// Status mapping:
//   - 2xx: success, body carries the external record id
//   - 409 with a duplicate code and an id: treated as success (the
//     idempotency key matched an existing record)
//   - other 4xx: non-retriable structured rejection
//   - 5xx: retriable structured rejection
func (c *HTTPClient) PostInvoice(ctx context.Context, req PostRequest) (PostResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return PostResult{}, fmt.Errorf("marshal post request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return PostResult{}, fmt.Errorf("build post request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return PostResult{}, fmt.Errorf("post invoice: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PostResult{}, fmt.Errorf("read post response: %w", err)
	}

	var parsed postResponse
	// Tolerate non-JSON error bodies; the raw text still reaches the operator.
	_ = json.Unmarshal(raw, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if parsed.ID == "" {
			return PostResult{}, fmt.Errorf("post invoice: success response missing record id")
		}
		return PostResult{ExternalID: parsed.ID}, nil

	case resp.StatusCode == http.StatusConflict && parsed.Code == "duplicate" && parsed.ID != "":
		return PostResult{ExternalID: parsed.ID}, nil

	case resp.StatusCode >= 500:
		return PostResult{}, &RejectionError{
			Code:       rejectionCode(parsed, "server_error"),
			Message:    rejectionMessage(parsed, raw),
			Retriable:  true,
			HTTPStatus: resp.StatusCode,
		}

	default:
		return PostResult{}, &RejectionError{
			Code:       rejectionCode(parsed, "validation"),
			Message:    rejectionMessage(parsed, raw),
			Retriable:  false,
			HTTPStatus: resp.StatusCode,
		}
	}
}

func rejectionCode(parsed postResponse, fallback string) string {
	if parsed.Code != "" {
		return parsed.Code
	}
	return fallback
}

func rejectionMessage(parsed postResponse, raw []byte) string {
	if parsed.Message != "" {
		return parsed.Message
	}
	return string(raw)
}
