package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"callbridge/internal/phone"
)

// DeliveryClient posts one callback request downstream. Implementations
// must treat any non-2xx outcome as an error.
type DeliveryClient interface {
	Deliver(ctx context.Context, req Request) (responsePayload string, err error)
}

// HTTPDeliverer posts normalized caller-info payloads to the configured
// downstream endpoint with bearer authentication.

type HTTPDeliverer struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

func NewHTTPDeliverer(endpoint, token string) *HTTPDeliverer {
	return &HTTPDeliverer{
		Endpoint: endpoint,
		Token:    token,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// payload is the normalized wire form of a callback request.
type payload struct {
	CallbackNumber string `json:"callback_number"`
	CallerName     string `json:"caller_name,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Concern        string `json:"concern,omitempty"`
	UrgencyLevel   string `json:"urgency_level"`
	SourceCallID   string `json:"source_call_id,omitempty"`
	RequestID      string `json:"request_id"`
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(payload{
		CallbackNumber: phone.Normalize(req.CallbackNumber),
		CallerName:     req.CallerName,
		Subject:        req.Subject,
		Concern:        req.Concern,
		UrgencyLevel:   string(req.Urgency),
		SourceCallID:   req.SourceCallID,
		RequestID:      req.ID,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.Token)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("callback: downstream returned %d: %s", resp.StatusCode, string(respBody))
	}
	return string(respBody), nil
}

// NoopDeliverer accepts every request without posting anywhere. Used when
// no downstream endpoint is configured so the queue still drains.
type NoopDeliverer struct{}

func (NoopDeliverer) Deliver(ctx context.Context, req Request) (string, error) {
	return `{"delivered":false,"reason":"no endpoint configured"}`, nil
}
