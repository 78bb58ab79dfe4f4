package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CardSender pushes an agent-facing card to the receiving platform for a
// specific inbound call.
type CardSender interface {
	Send(ctx context.Context, inboundCallID string, card Card) error
}

// HTTPCardSender posts cards to the receiving platform's call API using
// basic bearer auth.

type HTTPCardSender struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPCardSender(baseURL, token string) *HTTPCardSender {
	return &HTTPCardSender{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type cardPayload struct {
	Contents []cardElement `json:"contents"`
}

type cardElement struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (s *HTTPCardSender) Send(ctx context.Context, inboundCallID string, card Card) error {
	payload := cardPayload{Contents: []cardElement{{Type: "title", Text: card.Title}}}
	for _, line := range card.Lines {
		payload.Contents = append(payload.Contents, cardElement{Type: "shortText", Text: line})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}

	url := fmt.Sprintf("%s/v1/calls/%s/insight_cards", s.BaseURL, inboundCallID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build card request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post card: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("card rejected: status %d", resp.StatusCode)
	}
	return nil
}
