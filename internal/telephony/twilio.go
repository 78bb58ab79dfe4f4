package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioExecutor redirects a live call leg by posting transfer TwiML to the
// Twilio Calls API.

type TwilioExecutor struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	Client     *http.Client
}

func NewTwilioExecutor(accountSID, authToken string) *TwilioExecutor {
	return &TwilioExecutor{
		AccountSID: accountSID,
		AuthToken:  authToken,
		BaseURL:    "https://api.twilio.com",
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *TwilioExecutor) Name() string { return "twilio" }

func (e *TwilioExecutor) ExecuteTransfer(ctx context.Context, cmd TransferCommand) error {
	if cmd.TelephonyCallID == "" {
		return ErrMissingCallID
	}

	doc, err := RenderTransferTwiML(cmd.Route)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("Twiml", doc)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json",
		strings.TrimRight(e.BaseURL, "/"), e.AccountSID, cmd.TelephonyCallID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telephony: build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(e.AccountSID, e.AuthToken)

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telephony: carrier returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
