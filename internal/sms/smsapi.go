package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
)

const DefaultSMSAPIURL = "https://api.smsapi.pl/sms.do"

// SMSAPIClient posts messages to an SMSAPI-compatible endpoint.
type SMSAPIClient struct {
	URL    string
	Token  string
	Sender string
	HTTP   *http.Client
}

type smsapiResponse struct {
	Count int `json:"count"`
	List  []struct {
		ID string `json:"id"`
	} `json:"list"`
	Message string `json:"message"`
	Error   int    `json:"error"`
}

func (c *SMSAPIClient) Send(ctx context.Context, phone, body string) (string, error) {
	if c.Token == "" || c.Sender == "" {
		return "", appErrors.NewTransportFailure("SMSAPI credentials not configured")
	}

	endpoint := c.URL
	if endpoint == "" {
		endpoint = DefaultSMSAPIURL
	}
	form := url.Values{
		"to":       {phone},
		"message":  {body},
		"from":     {c.Sender},
		"format":   {"json"},
		"encoding": {"utf-8"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", appErrors.NewTransportFailure("SMSAPI request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", appErrors.NewTransportFailure("SMSAPI communication error: %v", err)
	}
	defer resp.Body.Close()

	var out smsapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", appErrors.NewTransportFailure("SMSAPI response (HTTP %d): %v", resp.StatusCode, err)
	}

	if resp.StatusCode >= 300 || out.Count == 0 || len(out.List) == 0 {
		msg := out.Message
		if msg == "" {
			msg = "Unknown SMSAPI error"
		}
		return "", appErrors.NewTransportFailure("%s", msg)
	}
	return out.List[0].ID, nil
}

var _ Sender = (*SMSAPIClient)(nil)

// New picks the adapter named by provider.
func New(provider, apiURL, token, sender string) (Sender, error) {
	switch provider {
	case "smsapi":
		return &SMSAPIClient{URL: apiURL, Token: token, Sender: sender}, nil
	case "mock":
		return &MockSender{}, nil
	}
	return nil, fmt.Errorf("unknown SMS provider %q", provider)
}
