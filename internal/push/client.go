package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNoRecipients = errors.New("push: no recipient tokens")

// TokenSource obtains this device's routing token from the push relay.
type TokenSource struct {
	baseURL    string
	deviceID   func() (string, error)
	httpClient *http.Client
}

func NewTokenSource(baseURL string, deviceID func() (string, error)) *TokenSource {
	return &TokenSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		deviceID:   deviceID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if s.baseURL == "" {
		return "", errors.New("push: relay url is not configured")
	}

	deviceID, err := s.deviceID()
	if err != nil {
		return "", fmt.Errorf("resolve device id: %w", err)
	}

	body, err := json.Marshal(map[string]string{"device_id": deviceID})
	if err != nil {
		return "", fmt.Errorf("marshal registration payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/registrations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch push token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("fetch push token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode push token response: %w", err)
	}
	if response.Token == "" {
		return "", errors.New("push token missing from response")
	}

	return response.Token, nil
}

// FCMClient sends data messages through the FCM HTTP endpoint.
type FCMClient struct {
	baseURL    string
	serverKey  string
	httpClient *http.Client
}

func NewFCMClient(baseURL, serverKey string) *FCMClient {
	return &FCMClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type sendRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Data            map[string]string `json:"data"`
}

type sendResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error,omitempty"`
	} `json:"results"`
}

func (c *FCMClient) Send(ctx context.Context, tokens []string, data map[string]string) error {
	recipients := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if strings.TrimSpace(token) != "" {
			recipients = append(recipients, token)
		}
	}
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	body, err := json.Marshal(sendRequest{RegistrationIDs: recipients, Data: data})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fcm/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Authorization", "key="+c.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("send push: status %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	var response sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	if response.Success == 0 && response.Failure > 0 {
		reason := "unknown"
		if len(response.Results) > 0 && response.Results[0].Error != "" {
			reason = response.Results[0].Error
		}
		return fmt.Errorf("send push: all %d deliveries failed: %s", response.Failure, reason)
	}

	return nil
}
