// Package esignclient talks to the external e-signature provider.
package esignclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type createRequest struct {
	ContractID  string `json:"contract_id"`
	SignerEmail string `json:"signer_email"`
}

// CreateSignatureRequest opens a signing session for one signer and returns
// the provider's signature request id, which later arrives on webhooks.
func (c *Client) CreateSignatureRequest(ctx context.Context, contractID int64, signerEmail string) (string, error) {
	reqBody, err := json.Marshal(createRequest{
		ContractID:  strconv.FormatInt(contractID, 10),
		SignerEmail: signerEmail,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/signature_requests", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("esign provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out struct {
		SignatureRequestID string `json:"signature_request_id"`
		ID                 string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode esign response: %w", err)
	}
	id := strings.TrimSpace(out.SignatureRequestID)
	if id == "" {
		id = strings.TrimSpace(out.ID)
	}
	if id == "" {
		return "", errors.New("esign provider returned no signature request id")
	}
	return id, nil
}
