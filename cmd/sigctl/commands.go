package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgwebhooks "github.com/altovisual/artist-management/pkg/webhooks"
	"github.com/spf13/cobra"
)

func newWebhookCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{Use: "webhook", Short: "Deliver signing provider webhooks"}

	var secret, scheme, correlation, event string
	send := &cobra.Command{
		Use:   "send",
		Short: "Send one signature event to the reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := summary{Command: "webhook send", Correlation: correlation, Event: event}
			if strings.TrimSpace(correlation) == "" || strings.TrimSpace(event) == "" {
				return report(out, s, errors.New("both --correlation and --event are required"))
			}
			baseURL, timeout := commonFlags(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			body, _ := json.Marshal(map[string]string{"correlation": correlation, "event": event})
			code, err := sendWebhook(ctx, http.DefaultClient, baseURL, scheme, secret, body)
			s.HTTPStatus = code
			return report(out, s, err)
		},
	}
	send.Flags().StringVar(&secret, "secret", "", "webhook shared secret")
	send.Flags().StringVar(&scheme, "scheme", pkgwebhooks.SchemeBearer, "auth scheme: bearer or hmac-sha256")
	send.Flags().StringVar(&correlation, "correlation", "", "signature request id")
	send.Flags().StringVar(&event, "event", "", "provider event code, e.g. completed")
	cmd.AddCommand(send)
	return cmd
}

func newContractCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{Use: "contract", Short: "Inspect contracts"}

	var token string
	status := &cobra.Command{
		Use:   "status <contract_id>",
		Short: "Print the derived status of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := summary{Command: "contract status", ContractID: args[0]}
			baseURL, timeout := commonFlags(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			code, derived, err := fetchStatus(ctx, http.DefaultClient, baseURL, token, args[0])
			s.HTTPStatus = code
			s.Derived = derived
			return report(out, s, err)
		},
	}
	status.Flags().StringVar(&token, "token", "", "bearer token carrying the required role")
	cmd.AddCommand(status)
	return cmd
}

func commonFlags(cmd *cobra.Command) (string, time.Duration) {
	baseURL, _ := cmd.Flags().GetString("url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return strings.TrimRight(baseURL, "/"), timeout
}

func sendWebhook(ctx context.Context, client *http.Client, baseURL, scheme, secret string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/webhooks/signature-provider", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch strings.ToLower(scheme) {
	case pkgwebhooks.SchemeHMACSHA256:
		req.Header.Set("X-Signature", "sha256="+hex.EncodeToString(pkgwebhooks.SignBody(secret, body)))
	default:
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK || !out.Success {
		return resp.StatusCode, fmt.Errorf("webhook rejected: %s %s", out.Error.Code, out.Error.Message)
	}
	return resp.StatusCode, nil
}

func fetchStatus(ctx context.Context, client *http.Client, baseURL, token, contractID string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/contracts/"+contractID+"/status", nil)
	if err != nil {
		return 0, "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var out struct {
		Status string `json:"status"`
		Error  struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, "", fmt.Errorf("status lookup failed: %s %s", out.Error.Code, out.Error.Message)
	}
	return resp.StatusCode, out.Status, nil
}
