// Package notify delivers verification codes to users.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"anivault/internal/observability"
)

const (
	resendEndpoint       = "https://api.resend.com/emails"
	verificationSubject  = "Verify Your Email - AniVault"
	defaultResendTimeout = 10 * time.Second
)

type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

type ResendNotifier struct {
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

func NewResendNotifier(apiKey, fromEmail, fromName string) *ResendNotifier {
	return &ResendNotifier{
		apiKey:   strings.TrimSpace(apiKey),
		from:     fmt.Sprintf("%s <%s>", fromName, fromEmail),
		endpoint: resendEndpoint,
		httpClient: &http.Client{
			Timeout: defaultResendTimeout,
		},
	}
}

func (n *ResendNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	payload, err := json.Marshal(resendRequest{
		From:    n.from,
		To:      []string{email},
		Subject: verificationSubject,
		Text:    verificationText(code),
	})
	if err != nil {
		return fmt.Errorf("encode resend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("resend responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// LogNotifier writes codes to the log instead of sending them. Development only.
type LogNotifier struct {
	logger *observability.Logger
}

func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.logger.Info("verification_code_issued", map[string]any{
		"email": email,
		"code":  code,
	})
	return nil
}

func verificationText(code string) string {
	return "Your AniVault verification code is: " + code + "\n\n" +
		"This code will expire in 10 minutes.\n\n" +
		"If you didn't create an account, please ignore this email."
}
