// Package mailer sends transactional email through a Postmark-compatible
// HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tokenHeader = "X-Postmark-Server-Token"

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

type postmarkRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
	HtmlBody string `json:"HtmlBody"`
}

// Client posts messages to <baseURL>/email.
type Client struct {
	http     *http.Client
	endpoint string
	sender   string
	token    string
}

// NewClient returns a client for the provider at baseURL. Every request is
// bounded by timeout.
func NewClient(baseURL, sender, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mailer: invalid base url %q", baseURL)
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		endpoint: u.JoinPath("email").String(),
		sender:   sender,
		token:    token,
	}, nil
}

// Send delivers msg. Any non-2xx response is an error.
func (c *Client) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(postmarkRequest{
		From:     c.sender,
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.TextBody,
		HtmlBody: msg.HTMLBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send email: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// VerificationLink builds <baseURL>/auth/verify?token=<token>.
func VerificationLink(baseURL string, token uuid.UUID) string {
	return strings.TrimRight(baseURL, "/") + "/auth/verify?token=" + token.String()
}

// VerificationMessage is the email sent after signup.
func VerificationMessage(to, link string) Message {
	return Message{
		To:       to,
		Subject:  "Account verification",
		TextBody: "Confirm your email address by opening this link: " + link,
		HTMLBody: fmt.Sprintf(`<p>Confirm your email address:</p><p><a href="%[1]s">%[1]s</a></p>`, html.EscapeString(link)),
	}
}
