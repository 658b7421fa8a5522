package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultVerifyURL = "https://hcaptcha.com/siteverify"

	// FormField is the form field the hCaptcha widget submits.
	FormField = "h-captcha-response"

	defaultTimeout = 10 * time.Second
)

type Config struct {
	Secret     string
	SiteKey    string
	VerifyURL  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Result mirrors the siteverify response body.
type Result struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Client verifies hCaptcha response tokens.
type Client struct {
	secret     string
	siteKey    string
	verifyURL  string
	timeout    time.Duration
	httpClient *http.Client
}

func New(cfg Config) *Client {
	verifyURL := cfg.VerifyURL
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		secret:     cfg.Secret,
		siteKey:    cfg.SiteKey,
		verifyURL:  verifyURL,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// SiteKey is rendered into the widget markup.
func (c *Client) SiteKey() string {
	return c.siteKey
}

// Verify posts the response token to siteverify and reports the success flag.
// An empty token is rejected locally.
func (c *Client) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	res, err := c.VerifyResult(ctx, response, remoteIP)
	if err != nil {
		return false, err
	}
	return res.Success, nil
}

func (c *Client) VerifyResult(ctx context.Context, response, remoteIP string) (*Result, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return &Result{ErrorCodes: []string{"missing-input-response"}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{
		"secret":   {c.secret},
		"response": {response},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	if c.siteKey != "" {
		form.Set("sitekey", c.siteKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("captcha: siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("captcha: siteverify: unexpected status %d", resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("captcha: decode siteverify response: %w", err)
	}
	return &res, nil
}
