// Package discord talks to the Discord HTTP API on behalf of the service:
// OAuth2 code exchange with the application credentials, user lookups with a
// delegated bearer token, and bot-authenticated invite and member calls.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIBase = "https://discord.com/api/v10"

	ScopeIdentify   = "identify"
	ScopeEmail      = "email"
	ScopeGuildsJoin = "guilds.join"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

var (
	// ErrNotFound is matched by APIError values carrying a 404.
	ErrNotFound = errors.New("discord: resource not found")
	// ErrNoGuild is returned for invites that do not point at a guild (group DMs).
	ErrNoGuild = errors.New("discord: invite has no guild")
	// ErrInvalidID is returned when Discord hands back an id that is not a snowflake.
	ErrInvalidID = errors.New("discord: invalid snowflake id")
)

// APIError describes a non-success response from Discord.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Config carries application credentials and endpoints. Zero endpoints fall
// back to the public Discord API.
type Config struct {
	ClientID     string
	ClientSecret string
	BotToken     string
	APIBase      string
	AuthURL      string
	TokenURL     string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// User is the subset of /users/@me the service reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Guild is the guild an invite points at.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Invite is the subset of /invites/{code} the service reads.
type Invite struct {
	Code  string `json:"code"`
	Guild *Guild `json:"guild"`
}

// Client is safe for concurrent use.
type Client struct {
	oauth      oauth2.Config
	botToken   string
	apiBase    string
	timeout    time.Duration
	httpClient *http.Client
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = "https://discord.com/oauth2/authorize"
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = apiBase + "/oauth2/token"
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
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		botToken:   cfg.BotToken,
		apiBase:    apiBase,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the consent page URL for the given redirect and scopes.
func (c *Client) AuthCodeURL(state, redirectURI string, scopes ...string) string {
	conf := c.config(redirectURI, scopes)
	return conf.AuthCodeURL(state)
}

// Exchange trades a one-time authorization code for the user's access token.
// redirectURI must match the one used to build the consent URL.
func (c *Client) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conf := c.config(redirectURI, nil)
	token, err := conf.Exchange(c.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("discord: exchange code: %w", err)
	}
	return token, nil
}

// CurrentUser resolves the identity behind a delegated access token.
func (c *Client) CurrentUser(ctx context.Context, token *oauth2.Token) (*User, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client := oauth2.NewClient(c.clientContext(ctx), oauth2.StaticTokenSource(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/users/@me", nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := c.do(client, req, "fetch current user", http.StatusOK, &user); err != nil {
		return nil, err
	}
	if !validSnowflake(user.ID) {
		return nil, fmt.Errorf("%w: user %q", ErrInvalidID, user.ID)
	}
	return &user, nil
}

// ResolveInvite looks up the guild behind an invite code using the bot credential.
func (c *Client) ResolveInvite(ctx context.Context, code string) (*Invite, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/invites/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, err
	}

	var invite Invite
	if err := c.do(c.botClient(ctx), req, "resolve invite", http.StatusOK, &invite); err != nil {
		return nil, err
	}
	if invite.Guild == nil || invite.Guild.ID == "" {
		return nil, ErrNoGuild
	}
	if !validSnowflake(invite.Guild.ID) {
		return nil, fmt.Errorf("%w: guild %q", ErrInvalidID, invite.Guild.ID)
	}
	return &invite, nil
}

// AddGuildMember adds userID to guildID using the user's delegated access
// token. It reports false when the user already was a member.
func (c *Client) AddGuildMember(ctx context.Context, guildID, userID, accessToken string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return false, err
	}

	endpoint := fmt.Sprintf("%s/guilds/%s/members/%s", c.apiBase, url.PathEscape(guildID), url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.botClient(ctx).Do(req)
	if err != nil {
		return false, fmt.Errorf("discord: add guild member: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return true, nil
	case http.StatusNoContent:
		return false, nil
	default:
		return false, apiError("add guild member", resp)
	}
}

func (c *Client) config(redirectURI string, scopes []string) oauth2.Config {
	conf := c.oauth
	conf.RedirectURL = redirectURI
	conf.Scopes = scopes
	return conf
}

// botClient authenticates with "Authorization: Bot <token>".
func (c *Client) botClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(c.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.botToken,
		TokenType:   "Bot",
	}))
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) do(client *http.Client, req *http.Request, op string, want int, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return apiError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("discord: %s: decode: %w", op, err)
	}
	return nil
}

func apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func validSnowflake(id string) bool {
	parsed, err := snowflake.ParseString(id)
	return err == nil && parsed > 0
}
