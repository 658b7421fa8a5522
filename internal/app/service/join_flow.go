package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifan077/InviteGate/internal/app/model"
	"github.com/sifan077/InviteGate/internal/app/repository"
	"github.com/sifan077/InviteGate/internal/infra/discord"
	infraPrometheus "github.com/sifan077/InviteGate/internal/infra/prometheus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DiscordAPI is the slice of the Discord client the join flow drives.
type DiscordAPI interface {
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
	CurrentUser(ctx context.Context, token *oauth2.Token) (*discord.User, error)
	ResolveInvite(ctx context.Context, code string) (*discord.Invite, error)
	AddGuildMember(ctx context.Context, guildID, userID, accessToken string) (bool, error)
}

// JoinRequest is one redemption of a vanity invite.
type JoinRequest struct {
	// Code is the one-time authorization code from the join callback.
	Code string
	// State is the custom URL echoed back by Discord.
	State           string
	CaptchaResponse string
	RemoteIP        string
}

// JoinResult describes a successful join.
type JoinResult struct {
	CustomURL     string
	UserID        string
	GuildID       string
	GuildName     string
	AlreadyMember bool
}

// JoinFlowDeps groups dependencies required by the join flow.
type JoinFlowDeps struct {
	Logger      *zap.Logger
	Mappings    repository.MappingRepository
	Discord     DiscordAPI
	Captcha     CaptchaVerifier
	Audit       *AuditPublisher
	RedirectURI string
}

// JoinFlow turns an authorization code plus a custom URL into guild membership.
// Every step is a single attempt; the first failure ends the flow.
type JoinFlow struct {
	logger      *zap.Logger
	mappings    repository.MappingRepository
	discord     DiscordAPI
	captcha     CaptchaVerifier
	audit       *AuditPublisher
	redirectURI string
}

func NewJoinFlow(deps JoinFlowDeps) *JoinFlow {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JoinFlow{
		logger:      logger,
		mappings:    deps.Mappings,
		discord:     deps.Discord,
		captcha:     deps.Captcha,
		audit:       deps.Audit,
		redirectURI: deps.RedirectURI,
	}
}

// Join runs the flow. The mapping lookup and CAPTCHA check happen before any
// Discord call, so a rejected CAPTCHA leaves the authorization code unused.
func (f *JoinFlow) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	result, err := f.join(ctx, req)

	infraPrometheus.JoinAttempts.WithLabelValues(Outcome(err)).Inc()
	actor, detail := "", ""
	if result != nil {
		actor = result.UserID
		detail = "guild=" + result.GuildID
	}
	f.audit.Publish(model.AuditKindJoin, req.State, actor, err, detail)

	if err != nil {
		f.logger.Warn("join flow failed",
			zap.String("custom_url", req.State),
			zap.String("outcome", Outcome(err)),
			zap.Error(err),
		)
		return nil, err
	}

	f.logger.Info("user joined guild",
		zap.String("custom_url", result.CustomURL),
		zap.String("user_id", result.UserID),
		zap.String("guild_id", result.GuildID),
		zap.Bool("already_member", result.AlreadyMember),
	)
	return result, nil
}

func (f *JoinFlow) join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("join: missing authorization code: %w", ErrUpstreamAuth)
	}
	if !ValidCustomURL(req.State) {
		return nil, fmt.Errorf("join: state %q: %w", req.State, ErrNotFound)
	}

	mapping, err := f.mappings.GetByCustomURL(ctx, req.State)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return nil, fmt.Errorf("join: mapping %q: %w", req.State, ErrNotFound)
		}
		return nil, storeError("join: lookup mapping", err)
	}

	if f.captcha != nil {
		ok, err := f.captcha.Verify(ctx, req.CaptchaResponse, req.RemoteIP)
		if err != nil {
			return nil, fmt.Errorf("join: %w: %v", ErrCaptchaRejected, err)
		}
		if !ok {
			return nil, fmt.Errorf("join: %w", ErrCaptchaRejected)
		}
	}

	token, err := f.discord.Exchange(ctx, req.Code, f.redirectURI)
	if err != nil {
		return nil, fmt.Errorf("join: exchange code: %w: %v", ErrUpstreamAuth, err)
	}

	user, err := f.discord.CurrentUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("join: resolve identity: %w: %v", ErrUpstreamAuth, err)
	}

	code, ok := InviteCode(mapping.DiscordInvite)
	if !ok {
		return nil, fmt.Errorf("join: stored invite %q: %w", mapping.DiscordInvite, ErrInvalidInvite)
	}

	invite, err := f.discord.ResolveInvite(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("join: resolve invite %q: %w: %v", code, ErrInvalidInvite, err)
	}

	added, err := f.discord.AddGuildMember(ctx, invite.Guild.ID, user.ID, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("join: add member: %w: %v", ErrJoinFailed, err)
	}

	return &JoinResult{
		CustomURL:     mapping.CustomURL,
		UserID:        user.ID,
		GuildID:       invite.Guild.ID,
		GuildName:     invite.Guild.Name,
		AlreadyMember: !added,
	}, nil
}
