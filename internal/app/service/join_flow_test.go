package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sifan077/InviteGate/internal/app/model"
	"github.com/sifan077/InviteGate/internal/app/repository"
	"github.com/sifan077/InviteGate/internal/infra/discord"
)

const (
	joinRedirect = "https://gate.example/callback/join"
	userID       = "80351110224678912"
	guildID      = "197038439483310086"
)

func abcMappingRepo() *mockMappingRepository {
	return &mockMappingRepository{
		getFn: func(ctx context.Context, customURL string) (*model.InviteMapping, error) {
			if customURL != "abc" {
				return nil, repository.ErrMappingNotFound
			}
			return &model.InviteMapping{CustomURL: "abc", DiscordInvite: "https://discord.gg/xyz123"}, nil
		},
	}
}

func happyDiscord() *fakeDiscord {
	return &fakeDiscord{
		user: &discord.User{ID: userID},
		invites: map[string]*discord.Invite{
			"xyz123": {Code: "xyz123", Guild: &discord.Guild{ID: guildID, Name: "Gophers"}},
		},
		added: true,
	}
}

func newFlow(repo repository.MappingRepository, d DiscordAPI, c CaptchaVerifier) *JoinFlow {
	return NewJoinFlow(JoinFlowDeps{
		Mappings:    repo,
		Discord:     d,
		Captcha:     c,
		RedirectURI: joinRedirect,
	})
}

func TestJoinFlow_Success(t *testing.T) {
	d := happyDiscord()
	captcha := &fakeCaptcha{ok: true}
	flow := newFlow(abcMappingRepo(), d, captcha)

	res, err := flow.Join(context.Background(), JoinRequest{Code: "one-time", State: "abc", CaptchaResponse: "token"})
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}

	want := []string{"exchange:one-time@" + joinRedirect, "user", "invite:xyz123", "member"}
	if !reflect.DeepEqual(d.calls, want) {
		t.Fatalf("unexpected call sequence:\n got %v\nwant %v", d.calls, want)
	}
	if d.memberGuild != guildID || d.memberUser != userID || d.memberToken != "user-token" {
		t.Fatalf("member-add called with %s/%s/%s", d.memberGuild, d.memberUser, d.memberToken)
	}
	if res.GuildID != guildID || res.UserID != userID || res.GuildName != "Gophers" || res.AlreadyMember {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(captcha.responses) != 1 || captcha.responses[0] != "token" {
		t.Fatalf("captcha not consulted with token: %v", captcha.responses)
	}
}

func TestJoinFlow_AlreadyMember(t *testing.T) {
	d := happyDiscord()
	d.added = false
	res, err := newFlow(abcMappingRepo(), d, &fakeCaptcha{ok: true}).
		Join(context.Background(), JoinRequest{Code: "c", State: "abc", CaptchaResponse: "t"})
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if !res.AlreadyMember {
		t.Fatal("expected AlreadyMember")
	}
}

func TestJoinFlow_CaptchaRejectedBeforeDiscord(t *testing.T) {
	d := happyDiscord()
	_, err := newFlow(abcMappingRepo(), d, &fakeCaptcha{ok: false}).
		Join(context.Background(), JoinRequest{Code: "one-time", State: "abc", CaptchaResponse: "bad"})
	if !errors.Is(err, ErrCaptchaRejected) {
		t.Fatalf("expected ErrCaptchaRejected, got %v", err)
	}
	if len(d.calls) != 0 {
		t.Fatalf("expected no Discord calls, got %v", d.calls)
	}
}

func TestJoinFlow_CaptchaTransportError(t *testing.T) {
	d := happyDiscord()
	_, err := newFlow(abcMappingRepo(), d, &fakeCaptcha{err: errors.New("timeout")}).
		Join(context.Background(), JoinRequest{Code: "one-time", State: "abc", CaptchaResponse: "t"})
	if !errors.Is(err, ErrCaptchaRejected) {
		t.Fatalf("expected ErrCaptchaRejected, got %v", err)
	}
	if len(d.calls) != 0 {
		t.Fatalf("expected no Discord calls, got %v", d.calls)
	}
}

func TestJoinFlow_UnknownMapping(t *testing.T) {
	d := happyDiscord()
	captcha := &fakeCaptcha{ok: true}
	_, err := newFlow(abcMappingRepo(), d, captcha).
		Join(context.Background(), JoinRequest{Code: "c", State: "nope", CaptchaResponse: "t"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(d.calls) != 0 || len(captcha.responses) != 0 {
		t.Fatalf("expected no upstream calls, got discord=%v captcha=%v", d.calls, captcha.responses)
	}
}

func TestJoinFlow_MalformedStateSkipsStore(t *testing.T) {
	repo := abcMappingRepo()
	_, err := newFlow(repo, happyDiscord(), nil).
		Join(context.Background(), JoinRequest{Code: "c", State: "../etc"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if repo.gets != 0 {
		t.Fatalf("expected no store lookup, got %d", repo.gets)
	}
}

func TestJoinFlow_UpstreamFailures(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(d *fakeDiscord)
		wantErr  error
		wantLast string
	}{
		{
			name:     "exchange rejected",
			mutate:   func(d *fakeDiscord) { d.exchangeErr = errors.New("invalid_grant") },
			wantErr:  ErrUpstreamAuth,
			wantLast: "exchange:c@" + joinRedirect,
		},
		{
			name:     "identity failed",
			mutate:   func(d *fakeDiscord) { d.userErr = errors.New("401") },
			wantErr:  ErrUpstreamAuth,
			wantLast: "user",
		},
		{
			name:     "invite unknown",
			mutate:   func(d *fakeDiscord) { d.invites = nil },
			wantErr:  ErrInvalidInvite,
			wantLast: "invite:xyz123",
		},
		{
			name:     "invite without guild",
			mutate:   func(d *fakeDiscord) { d.inviteErr = discord.ErrNoGuild },
			wantErr:  ErrInvalidInvite,
			wantLast: "invite:xyz123",
		},
		{
			name:     "member add denied",
			mutate:   func(d *fakeDiscord) { d.addErr = errors.New("403 Missing Permissions") },
			wantErr:  ErrJoinFailed,
			wantLast: "member",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := happyDiscord()
			tc.mutate(d)
			_, err := newFlow(abcMappingRepo(), d, &fakeCaptcha{ok: true}).
				Join(context.Background(), JoinRequest{Code: "c", State: "abc", CaptchaResponse: "t"})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got := d.calls[len(d.calls)-1]; got != tc.wantLast {
				t.Fatalf("flow continued past failing step: last call %q, want %q", got, tc.wantLast)
			}
		})
	}
}

func TestJoinFlow_MalformedStoredInvite(t *testing.T) {
	repo := &mockMappingRepository{
		getFn: func(ctx context.Context, customURL string) (*model.InviteMapping, error) {
			return &model.InviteMapping{CustomURL: customURL, DiscordInvite: "https://discord.gg/"}, nil
		},
	}
	d := happyDiscord()
	_, err := newFlow(repo, d, nil).Join(context.Background(), JoinRequest{Code: "c", State: "abc"})
	if !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("expected ErrInvalidInvite, got %v", err)
	}
	for _, call := range d.calls {
		if call == "member" || strings.HasPrefix(call, "invite:") {
			t.Fatalf("unexpected call %q", call)
		}
	}
}

func TestJoinFlow_MissingCode(t *testing.T) {
	d := happyDiscord()
	_, err := newFlow(abcMappingRepo(), d, &fakeCaptcha{ok: true}).
		Join(context.Background(), JoinRequest{State: "abc", CaptchaResponse: "t"})
	if !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth, got %v", err)
	}
	if len(d.calls) != 0 {
		t.Fatalf("expected no Discord calls, got %v", d.calls)
	}
}
