package service

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/InviteGate/internal/app/model"
	"github.com/sifan077/InviteGate/internal/app/repository"
	"github.com/sifan077/InviteGate/internal/infra/discord"
	"golang.org/x/oauth2"
)

type mockMappingRepository struct {
	createFn   func(ctx context.Context, m *model.InviteMapping, limit int) error
	getFn      func(ctx context.Context, customURL string) (*model.InviteMapping, error)
	listFn     func(ctx context.Context, ownerID string) ([]model.InviteMapping, error)
	deleteFn   func(ctx context.Context, customURL, ownerID string) error
	listURLsFn func(ctx context.Context) ([]string, error)
	gets       int
}

func (m *mockMappingRepository) CreateWithinLimit(ctx context.Context, mapping *model.InviteMapping, limit int) error {
	if m.createFn != nil {
		return m.createFn(ctx, mapping, limit)
	}
	return nil
}

func (m *mockMappingRepository) GetByCustomURL(ctx context.Context, customURL string) (*model.InviteMapping, error) {
	m.gets++
	if m.getFn != nil {
		return m.getFn(ctx, customURL)
	}
	return nil, repository.ErrMappingNotFound
}

func (m *mockMappingRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.InviteMapping, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockMappingRepository) DeleteOwned(ctx context.Context, customURL, ownerID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, customURL, ownerID)
	}
	return nil
}

func (m *mockMappingRepository) ListCustomURLs(ctx context.Context) ([]string, error) {
	if m.listURLsFn != nil {
		return m.listURLsFn(ctx)
	}
	return nil, nil
}

type mockAccountRepository struct {
	upsertFn   func(ctx context.Context, discordID string, email *string) (*model.Account, error)
	getFn      func(ctx context.Context, discordID string) (*model.Account, error)
	searchFn   func(ctx context.Context, query string, limit int) ([]model.Account, error)
	increaseFn func(ctx context.Context, discordID string, step int) (*model.Account, error)
	decreaseFn func(ctx context.Context, discordID string, step int) (*model.Account, error)
}

func (m *mockAccountRepository) Upsert(ctx context.Context, discordID string, email *string) (*model.Account, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, discordID, email)
	}
	return &model.Account{DiscordID: discordID, Email: email, InviteLimit: model.DefaultInviteLimit}, nil
}

func (m *mockAccountRepository) GetByDiscordID(ctx context.Context, discordID string) (*model.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx, discordID)
	}
	return nil, repository.ErrAccountNotFound
}

func (m *mockAccountRepository) Search(ctx context.Context, query string, limit int) ([]model.Account, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockAccountRepository) IncreaseLimit(ctx context.Context, discordID string, step int) (*model.Account, error) {
	if m.increaseFn != nil {
		return m.increaseFn(ctx, discordID, step)
	}
	return nil, repository.ErrAccountNotFound
}

func (m *mockAccountRepository) DecreaseLimit(ctx context.Context, discordID string, step int) (*model.Account, error) {
	if m.decreaseFn != nil {
		return m.decreaseFn(ctx, discordID, step)
	}
	return nil, repository.ErrAccountNotFound
}

type fakeCaptcha struct {
	ok        bool
	err       error
	responses []string
}

func (f *fakeCaptcha) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	f.responses = append(f.responses, response)
	return f.ok, f.err
}

// fakeDiscord records every call so tests can assert ordering and absence.
type fakeDiscord struct {
	calls []string

	exchangeErr error
	user        *discord.User
	userErr     error
	invites     map[string]*discord.Invite
	inviteErr   error
	addErr      error
	added       bool

	memberGuild string
	memberUser  string
	memberToken string
}

func (f *fakeDiscord) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	f.calls = append(f.calls, "exchange:"+code+"@"+redirectURI)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "user-token", TokenType: "Bearer"}, nil
}

func (f *fakeDiscord) CurrentUser(ctx context.Context, token *oauth2.Token) (*discord.User, error) {
	f.calls = append(f.calls, "user")
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func (f *fakeDiscord) ResolveInvite(ctx context.Context, code string) (*discord.Invite, error) {
	f.calls = append(f.calls, "invite:"+code)
	if f.inviteErr != nil {
		return nil, f.inviteErr
	}
	inv, ok := f.invites[code]
	if !ok {
		return nil, discord.ErrNotFound
	}
	return inv, nil
}

func (f *fakeDiscord) AddGuildMember(ctx context.Context, guildID, userID, accessToken string) (bool, error) {
	f.calls = append(f.calls, "member")
	f.memberGuild, f.memberUser, f.memberToken = guildID, userID, accessToken
	if f.addErr != nil {
		return false, f.addErr
	}
	return f.added, nil
}

// sharedMappings backs several repositories with one map, standing in for a
// store shared by more than one instance.
type sharedMappings struct {
	mu   sync.Mutex
	urls map[string]string
}

func newSharedMappings() *sharedMappings {
	return &sharedMappings{urls: make(map[string]string)}
}

func (s *sharedMappings) insert(customURL, invite string) {
	s.mu.Lock()
	s.urls[customURL] = invite
	s.mu.Unlock()
}

func (s *sharedMappings) repo() *mockMappingRepository {
	return &mockMappingRepository{
		createFn: func(ctx context.Context, m *model.InviteMapping, limit int) error {
			s.insert(m.CustomURL, m.DiscordInvite)
			return nil
		},
		getFn: func(ctx context.Context, customURL string) (*model.InviteMapping, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			invite, ok := s.urls[customURL]
			if !ok {
				return nil, repository.ErrMappingNotFound
			}
			return &model.InviteMapping{CustomURL: customURL, DiscordInvite: invite}, nil
		},
		listURLsFn: func(ctx context.Context) ([]string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			urls := make([]string, 0, len(s.urls))
			for u := range s.urls {
				urls = append(urls, u)
			}
			return urls, nil
		},
	}
}

// fakeBus delivers published messages synchronously to every subscriber.
type fakeBus struct {
	mu       sync.Mutex
	handlers []nats.MsgHandler
	publish  error
}

func (b *fakeBus) Publish(subj string, data []byte) error {
	if b.publish != nil {
		return b.publish
	}
	b.mu.Lock()
	handlers := append([]nats.MsgHandler(nil), b.handlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(&nats.Msg{Subject: subj, Data: data})
	}
	return nil
}

func (b *fakeBus) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	b.mu.Lock()
	b.handlers = append(b.handlers, cb)
	b.mu.Unlock()
	return nil, nil
}
