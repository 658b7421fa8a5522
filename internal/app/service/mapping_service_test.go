package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sifan077/InviteGate/internal/app/model"
	"github.com/sifan077/InviteGate/internal/app/repository"
)

const ownerID = "80351110224678912"

func ownerAccounts(limit int) *mockAccountRepository {
	return &mockAccountRepository{
		getFn: func(ctx context.Context, discordID string) (*model.Account, error) {
			if discordID != ownerID {
				return nil, repository.ErrAccountNotFound
			}
			return &model.Account{DiscordID: ownerID, InviteLimit: limit}, nil
		},
	}
}

func TestMappingService_CreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		custom string
		invite string
	}{
		{"custom url with slash", "a/b", "https://discord.gg/xyz123"},
		{"custom url with space", "my link", "https://discord.gg/xyz123"},
		{"empty custom url", "", "https://discord.gg/xyz123"},
		{"http invite", "abc", "http://discord.gg/xyz123"},
		{"foreign host", "abc", "https://example.com/xyz123"},
		{"invite without code", "abc", "https://discord.gg/"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inserted := false
			repo := &mockMappingRepository{
				createFn: func(ctx context.Context, m *model.InviteMapping, limit int) error {
					inserted = true
					return nil
				},
			}
			svc := NewMappingService(MappingDeps{Mappings: repo, Accounts: ownerAccounts(5)})

			_, err := svc.Create(context.Background(), CreateMappingInput{
				OwnerID: ownerID, CustomURL: tc.custom, DiscordInvite: tc.invite,
			})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if inserted {
				t.Fatal("mapping inserted despite validation failure")
			}
		})
	}
}

func TestMappingService_CreateTrimsInvite(t *testing.T) {
	var stored *model.InviteMapping
	repo := &mockMappingRepository{
		createFn: func(ctx context.Context, m *model.InviteMapping, limit int) error {
			stored = m
			if limit != 5 {
				t.Fatalf("expected limit 5, got %d", limit)
			}
			return nil
		},
	}
	svc := NewMappingService(MappingDeps{Mappings: repo, Accounts: ownerAccounts(5)})

	m, err := svc.Create(context.Background(), CreateMappingInput{
		OwnerID: ownerID, CustomURL: "abc", DiscordInvite: "  https://discord.gg/xyz123\n",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if stored == nil || stored.DiscordInvite != "https://discord.gg/xyz123" {
		t.Fatalf("unexpected stored mapping %+v", stored)
	}
	if m.OwnerID == nil || *m.OwnerID != ownerID {
		t.Fatalf("owner not recorded: %+v", m)
	}
}

func TestMappingService_CreateErrors(t *testing.T) {
	cases := []struct {
		name    string
		repoErr error
		wantErr error
	}{
		{"duplicate", repository.ErrMappingExists, ErrConflict},
		{"limit", repository.ErrLimitReached, ErrLimitExceeded},
		{"store", errors.New("disk full"), ErrStore},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockMappingRepository{
				createFn: func(ctx context.Context, m *model.InviteMapping, limit int) error {
					return tc.repoErr
				},
			}
			svc := NewMappingService(MappingDeps{Mappings: repo, Accounts: ownerAccounts(5)})

			_, err := svc.Create(context.Background(), CreateMappingInput{
				OwnerID: ownerID, CustomURL: "abc", DiscordInvite: "https://discord.gg/xyz123",
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestMappingService_CreateUnknownOwner(t *testing.T) {
	svc := NewMappingService(MappingDeps{Mappings: &mockMappingRepository{}, Accounts: ownerAccounts(5)})
	_, err := svc.Create(context.Background(), CreateMappingInput{
		OwnerID: "1", CustomURL: "abc", DiscordInvite: "https://discord.gg/xyz123",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMappingService_CreateCaptchaRejected(t *testing.T) {
	inserted := false
	repo := &mockMappingRepository{
		createFn: func(ctx context.Context, m *model.InviteMapping, limit int) error {
			inserted = true
			return nil
		},
	}
	captcha := &fakeCaptcha{ok: false}
	svc := NewMappingService(MappingDeps{Mappings: repo, Accounts: ownerAccounts(5), Captcha: captcha})

	_, err := svc.Create(context.Background(), CreateMappingInput{
		OwnerID: ownerID, CustomURL: "abc", DiscordInvite: "https://discord.gg/xyz123", CaptchaResponse: "tok",
	})
	if !errors.Is(err, ErrCaptchaRejected) {
		t.Fatalf("expected ErrCaptchaRejected, got %v", err)
	}
	if inserted {
		t.Fatal("mapping inserted despite captcha rejection")
	}
}

func TestMappingService_ListOwnedRemaining(t *testing.T) {
	repo := &mockMappingRepository{
		listFn: func(ctx context.Context, owner string) ([]model.InviteMapping, error) {
			return []model.InviteMapping{{CustomURL: "a"}, {CustomURL: "b"}}, nil
		},
	}
	svc := NewMappingService(MappingDeps{Mappings: repo, Accounts: ownerAccounts(5)})

	owned, err := svc.ListOwned(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("ListOwned returned error: %v", err)
	}
	if got := owned.Remaining(); got != 3 {
		t.Fatalf("expected 3 remaining, got %d", got)
	}

	lowered := &OwnedMappings{Account: &model.Account{InviteLimit: 0}, Mappings: owned.Mappings}
	if got := lowered.Remaining(); got != 0 {
		t.Fatalf("expected 0 remaining after limit drop, got %d", got)
	}
}

func TestMappingService_DeleteNotOwned(t *testing.T) {
	repo := &mockMappingRepository{
		deleteFn: func(ctx context.Context, customURL, owner string) error {
			return repository.ErrMappingNotFound
		},
	}
	svc := NewMappingService(MappingDeps{Mappings: repo, Accounts: ownerAccounts(5)})

	if err := svc.Delete(context.Background(), ownerID, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMappingService_ExistsUsesFilter(t *testing.T) {
	repo := &mockMappingRepository{
		getFn: func(ctx context.Context, customURL string) (*model.InviteMapping, error) {
			if customURL == "abc" {
				return &model.InviteMapping{CustomURL: "abc"}, nil
			}
			return nil, repository.ErrMappingNotFound
		},
		listURLsFn: func(ctx context.Context) ([]string, error) {
			return []string{"abc"}, nil
		},
	}
	svc := NewMappingService(MappingDeps{Mappings: repo, Accounts: ownerAccounts(5), TrustFilterMisses: true})
	ctx := context.Background()

	// Before the first rebuild the store is consulted.
	if ok, err := svc.Exists(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing=false, got %v %v", ok, err)
	}
	if repo.gets != 1 {
		t.Fatalf("expected store lookup before rebuild, got %d", repo.gets)
	}

	if err := svc.RebuildFilter(ctx); err != nil {
		t.Fatalf("RebuildFilter returned error: %v", err)
	}
	repo.gets = 0

	if ok, err := svc.Exists(ctx, "abc"); err != nil || !ok {
		t.Fatalf("expected abc=true, got %v %v", ok, err)
	}
	if ok, err := svc.Exists(ctx, "definitely-not-there"); err != nil || ok {
		t.Fatalf("expected false, got %v %v", ok, err)
	}
	if ok, _ := svc.Exists(ctx, "../x"); ok {
		t.Fatal("malformed url reported as existing")
	}
	if repo.gets != 1 {
		t.Fatalf("expected exactly one store lookup after rebuild, got %d", repo.gets)
	}
}

func TestMappingService_CreateAddsToFilter(t *testing.T) {
	repo := &mockMappingRepository{
		getFn: func(ctx context.Context, customURL string) (*model.InviteMapping, error) {
			return &model.InviteMapping{CustomURL: customURL}, nil
		},
	}
	svc := NewMappingService(MappingDeps{Mappings: repo, Accounts: ownerAccounts(5)})
	ctx := context.Background()

	if err := svc.RebuildFilter(ctx); err != nil {
		t.Fatalf("RebuildFilter returned error: %v", err)
	}
	if _, err := svc.Create(ctx, CreateMappingInput{
		OwnerID: ownerID, CustomURL: "fresh", DiscordInvite: "https://discord.gg/xyz123",
	}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if ok, err := svc.Exists(ctx, "fresh"); err != nil || !ok {
		t.Fatalf("expected new url to exist, got %v %v", ok, err)
	}
}

func TestURLFilter_AddDuringRebuildSurvives(t *testing.T) {
	f := newURLFilter()
	f.BeginRebuild()
	f.Add("late")
	f.Rebuild([]string{"early"})

	if !f.MayContain("late") || !f.MayContain("early") {
		t.Fatal("filter lost urls across rebuild")
	}
}

func TestMappingService_ExistsSeesOtherWriters(t *testing.T) {
	store := newSharedMappings()
	store.insert("abc", "https://discord.gg/xyz123")
	ctx := context.Background()

	repoA := store.repo()
	a := NewMappingService(MappingDeps{Mappings: repoA, Accounts: ownerAccounts(5)})
	b := NewMappingService(MappingDeps{Mappings: store.repo(), Accounts: ownerAccounts(5)})
	for _, svc := range []MappingService{a, b} {
		if err := svc.RebuildFilter(ctx); err != nil {
			t.Fatalf("RebuildFilter returned error: %v", err)
		}
	}

	if _, err := b.Create(ctx, CreateMappingInput{
		OwnerID: ownerID, CustomURL: "fresh", DiscordInvite: "https://discord.gg/xyz123",
	}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if ok, err := a.Exists(ctx, "fresh"); err != nil || !ok {
		t.Fatalf("mapping created by another instance: got %v %v", ok, err)
	}

	store.insert("outside", "https://discord.gg/xyz123")
	if ok, err := a.Exists(ctx, "outside"); err != nil || !ok {
		t.Fatalf("mapping written outside the service: got %v %v", ok, err)
	}

	// Once found, the url is in the filter.
	repoA.gets = 0
	if ok, _ := a.Exists(ctx, "outside"); !ok || repoA.gets != 1 {
		t.Fatalf("expected one confirming lookup, got ok=%v gets=%d", ok, repoA.gets)
	}
	if ok, err := a.Exists(ctx, "never"); err != nil || ok {
		t.Fatalf("expected never=false, got %v %v", ok, err)
	}
}

func TestMappingService_SyncedFiltersTrustMisses(t *testing.T) {
	store := newSharedMappings()
	bus := &fakeBus{}
	ctx := context.Background()

	newInstance := func() (MappingService, *mockMappingRepository) {
		repo := store.repo()
		svc := NewMappingService(MappingDeps{
			Mappings:          repo,
			Accounts:          ownerAccounts(5),
			Sync:              NewFilterSync(bus, nil),
			TrustFilterMisses: true,
		})
		if err := svc.RebuildFilter(ctx); err != nil {
			t.Fatalf("RebuildFilter returned error: %v", err)
		}
		return svc, repo
	}
	a, repoA := newInstance()
	b, _ := newInstance()
	if err := NewFilterSync(bus, nil).Start(a.Learn); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if _, err := b.Create(ctx, CreateMappingInput{
		OwnerID: ownerID, CustomURL: "fresh", DiscordInvite: "https://discord.gg/xyz123",
	}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if ok, err := a.Exists(ctx, "fresh"); err != nil || !ok {
		t.Fatalf("announced mapping: got %v %v", ok, err)
	}

	repoA.gets = 0
	if ok, _ := a.Exists(ctx, "unknown"); ok || repoA.gets != 0 {
		t.Fatalf("trusted miss went to the store: ok=%v gets=%d", ok, repoA.gets)
	}
}
