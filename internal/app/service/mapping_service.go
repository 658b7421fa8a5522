package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifan077/InviteGate/internal/app/model"
	"github.com/sifan077/InviteGate/internal/app/repository"
	infraPrometheus "github.com/sifan077/InviteGate/internal/infra/prometheus"
	"go.uber.org/zap"
)

// CaptchaVerifier checks a CAPTCHA response token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

// MappingService defines behaviour-level operations on invite mappings.
type MappingService interface {
	Create(ctx context.Context, input CreateMappingInput) (*model.InviteMapping, error)
	ListOwned(ctx context.Context, ownerID string) (*OwnedMappings, error)
	Delete(ctx context.Context, ownerID, customURL string) error
	// Exists reports whether a mapping for customURL is stored.
	Exists(ctx context.Context, customURL string) (bool, error)
	RebuildFilter(ctx context.Context) error
	// Learn records a custom URL created elsewhere in the filter.
	Learn(customURL string)
}

// CreateMappingInput captures data required to create a mapping.
type CreateMappingInput struct {
	OwnerID         string
	CustomURL       string
	DiscordInvite   string
	CaptchaResponse string
	RemoteIP        string
}

// OwnedMappings is what the manage page shows.
type OwnedMappings struct {
	Account  *model.Account
	Mappings []model.InviteMapping
}

// Remaining is the number of mappings the owner can still create.
func (o *OwnedMappings) Remaining() int {
	if o.Account == nil {
		return 0
	}
	if left := o.Account.InviteLimit - len(o.Mappings); left > 0 {
		return left
	}
	return 0
}

// MappingDeps groups dependencies required by the mapping service.
type MappingDeps struct {
	Logger   *zap.Logger
	Mappings repository.MappingRepository
	Accounts repository.AccountRepository
	Captcha  CaptchaVerifier
	Audit    *AuditPublisher
	Sync     *FilterSync
	// TrustFilterMisses lets Exists answer false from the filter alone. Only
	// safe when every write goes through an instance reachable by Sync.
	TrustFilterMisses bool
}

type mappingService struct {
	logger   *zap.Logger
	mappings repository.MappingRepository
	accounts repository.AccountRepository
	captcha  CaptchaVerifier
	audit    *AuditPublisher
	sync     *FilterSync
	filter   *urlFilter

	trustMisses bool
}

// NewMappingService returns a service implementation backed by the given repositories.
func NewMappingService(deps MappingDeps) MappingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &mappingService{
		logger:   logger,
		mappings: deps.Mappings,
		accounts: deps.Accounts,
		captcha:  deps.Captcha,
		audit:    deps.Audit,
		sync:     deps.Sync,
		filter:   newURLFilter(),

		trustMisses: deps.TrustFilterMisses,
	}
}

func (s *mappingService) Create(ctx context.Context, input CreateMappingInput) (*model.InviteMapping, error) {
	m, err := s.create(ctx, input)
	s.audit.Publish(model.AuditKindMappingCreate, input.CustomURL, input.OwnerID, err, "")
	return m, err
}

func (s *mappingService) create(ctx context.Context, input CreateMappingInput) (*model.InviteMapping, error) {
	if s.captcha != nil {
		ok, err := s.captcha.Verify(ctx, input.CaptchaResponse, input.RemoteIP)
		if err != nil {
			return nil, fmt.Errorf("create mapping: %w: %v", ErrCaptchaRejected, err)
		}
		if !ok {
			return nil, fmt.Errorf("create mapping: %w", ErrCaptchaRejected)
		}
	}

	invite := NormalizeInvite(input.DiscordInvite)
	if !ValidCustomURL(input.CustomURL) {
		return nil, ErrInvalidCustomURL
	}
	if !ValidDiscordInvite(invite) {
		return nil, ErrInvalidInviteURL
	}

	account, err := s.accounts.GetByDiscordID(ctx, input.OwnerID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("create mapping: account %s: %w", input.OwnerID, ErrNotFound)
		}
		return nil, storeError("create mapping: load account", err)
	}

	owner := input.OwnerID
	m := &model.InviteMapping{
		CustomURL:     input.CustomURL,
		DiscordInvite: invite,
		OwnerID:       &owner,
	}

	if err := s.mappings.CreateWithinLimit(ctx, m, account.InviteLimit); err != nil {
		switch {
		case errors.Is(err, repository.ErrLimitReached):
			return nil, fmt.Errorf("create mapping: %w", ErrLimitExceeded)
		case errors.Is(err, repository.ErrMappingExists):
			return nil, fmt.Errorf("create mapping %q: %w", input.CustomURL, ErrConflict)
		default:
			return nil, storeError("create mapping", err)
		}
	}

	s.filter.Add(m.CustomURL)
	s.sync.Announce(m.CustomURL)
	infraPrometheus.MappingsCreated.Inc()
	s.logger.Info("mapping created",
		zap.String("custom_url", m.CustomURL),
		zap.String("owner", owner),
	)
	return m, nil
}

func (s *mappingService) ListOwned(ctx context.Context, ownerID string) (*OwnedMappings, error) {
	account, err := s.accounts.GetByDiscordID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("list mappings: account %s: %w", ownerID, ErrNotFound)
		}
		return nil, storeError("list mappings: load account", err)
	}

	mappings, err := s.mappings.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeError("list mappings", err)
	}
	return &OwnedMappings{Account: account, Mappings: mappings}, nil
}

func (s *mappingService) Delete(ctx context.Context, ownerID, customURL string) error {
	err := s.mappings.DeleteOwned(ctx, customURL, ownerID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrMappingNotFound):
		err = fmt.Errorf("delete mapping %q: %w", customURL, ErrNotFound)
	default:
		err = storeError("delete mapping", err)
	}
	s.audit.Publish(model.AuditKindMappingDelete, customURL, ownerID, err, "")
	return err
}

func (s *mappingService) Exists(ctx context.Context, customURL string) (bool, error) {
	if !ValidCustomURL(customURL) {
		return false, nil
	}
	known := s.filter.MayContain(customURL)
	if !known && s.trustMisses {
		return false, nil
	}
	if _, err := s.mappings.GetByCustomURL(ctx, customURL); err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return false, nil
		}
		return false, storeError("lookup mapping", err)
	}
	if !known {
		// Written by another instance or outside the service.
		s.filter.Add(customURL)
	}
	return true, nil
}

func (s *mappingService) Learn(customURL string) {
	s.filter.Add(customURL)
}

func (s *mappingService) RebuildFilter(ctx context.Context) error {
	s.filter.BeginRebuild()
	urls, err := s.mappings.ListCustomURLs(ctx)
	if err != nil {
		s.filter.AbortRebuild()
		return storeError("rebuild url filter", err)
	}
	s.filter.Rebuild(urls)
	s.logger.Debug("url filter rebuilt", zap.Int("urls", len(urls)))
	return nil
}
