package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sifan077/InviteGate/internal/app/model"
	"github.com/sifan077/InviteGate/internal/app/repository"
	infraPrometheus "github.com/sifan077/InviteGate/internal/infra/prometheus"
	"go.uber.org/zap"
)

// AccountService covers login bookkeeping and the admin limit controls.
type AccountService interface {
	Login(ctx context.Context, discordID, email string) (*model.Account, error)
	Get(ctx context.Context, discordID string) (*model.Account, error)
	Search(ctx context.Context, query string) ([]model.Account, error)
	IncreaseLimit(ctx context.Context, actorID, discordID string) (*model.Account, error)
	DecreaseLimit(ctx context.Context, actorID, discordID string) (*model.Account, error)
}

type accountService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	audit    *AuditPublisher
}

// NewAccountService returns a service implementation backed by the given repository.
func NewAccountService(logger *zap.Logger, accounts repository.AccountRepository, audit *AuditPublisher) AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &accountService{logger: logger, accounts: accounts, audit: audit}
}

func (s *accountService) Login(ctx context.Context, discordID, email string) (*model.Account, error) {
	var emailPtr *string
	if email = strings.TrimSpace(email); email != "" {
		emailPtr = &email
	}

	account, err := s.accounts.Upsert(ctx, discordID, emailPtr)
	if err != nil {
		err = storeError("login", err)
	}
	s.audit.Publish(model.AuditKindLogin, discordID, discordID, err, "")
	return account, err
}

func (s *accountService) Get(ctx context.Context, discordID string) (*model.Account, error) {
	account, err := s.accounts.GetByDiscordID(ctx, discordID)
	if err != nil {
		return nil, accountError("get account", discordID, err)
	}
	return account, nil
}

func (s *accountService) Search(ctx context.Context, query string) ([]model.Account, error) {
	accounts, err := s.accounts.Search(ctx, query, 0)
	if err != nil {
		return nil, storeError("search accounts", err)
	}
	return accounts, nil
}

func (s *accountService) IncreaseLimit(ctx context.Context, actorID, discordID string) (*model.Account, error) {
	account, err := s.accounts.IncreaseLimit(ctx, discordID, model.InviteLimitStep)
	if err != nil {
		err = accountError("increase limit", discordID, err)
	}
	s.recordAdjustment(model.AuditKindLimitIncrease, "increase", actorID, discordID, account, err)
	return account, err
}

func (s *accountService) DecreaseLimit(ctx context.Context, actorID, discordID string) (*model.Account, error) {
	account, err := s.accounts.DecreaseLimit(ctx, discordID, model.InviteLimitStep)
	if err != nil {
		err = accountError("decrease limit", discordID, err)
	}
	s.recordAdjustment(model.AuditKindLimitDecrease, "decrease", actorID, discordID, account, err)
	return account, err
}

func (s *accountService) recordAdjustment(kind, direction, actorID, discordID string, account *model.Account, err error) {
	infraPrometheus.LimitAdjustments.WithLabelValues(direction, Outcome(err)).Inc()

	detail := ""
	if account != nil {
		detail = fmt.Sprintf("invite_limit=%d", account.InviteLimit)
	}
	s.audit.Publish(kind, discordID, actorID, err, detail)

	if err != nil {
		s.logger.Warn("invite limit adjustment rejected",
			zap.String("direction", direction),
			zap.String("actor", actorID),
			zap.String("account", discordID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("invite limit adjusted",
		zap.String("direction", direction),
		zap.String("actor", actorID),
		zap.String("account", discordID),
		zap.Int("invite_limit", account.InviteLimit),
	)
}

func accountError(op, discordID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		return fmt.Errorf("%s: account %s: %w", op, discordID, ErrNotFound)
	case errors.Is(err, repository.ErrLimitFloor):
		return fmt.Errorf("%s: account %s: %w", op, discordID, ErrLimitFloor)
	default:
		return storeError(op, err)
	}
}
