package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/sifan077/InviteGate/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAccountNotFound signals that no account has the given Discord id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrLimitFloor signals a decrement on an account already at zero.
	ErrLimitFloor = errors.New("invite limit already at zero")
)

const defaultSearchLimit = 100

// AccountRepository defines the data access contract for accounts.
type AccountRepository interface {
	// Upsert creates the account on first login. An existing row keeps its
	// limit; its email is refreshed only when email is non-nil.
	Upsert(ctx context.Context, discordID string, email *string) (*model.Account, error)
	GetByDiscordID(ctx context.Context, discordID string) (*model.Account, error)
	Search(ctx context.Context, query string, limit int) ([]model.Account, error)
	IncreaseLimit(ctx context.Context, discordID string, step int) (*model.Account, error)
	// DecreaseLimit subtracts step, flooring at zero. An account already at
	// zero is left untouched and ErrLimitFloor is returned.
	DecreaseLimit(ctx context.Context, discordID string, step int) (*model.Account, error)
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns a GORM-backed AccountRepository.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Upsert(ctx context.Context, discordID string, email *string) (*model.Account, error) {
	account := model.Account{
		DiscordID:   discordID,
		Email:       email,
		InviteLimit: model.DefaultInviteLimit,
	}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "discord_id"}},
		DoNothing: true,
	}
	if email != nil {
		onConflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "discord_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "updated_at"}),
		}
	}

	if err := r.db.WithContext(ctx).Clauses(onConflict).Create(&account).Error; err != nil {
		return nil, err
	}
	return r.GetByDiscordID(ctx, discordID)
}

func (r *accountRepository) GetByDiscordID(ctx context.Context, discordID string) (*model.Account, error) {
	return getAccount(r.db.WithContext(ctx), discordID)
}

func (r *accountRepository) Search(ctx context.Context, query string, limit int) ([]model.Account, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := r.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		q = q.Where("discord_id LIKE ? ESCAPE '\\'", "%"+escapeLike(query)+"%")
	}

	var result []model.Account
	if err := q.Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *accountRepository) IncreaseLimit(ctx context.Context, discordID string, step int) (*model.Account, error) {
	var account *model.Account
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Account{}).
			Where("discord_id = ?", discordID).
			UpdateColumn("invite_limit", gorm.Expr("invite_limit + ?", step))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		var err error
		account, err = getAccount(tx, discordID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) DecreaseLimit(ctx context.Context, discordID string, step int) (*model.Account, error) {
	var account *model.Account
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Account{}).
			Where("discord_id = ? AND invite_limit > 0", discordID).
			UpdateColumn("invite_limit", gorm.Expr("CASE WHEN invite_limit > ? THEN invite_limit - ? ELSE 0 END", step, step))
		if result.Error != nil {
			return result.Error
		}

		var err error
		account, err = getAccount(tx, discordID)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return ErrLimitFloor
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func getAccount(db *gorm.DB, discordID string) (*model.Account, error) {
	var account model.Account
	if err := db.Where("discord_id = ?", discordID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
