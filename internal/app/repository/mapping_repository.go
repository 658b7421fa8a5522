package repository

import (
	"context"
	"errors"

	"github.com/sifan077/InviteGate/internal/app/model"
	"github.com/sifan077/InviteGate/internal/infra/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrMappingNotFound signals that the requested custom URL does not exist.
	ErrMappingNotFound = errors.New("mapping not found")
	// ErrMappingExists signals a custom URL collision.
	ErrMappingExists = errors.New("mapping already exists")
	// ErrLimitReached signals that the owner already holds invite_limit mappings.
	ErrLimitReached = errors.New("invite limit reached")
)

// MappingRepository defines the data access contract for invite mappings.
type MappingRepository interface {
	// CreateWithinLimit counts the owner's mappings and inserts m in one
	// transaction, failing with ErrLimitReached when count >= limit.
	CreateWithinLimit(ctx context.Context, m *model.InviteMapping, limit int) error
	GetByCustomURL(ctx context.Context, customURL string) (*model.InviteMapping, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.InviteMapping, error)
	DeleteOwned(ctx context.Context, customURL, ownerID string) error
	ListCustomURLs(ctx context.Context) ([]string, error)
}

type mappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository returns a GORM-backed MappingRepository.
func NewMappingRepository(db *gorm.DB) MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) CreateWithinLimit(ctx context.Context, m *model.InviteMapping, limit int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.OwnerID != nil {
			var owner []model.Account
			if err := lockOwner(tx, *m.OwnerID).Find(&owner).Error; err != nil {
				return err
			}

			var count int64
			if err := tx.Model(&model.InviteMapping{}).Where("owner_id = ?", *m.OwnerID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(limit) {
				return ErrLimitReached
			}
		}

		var existing int64
		if err := tx.Model(&model.InviteMapping{}).Where("custom_url = ?", m.CustomURL).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrMappingExists
		}

		return tx.Create(m).Error
	})
	if database.IsUniqueViolation(err) {
		return ErrMappingExists
	}
	return err
}

// lockOwner selects the owner's account row FOR UPDATE so concurrent creates
// by one owner count in turn. SQLite drops the clause; its single connection
// already serializes writers.
func lockOwner(tx *gorm.DB, ownerID string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Model(&model.Account{}).
		Select("discord_id").
		Where("discord_id = ?", ownerID).
		Limit(1)
}

func (r *mappingRepository) GetByCustomURL(ctx context.Context, customURL string) (*model.InviteMapping, error) {
	var m model.InviteMapping
	if err := r.db.WithContext(ctx).Where("custom_url = ?", customURL).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *mappingRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.InviteMapping, error) {
	var result []model.InviteMapping
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC, id ASC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *mappingRepository) DeleteOwned(ctx context.Context, customURL, ownerID string) error {
	result := r.db.WithContext(ctx).
		Where("custom_url = ? AND owner_id = ?", customURL, ownerID).
		Delete(&model.InviteMapping{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMappingNotFound
	}
	return nil
}

func (r *mappingRepository) ListCustomURLs(ctx context.Context) ([]string, error) {
	var urls []string
	if err := r.db.WithContext(ctx).Model(&model.InviteMapping{}).Pluck("custom_url", &urls).Error; err != nil {
		return nil, err
	}
	return urls, nil
}
