package model

import "time"

const (
	DefaultInviteLimit = 5
	InviteLimitStep    = 5
)

// Account is a Discord user who has logged in at least once.
type Account struct {
	ID          uint      `db:"id" gorm:"primaryKey"`
	DiscordID   string    `db:"discord_id" gorm:"size:32;not null;uniqueIndex"`
	Email       *string   `db:"email" gorm:"size:320"`
	InviteLimit int       `db:"invite_limit" gorm:"not null;default:5"`
	CreatedAt   time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }

// EmailOrEmpty is a template helper.
func (a Account) EmailOrEmpty() string {
	if a.Email == nil {
		return ""
	}
	return *a.Email
}
