package model

import "time"

// InviteMapping binds a vanity custom URL to a Discord invite.
type InviteMapping struct {
	ID            uint      `db:"id" gorm:"primaryKey"`
	CustomURL     string    `db:"custom_url" gorm:"size:100;not null;uniqueIndex"`
	DiscordInvite string    `db:"discord_invite" gorm:"type:text;not null"`
	OwnerID       *string   `db:"owner_id" gorm:"size:32;index"`
	CreatedAt     time.Time `db:"created_at" gorm:"autoCreateTime"`
}

func (InviteMapping) TableName() string { return "invite_mappings" }

// OwnedBy reports whether discordID created the mapping.
func (m *InviteMapping) OwnedBy(discordID string) bool {
	return m.OwnerID != nil && *m.OwnerID == discordID
}
