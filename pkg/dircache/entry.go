package dircache

import "time"

// Entry caches the folder ids resolved for one Drive account.
type Entry struct {
	ID        uint   `gorm:"primaryKey"`
	Account   string `gorm:"not null;uniqueIndex"`
	RootID    string `gorm:"not null"`
	ScenesID  string `gorm:"not null"`
	AvatarsID string `gorm:"not null"`
	PropsID   string `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName overrides the default table name.
func (Entry) TableName() string {
	return "directory_cache"
}
