package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Endpoint is the natural key: re-subscribing the same endpoint updates
// the record in place instead of duplicating it.
type PushSubscription struct {
	ID            string    `gorm:"primaryKey;size:36"`
	Endpoint      string    `gorm:"uniqueIndex;not null"`
	P256DH        string    `gorm:"column:p256dh;not null"`
	Auth          string    `gorm:"not null"`
	UserID        *string   `gorm:"index;size:128"`
	ApplicationID *string   `gorm:"index;size:36"`
	CreatedAt     time.Time `gorm:"not null"`
}
