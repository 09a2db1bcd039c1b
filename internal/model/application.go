package model

import "time"

// Application is an isolated namespace of push subscriptions,
// authenticated by its own secret. Only the bcrypt hash of the secret
// is stored; the plaintext is shown once at creation or reset.
type Application struct {
	ID               string    `gorm:"primaryKey;size:36"`
	Name             string    `gorm:"uniqueIndex;size:256;not null"`
	SecretHash       string    `gorm:"not null"`
	StoreFingerprint *string   `gorm:"size:256"`
	CreatedAt        time.Time `gorm:"not null"`
}
