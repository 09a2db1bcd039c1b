package registrar

import "time"

// User is a registered account on the companion service.
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Username     string    `gorm:"uniqueIndex;size:128;not null"`
	Email        string    `gorm:"uniqueIndex;size:256;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// UserFingerprint ties a device fingerprint to a user. Only the SHA-256 of
// the client-supplied fingerprint string is stored.
type UserFingerprint struct {
	ID              string    `gorm:"primaryKey;size:36"`
	UserID          string    `gorm:"index;size:36;not null"`
	FingerprintHash string    `gorm:"index;size:64;not null"`
	Browser         string    `gorm:"size:64"`
	OS              string    `gorm:"size:64"`
	Device          string    `gorm:"size:64"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// UserPushSubscription links a local user to a subscription held by the
// push service.
type UserPushSubscription struct {
	ID                 string    `gorm:"primaryKey;size:36"`
	UserID             string    `gorm:"index;size:36;not null"`
	PushSubscriptionID string    `gorm:"size:36"`
	ApplicationID      string    `gorm:"size:36"`
	Endpoint           string    `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
}
