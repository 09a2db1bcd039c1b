package model

import "time"

// Admin represents a service administrator account.
type Admin struct {
	ID                 string    `gorm:"primaryKey;size:36"`
	Username           string    `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash       string    `gorm:"not null"`
	IsSuperAdmin       bool      `gorm:"not null;default:false"`
	ApplicationIDs     []string  `gorm:"serializer:json"`
	MustChangePassword bool      `gorm:"not null;default:false"`
	CreatedAt          time.Time `gorm:"not null"`
}

// CanAccess reports whether the admin may operate on the given application.
func (a *Admin) CanAccess(applicationID string) bool {
	if a.IsSuperAdmin {
		return true
	}
	for _, id := range a.ApplicationIDs {
		if id == applicationID {
			return true
		}
	}
	return false
}
