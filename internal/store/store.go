package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"webpush-backend/internal/model"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness or referential-integrity violation.
	ErrConflict = errors.New("conflict")
)

// SubscriptionFilter narrows subscription listings.
type SubscriptionFilter struct {
	UserID        string
	ApplicationID string
	UserIDs       []string
	Limit         int
}

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	CountAdmins(ctx context.Context) (int64, error)
	GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error)
	GetAdminByID(ctx context.Context, id string) (*model.Admin, error)
	ListAdmins(ctx context.Context) ([]model.Admin, error)
	CreateAdmin(ctx context.Context, admin *model.Admin) error
	UpdateAdmin(ctx context.Context, admin *model.Admin) error
	DeleteAdmin(ctx context.Context, id string) error

	CreateApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	GetApplicationByName(ctx context.Context, name string) (*model.Application, error)
	ListApplications(ctx context.Context) ([]model.Application, error)
	UpdateApplication(ctx context.Context, app *model.Application) error
	DeleteApplication(ctx context.Context, id string) error

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, id string) (*model.PushSubscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]model.PushSubscription, error)
	AssignSubscription(ctx context.Context, id string, applicationID *string) error
	DeleteSubscription(ctx context.Context, id string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// --- Admins ---

func (s *gormStore) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Admin{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

func (s *gormStore) GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	var admin model.Admin
	err := s.db.WithContext(ctx).First(&admin, "username = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up admin %q: %w", username, err)
	}
	return &admin, nil
}

func (s *gormStore) GetAdminByID(ctx context.Context, id string) (*model.Admin, error) {
	var admin model.Admin
	err := s.db.WithContext(ctx).First(&admin, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up admin %s: %w", id, err)
	}
	return &admin, nil
}

func (s *gormStore) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	var admins []model.Admin
	if err := s.db.WithContext(ctx).Order("created_at").Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return admins, nil
}

func (s *gormStore) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Admin
		result := tx.Limit(1).Find(&existing, "username = ?", admin.Username)
		if result.Error != nil {
			return fmt.Errorf("failed to check for existing admin: %w", result.Error)
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("username %q already exists: %w", admin.Username, ErrConflict)
		}
		return tx.Create(admin).Error
	})
}

func (s *gormStore) UpdateAdmin(ctx context.Context, admin *model.Admin) error {
	result := s.db.WithContext(ctx).Save(admin)
	if result.Error != nil {
		return fmt.Errorf("failed to update admin %s: %w", admin.ID, result.Error)
	}
	return nil
}

func (s *gormStore) DeleteAdmin(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&model.Admin{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete admin %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Applications ---

func (s *gormStore) CreateApplication(ctx context.Context, app *model.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Application
		result := tx.Limit(1).Find(&existing, "name = ?", app.Name)
		if result.Error != nil {
			return fmt.Errorf("failed to check for existing application: %w", result.Error)
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("application name %q already exists: %w", app.Name, ErrConflict)
		}
		return tx.Create(app).Error
	})
}

func (s *gormStore) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	var app model.Application
	err := s.db.WithContext(ctx).First(&app, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up application %s: %w", id, err)
	}
	return &app, nil
}

func (s *gormStore) GetApplicationByName(ctx context.Context, name string) (*model.Application, error) {
	var app model.Application
	err := s.db.WithContext(ctx).First(&app, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up application %q: %w", name, err)
	}
	return &app, nil
}

func (s *gormStore) ListApplications(ctx context.Context) ([]model.Application, error) {
	var apps []model.Application
	if err := s.db.WithContext(ctx).Order("created_at").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

func (s *gormStore) UpdateApplication(ctx context.Context, app *model.Application) error {
	if err := s.db.WithContext(ctx).Save(app).Error; err != nil {
		return fmt.Errorf("failed to update application %s: %w", app.ID, err)
	}
	return nil
}

// DeleteApplication removes an application. Deletion is blocked while any
// subscription still references it.
func (s *gormStore) DeleteApplication(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&model.PushSubscription{}).
			Where("application_id = ?", id).
			Count(&refs).Error; err != nil {
			return fmt.Errorf("failed to count subscription references: %w", err)
		}
		if refs > 0 {
			return fmt.Errorf("application %s still has %d linked subscriptions: %w", id, refs, ErrConflict)
		}

		result := tx.Delete(&model.Application{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete application %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- Subscriptions ---

// UpsertSubscription stores a subscription, keyed by endpoint. Re-subscribing
// an existing endpoint updates keys and user id in place; the record's id and
// created_at are preserved. The stored record is loaded back into sub.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	assignments := []string{"p256dh", "auth", "user_id"}
	if sub.ApplicationID != nil {
		assignments = append(assignments, "application_id")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns(assignments),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	// The conflict path keeps the original row's id; read it back.
	var stored model.PushSubscription
	if err := s.db.WithContext(ctx).First(&stored, "endpoint = ?", sub.Endpoint).Error; err != nil {
		return fmt.Errorf("failed to reload subscription: %w", err)
	}
	*sub = stored
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, id string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up subscription %s: %w", id, err)
	}
	return &sub, nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]model.PushSubscription, error) {
	query := s.db.WithContext(ctx).Model(&model.PushSubscription{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ApplicationID != "" {
		query = query.Where("application_id = ?", filter.ApplicationID)
	}
	if len(filter.UserIDs) > 0 {
		query = query.Where("user_id IN ?", filter.UserIDs)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var subs []model.PushSubscription
	if err := query.Order("created_at").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// AssignSubscription moves a subscription into an application, or out of any
// application when applicationID is nil.
func (s *gormStore) AssignSubscription(ctx context.Context, id string, applicationID *string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if applicationID != nil {
			var app model.Application
			if err := tx.First(&app, "id = ?", *applicationID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("application %s: %w", *applicationID, ErrNotFound)
				}
				return err
			}
		}

		result := tx.Model(&model.PushSubscription{}).
			Where("id = ?", id).
			Update("application_id", applicationID)
		if result.Error != nil {
			return fmt.Errorf("failed to assign subscription %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *gormStore) DeleteSubscription(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&model.PushSubscription{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureBootstrapAdmin provisions the first admin account on an empty store.
// The account is created with MustChangePassword set so the standing
// credential cannot survive unnoticed.
func EnsureBootstrapAdmin(ctx context.Context, s Store, username, passwordHash string) (created bool, err error) {
	count, err := s.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	admin := &model.Admin{
		ID:                 uuid.NewString(),
		Username:           username,
		PasswordHash:       passwordHash,
		IsSuperAdmin:       true,
		MustChangePassword: true,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.CreateAdmin(ctx, admin); err != nil {
		return false, err
	}
	return true, nil
}
