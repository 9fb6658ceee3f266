package telegram

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dapen17/vps1/internal/domain"
)

// phoneHash identifies an account row: the same phone attached by two owners is two rows
func phoneHash(ref domain.SessionRef) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", ref.OwnerID, ref.Phone)))
	return fmt.Sprintf("%x", hash[:])
}

// PostgresSessionStore keeps sessions and account bookkeeping in PostgreSQL
type PostgresSessionStore struct {
	db *gorm.DB
}

// NewPostgresSessionStore creates a PostgreSQL-based session store
func NewPostgresSessionStore(db *gorm.DB) (*PostgresSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresSessionStore{db: db}, nil
}

// Storage returns the session storage of one account, creating its account row if needed
func (s *PostgresSessionStore) Storage(ctx context.Context, ref domain.SessionRef) (session.Storage, error) {
	return NewPostgresSessionStorage(ctx, s.db, ref)
}

// List returns every account that has a stored session
func (s *PostgresSessionStore) List(ctx context.Context) ([]domain.SessionRef, error) {
	var accounts []AccountModel
	err := s.db.WithContext(ctx).
		Joins("JOIN sessions ON sessions.account_id = accounts.id").
		Order("accounts.id").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	refs := make([]domain.SessionRef, 0, len(accounts))
	for _, a := range accounts {
		refs = append(refs, domain.SessionRef{OwnerID: a.OwnerID, Phone: a.PhoneNumber})
	}
	return refs, nil
}

// Delete removes the account row; its session goes with it
func (s *PostgresSessionStore) Delete(ctx context.Context, ref domain.SessionRef) error {
	err := s.db.WithContext(ctx).
		Where("phone_hash = ?", phoneHash(ref)).
		Delete(&AccountModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// Export returns the session blob of an account
func (s *PostgresSessionStore) Export(ctx context.Context, ref domain.SessionRef) (domain.SessionFile, error) {
	var sess SessionModel
	err := s.db.WithContext(ctx).
		Joins("JOIN accounts ON accounts.id = sessions.account_id").
		Where("accounts.phone_hash = ?", phoneHash(ref)).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SessionFile{}, session.ErrNotFound
	}
	if err != nil {
		return domain.SessionFile{}, fmt.Errorf("failed to load session: %w", err)
	}
	return domain.SessionFile{Name: SessionFileName(ref), Data: sess.SessionData}, nil
}

// RecordStatus updates the account status in the database
func (s *PostgresSessionStore) RecordStatus(ctx context.Context, ref domain.SessionRef, account domain.Account, status string, lastErr error) error {
	updates := map[string]interface{}{
		"status":     status,
		"last_error": nil,
	}
	if lastErr != nil {
		msg := lastErr.Error()
		updates["last_error"] = &msg
	}
	if account.ID != 0 {
		updates["telegram_user_id"] = account.ID
		updates["username"] = account.Username
	}
	if status == AccountStatusActive {
		now := time.Now()
		updates["last_connected_at"] = &now
	}

	return s.db.WithContext(ctx).
		Model(&AccountModel{}).
		Where("phone_hash = ?", phoneHash(ref)).
		Updates(updates).Error
}

// PostgresSessionStorage implements session.Storage for one account row
type PostgresSessionStorage struct {
	db        *gorm.DB
	accountID uint
}

// NewPostgresSessionStorage creates a PostgreSQL-based session storage
func NewPostgresSessionStorage(ctx context.Context, db *gorm.DB, ref domain.SessionRef) (*PostgresSessionStorage, error) {
	if ref.Phone == "" {
		return nil, fmt.Errorf("phone number is required")
	}

	storage := &PostgresSessionStorage{db: db}
	if err := storage.ensureAccount(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}
	return storage, nil
}

// ensureAccount creates or retrieves the account record in the database
func (s *PostgresSessionStorage) ensureAccount(ctx context.Context, ref domain.SessionRef) error {
	hash := phoneHash(ref)

	var account AccountModel
	result := s.db.WithContext(ctx).Where("phone_hash = ?", hash).First(&account)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		account = AccountModel{
			OwnerID:     ref.OwnerID,
			PhoneNumber: ref.Phone,
			PhoneHash:   hash,
			Status:      AccountStatusInactive,
		}
		if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
	} else if result.Error != nil {
		return fmt.Errorf("failed to query account: %w", result.Error)
	}

	s.accountID = account.ID
	return nil
}

// LoadSession loads session data from PostgreSQL
func (s *PostgresSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	var sess SessionModel
	result := s.db.WithContext(ctx).Where("account_id = ?", s.accountID).First(&sess)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load session: %w", result.Error)
	}

	if len(sess.SessionData) == 0 {
		return nil, session.ErrNotFound
	}

	return sess.SessionData, nil
}

// StoreSession upserts session data in PostgreSQL
func (s *PostgresSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	sess := SessionModel{
		AccountID:   s.accountID,
		SessionData: data,
	}
	err := s.db.WithContext(ctx).
		Omit("Account").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"session_data", "updated_at"}),
		}).
		Create(&sess).Error
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

var (
	_ SessionStore    = (*PostgresSessionStore)(nil)
	_ StatusRecorder  = (*PostgresSessionStore)(nil)
	_ session.Storage = (*PostgresSessionStorage)(nil)
)
