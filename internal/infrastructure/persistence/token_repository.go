package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexus/backend/internal/domain/integration"
)

// tokenRecord is the storage model for platform credentials
type tokenRecord struct {
	AccountID    int64     `gorm:"primaryKey"`
	AccessToken  string    `gorm:"type:varchar(255);not null"`
	RefreshToken string    `gorm:"type:varchar(255);not null"`
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (tokenRecord) TableName() string {
	return "platform_tokens"
}

func (t *tokenRecord) toDomain() *integration.Token {
	return &integration.Token{
		AccountID:    t.AccountID,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
}

// GormTokenRepository stores platform credentials and doubles as the account
// directory: every account with a stored credential takes part in sync runs.
type GormTokenRepository struct {
	db *gorm.DB
}

// NewGormTokenRepository creates a new GormTokenRepository
func NewGormTokenRepository(db *gorm.DB) *GormTokenRepository {
	return &GormTokenRepository{db: db}
}

// FindByAccountID loads the stored credential for an account
func (r *GormTokenRepository) FindByAccountID(ctx context.Context, accountID int64) (*integration.Token, error) {
	var record tokenRecord
	if err := r.db.WithContext(ctx).
		First(&record, "account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrTokenNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// Save upserts the credential for an account
func (r *GormTokenRepository) Save(ctx context.Context, token *integration.Token) error {
	record := tokenRecord{
		AccountID:    token.AccountID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
		}).
		Create(&record).Error
}

// AccountIDs lists every account with a stored credential
func (r *GormTokenRepository) AccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&tokenRecord{}).
		Order("account_id ASC").
		Pluck("account_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure GormTokenRepository implements AccountDirectory
var _ integration.AccountDirectory = (*GormTokenRepository)(nil)
