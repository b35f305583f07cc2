package repository

import (
	"context"
	"time"

	"github.com/GoAffiliate/tiergate/internal/model"
	"gorm.io/gorm"
)

// warningRow is the persistence shape of a fired warning. The in-process
// fired-set stays the sole dedup authority; rows here are ops history only
// and are never read back into the engine.
type warningRow struct {
	ID         uint      `gorm:"primaryKey"`
	Key        string    `gorm:"column:warning_key;index"`
	Resource   string    `gorm:"column:resource"`
	Severity   string    `gorm:"column:severity"`
	Message    string    `gorm:"column:message"`
	Persistent bool      `gorm:"column:persistent"`
	FiredAt    time.Time `gorm:"column:fired_at;index"`
}

func (warningRow) TableName() string { return "warning_events" }

type PostgresWarningRepo struct {
	db *gorm.DB
}

func NewPostgresWarningRepo(db *gorm.DB) (*PostgresWarningRepo, error) {
	if err := db.AutoMigrate(&warningRow{}); err != nil {
		return nil, err
	}
	return &PostgresWarningRepo{db: db}, nil
}

func (r *PostgresWarningRepo) Insert(ctx context.Context, w model.Warning) error {
	row := warningRow{
		Key:        w.Key,
		Resource:   w.Resource,
		Severity:   string(w.Severity),
		Message:    w.Message,
		Persistent: w.Persistent,
		FiredAt:    w.FiredAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *PostgresWarningRepo) List(ctx context.Context, limit int) ([]model.Warning, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []warningRow
	err := r.db.WithContext(ctx).
		Order("fired_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.Warning, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Warning{
			Key:        row.Key,
			Resource:   row.Resource,
			Severity:   model.Severity(row.Severity),
			Message:    row.Message,
			Persistent: row.Persistent,
			FiredAt:    row.FiredAt,
		})
	}
	return out, nil
}

func (r *PostgresWarningRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return r.db.WithContext(ctx).
		Where("fired_at < ?", cutoff).
		Delete(&warningRow{}).Error
}
