package db

import (
	"context"
	"fmt"
	"time"

	"github.com/stwalsh4118/airwave/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const rankBatchSize = 500

// RankRepository persists per-track rank scores
type RankRepository struct {
	db *DB
}

// NewRankRepository creates a new rank repository
func NewRankRepository(db *DB) *RankRepository {
	return &RankRepository{db: db}
}

// List returns every stored rank ordered by track id
func (r *RankRepository) List(ctx context.Context) ([]*models.TrackRank, error) {
	var ranks []*models.TrackRank
	result := r.db.WithContext(ctx).Order("track_id ASC").Find(&ranks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list ranks: %w", MapGormError(result.Error))
	}
	return ranks, nil
}

// GetByTrackID retrieves the stored rank for one track
func (r *RankRepository) GetByTrackID(ctx context.Context, trackID string) (*models.TrackRank, error) {
	var rank models.TrackRank
	result := r.db.WithContext(ctx).Where("track_id = ?", trackID).First(&rank)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &rank, nil
}

// Upsert inserts or updates the rank for a single track
func (r *RankRepository) Upsert(ctx context.Context, rank *models.TrackRank) error {
	if rank.TrackID == "" {
		return ErrInvalidInput
	}
	rank.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "rank", "updated_at"}),
	}).Create(rank)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert rank: %w", MapGormError(result.Error))
	}
	return nil
}

// ReplaceAll swaps the stored ranks for the given set in one transaction,
// so a crash mid-save never leaves a half-written table.
func (r *RankRepository) ReplaceAll(ctx context.Context, ranks []*models.TrackRank) error {
	now := time.Now().UTC()
	for _, rank := range ranks {
		if rank.TrackID == "" {
			return ErrInvalidInput
		}
		rank.UpdatedAt = now
	}

	return r.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.TrackRank{}).Error; err != nil {
			return fmt.Errorf("failed to clear ranks: %w", MapGormError(err))
		}
		if len(ranks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(ranks, rankBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert ranks: %w", MapGormError(err))
		}
		return nil
	})
}
