package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormResetRepo struct{ db *gorm.DB }

func NewGormResetRequestRepository(db *gorm.DB) ResetRequestRepository {
	return &gormResetRepo{db: db}
}

// MigrateResetRequests creates the table and the partial index that allows
// a single pending request per organizer.
func MigrateResetRequests(db *gorm.DB) error {
	if err := db.AutoMigrate(&ResetRequest{}); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS reset_requests_one_pending
		ON reset_requests (organizer_id) WHERE status = 'pending'`).Error
}

func (r *gormResetRepo) Create(ctx context.Context, req *ResetRequest) error {
	req.Status = ResetPending
	err := r.db.WithContext(ctx).Create(req).Error
	if isUniqueViolation(err) {
		return ErrPendingExists
	}
	return err
}

func (r *gormResetRepo) first(ctx context.Context, q *gorm.DB) (ResetRequest, error) {
	var req ResetRequest
	err := q.WithContext(ctx).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ResetRequest{}, ErrNotFound
	}
	return req, err
}

func (r *gormResetRepo) GetByID(ctx context.Context, id uuid.UUID) (ResetRequest, error) {
	return r.first(ctx, r.db.Where("id = ?", id))
}

func (r *gormResetRepo) Latest(ctx context.Context, organizerID int64) (ResetRequest, error) {
	return r.first(ctx, r.db.Where("organizer_id = ?", organizerID).Order("created_at DESC"))
}

func (r *gormResetRepo) List(ctx context.Context, status ResetStatus) ([]ResetRequest, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	out := []ResetRequest{}
	err := q.Find(&out).Error
	return out, err
}

func (r *gormResetRepo) Resolve(ctx context.Context, id uuid.UUID, status ResetStatus, note string, by int64, at time.Time, passwordHash string) (ResetRequest, error) {
	var out ResetRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ResetRequest{}).
			Where("id = ? AND status = ?", id, ResetPending).
			Updates(map[string]any{
				"status":      status,
				"note":        note,
				"resolved_at": at,
				"resolved_by": by,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&ResetRequest{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrNotPending
		}
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return err
		}
		if passwordHash != "" {
			upd := tx.Exec(`UPDATE users SET password = ? WHERE id = ? AND role = 'organizer'`, passwordHash, out.OrganizerID)
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
	return out, err
}

func (r *gormResetRepo) UpdateNote(ctx context.Context, id uuid.UUID, note string) error {
	res := r.db.WithContext(ctx).Model(&ResetRequest{}).Where("id = ?", id).Update("note", note)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormResetRepo) DeleteByOrganizer(ctx context.Context, organizerID int64) error {
	return r.db.WithContext(ctx).Where("organizer_id = ?", organizerID).Delete(&ResetRequest{}).Error
}
