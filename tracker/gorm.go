package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurtura/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTracker is the Postgres-backed Tracker. Atomicity of CreateIfAbsent
// rests on the unique index over SequenceInstance.ActiveKey: concurrent
// creators for the same (recipient, type) pair race on the insert and the
// loser reads back the winner's row.
type GormTracker struct {
	db *gorm.DB
}

func NewGormTracker(db *gorm.DB) *GormTracker {
	return &GormTracker{db: db}
}

func (t *GormTracker) UpsertRecipient(ctx context.Context, r *models.Recipient) error {
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "company",
			"critical_count", "elevated_count", "moderate_count", "nominal_count",
			"last_trigger_at", "updated_at",
		}),
	}).Create(r).Error
}

func (t *GormTracker) RecipientByEmail(ctx context.Context, email string) (*models.Recipient, error) {
	var r models.Recipient
	if err := t.db.WithContext(ctx).Where("email = ?", email).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (t *GormTracker) CreateIfAbsent(ctx context.Context, email, seqType, segment string, anchor time.Time, stepCount int) (*models.SequenceInstance, bool, error) {
	key := ActiveKey(email, seqType)

	// Fast path: a live instance already holds the key.
	if existing, err := t.byActiveKey(ctx, key); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrInstanceNotFound) {
		return nil, false, err
	}

	inst := &models.SequenceInstance{
		InstanceID:     uuid.New().String(),
		RecipientEmail: email,
		SequenceType:   seqType,
		Segment:        segment,
		Status:         models.InstanceActive,
		AnchorAt:       anchor,
		ActiveKey:      &key,
	}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inst).Error; err != nil {
			return err
		}
		for i := 1; i <= stepCount; i++ {
			step := models.SequenceStep{
				InstanceID: inst.InstanceID,
				StepIndex:  i,
				Status:     models.StepPending,
			}
			if err := tx.Create(&step).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race; the concurrent creator's row is the instance.
			existing, lookupErr := t.byActiveKey(ctx, key)
			if lookupErr != nil {
				return nil, false, fmt.Errorf("duplicate active key but lookup failed: %w", lookupErr)
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return inst, true, nil
}

func (t *GormTracker) byActiveKey(ctx context.Context, key string) (*models.SequenceInstance, error) {
	var inst models.SequenceInstance
	err := t.db.WithContext(ctx).Preload("Steps").Where("active_key = ?", key).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (t *GormTracker) Instance(ctx context.Context, instanceID string) (*models.SequenceInstance, error) {
	var inst models.SequenceInstance
	err := t.db.WithContext(ctx).Preload("Steps").Where("instance_id = ?", instanceID).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (t *GormTracker) InstancesByRecipient(ctx context.Context, email string) ([]models.SequenceInstance, error) {
	var instances []models.SequenceInstance
	err := t.db.WithContext(ctx).Preload("Steps").
		Where("recipient_email = ?", email).
		Order("created_at DESC").
		Find(&instances).Error
	return instances, err
}

func (t *GormTracker) MarkScheduled(ctx context.Context, instanceID string, stepIndex int, at time.Time) error {
	return t.transitionStep(ctx, instanceID, stepIndex, models.StepScheduled, func(step *models.SequenceStep) {
		step.ScheduledFor = &at
	})
}

func (t *GormTracker) MarkSent(ctx context.Context, instanceID string, stepIndex int, receiptID string, sentAt time.Time) error {
	return t.transitionStep(ctx, instanceID, stepIndex, models.StepSent, func(step *models.SequenceStep) {
		step.SentAt = &sentAt
		step.ReceiptID = receiptID
	})
}

func (t *GormTracker) MarkFailed(ctx context.Context, instanceID string, stepIndex int, reason string) error {
	return t.transitionStep(ctx, instanceID, stepIndex, models.StepFailed, func(step *models.SequenceStep) {
		step.FailureReason = reason
	})
}

// transitionStep applies one monotonic status change under a row lock and
// completes the instance (releasing its active key) when the last step
// reaches a terminal status.
func (t *GormTracker) transitionStep(ctx context.Context, instanceID string, stepIndex int, to models.StepStatus, mutate func(*models.SequenceStep)) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var step models.SequenceStep
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("instance_id = ? AND step_index = ?", instanceID, stepIndex).
			First(&step).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStepNotFound
		}
		if err != nil {
			return err
		}

		apply, err := stepTransition(step.Status, to)
		if err != nil {
			return err
		}
		if !apply {
			return nil
		}

		step.Status = to
		mutate(&step)
		if err := tx.Save(&step).Error; err != nil {
			return err
		}

		if to != models.StepSent && to != models.StepFailed {
			return nil
		}
		var steps []models.SequenceStep
		if err := tx.Where("instance_id = ?", instanceID).Find(&steps).Error; err != nil {
			return err
		}
		if !stepsTerminal(steps) {
			return nil
		}
		return tx.Model(&models.SequenceInstance{}).
			Where("instance_id = ? AND status = ?", instanceID, models.InstanceActive).
			Updates(map[string]interface{}{
				"status":     models.InstanceCompleted,
				"active_key": nil,
			}).Error
	})
}

func (t *GormTracker) StepStatus(ctx context.Context, instanceID string, stepIndex int) (models.StepStatus, error) {
	var step models.SequenceStep
	err := t.db.WithContext(ctx).
		Where("instance_id = ? AND step_index = ?", instanceID, stepIndex).
		First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrStepNotFound
	}
	if err != nil {
		return "", err
	}
	return step.Status, nil
}

func (t *GormTracker) MarkConverted(ctx context.Context, instanceID string) error {
	res := t.db.WithContext(ctx).Model(&models.SequenceInstance{}).
		Where("instance_id = ? AND status = ?", instanceID, models.InstanceActive).
		Updates(map[string]interface{}{
			"status":     models.InstanceConverted,
			"active_key": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Already terminal or unknown; distinguish for callers.
		var count int64
		if err := t.db.WithContext(ctx).Model(&models.SequenceInstance{}).
			Where("instance_id = ?", instanceID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrInstanceNotFound
		}
	}
	return nil
}

func (t *GormTracker) ConvertByRecipient(ctx context.Context, email string) (int, error) {
	res := t.db.WithContext(ctx).Model(&models.SequenceInstance{}).
		Where("recipient_email = ? AND status = ?", email, models.InstanceActive).
		Updates(map[string]interface{}{
			"status":     models.InstanceConverted,
			"active_key": nil,
		})
	return int(res.RowsAffected), res.Error
}
