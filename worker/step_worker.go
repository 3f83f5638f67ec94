package worker

import (
	"context"
	"fmt"
	"time"

	"nurtura/engine"
	"nurtura/models"
	"nurtura/tracker"
	"nurtura/utils"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Queue is the database-backed scheduler runtime: ScheduleAt persists a
// StepTask row that the step worker later claims and executes. Delivery is
// at-least-once; the executor's idempotency check absorbs redelivery.
type Queue struct {
	db *gorm.DB
}

func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

func (q *Queue) ScheduleAt(ctx context.Context, at time.Time, instanceID string, stepIndex int) (string, error) {
	task := models.StepTask{
		Handle:     uuid.New().String(),
		InstanceID: instanceID,
		StepIndex:  stepIndex,
		FireAt:     at.UTC(),
		Status:     models.TaskDue,
	}
	if err := q.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", fmt.Errorf("enqueueing step task: %w", err)
	}
	return task.Handle, nil
}

const claimBatchSize = 50

// claimVisibilityTimeout is the lease on a claim: a running task whose
// claim is older than this is treated as abandoned (worker crashed between
// claim and finish) and falls back to due. Generous compared to a single
// SMTP send so healthy executions never lose their claim mid-flight.
const claimVisibilityTimeout = 10 * time.Minute

// StepWorker drains due step tasks and invokes the step executor, retrying
// retryable failures with bounded exponential backoff.
type StepWorker struct {
	DB       *gorm.DB
	Executor *engine.Executor
	Tracker  tracker.Tracker
	Notifier engine.Notifier // optional
	Logger   *logrus.Entry

	PollInterval time.Duration
	MaxAttempts  int
}

func NewStepWorker(db *gorm.DB, ex *engine.Executor, tr tracker.Tracker, logger *logrus.Entry, poll time.Duration, maxAttempts int) *StepWorker {
	return &StepWorker{
		DB:           db,
		Executor:     ex,
		Tracker:      tr,
		Logger:       logger,
		PollInterval: poll,
		MaxAttempts:  maxAttempts,
	}
}

func (w *StepWorker) Start(ctx context.Context) {
	w.Logger.Info("Step worker started")

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Step worker shutting down...")
			return
		case <-ticker.C:
			w.processDueTasks(ctx)
		}
	}
}

func (w *StepWorker) processDueTasks(ctx context.Context) {
	now := time.Now().UTC()
	w.reclaimStale(ctx, now)

	var tasks []models.StepTask
	err := w.DB.WithContext(ctx).
		Where("status = ? AND fire_at <= ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
			models.TaskDue, now, now).
		Order("fire_at").
		Limit(claimBatchSize).
		Find(&tasks).Error
	if err != nil {
		w.Logger.WithError(err).Error("Failed to fetch due step tasks")
		return
	}

	for i := range tasks {
		if !w.claim(ctx, &tasks[i]) {
			// Another worker got there first.
			continue
		}
		w.run(ctx, &tasks[i])
	}
}

// reclaimStale returns abandoned claims to the due pool. Redelivery is
// safe: the executor's sent short-circuit absorbs a task that actually
// completed before its worker died.
func (w *StepWorker) reclaimStale(ctx context.Context, now time.Time) {
	res := w.DB.WithContext(ctx).Model(&models.StepTask{}).
		Where("status = ? AND claimed_at < ?", models.TaskRunning, now.Add(-claimVisibilityTimeout)).
		Updates(map[string]interface{}{
			"status":     models.TaskDue,
			"claimed_at": nil,
		})
	if res.Error != nil {
		w.Logger.WithError(res.Error).Error("Failed to reclaim stale step tasks")
		return
	}
	if res.RowsAffected > 0 {
		w.Logger.WithField("tasks", res.RowsAffected).Warn("Reclaimed abandoned step task claims")
	}
}

// claim flips a task to running iff it is still due. The conditional update
// is what keeps concurrent workers from double-running one task.
func (w *StepWorker) claim(ctx context.Context, task *models.StepTask) bool {
	res := w.DB.WithContext(ctx).Model(&models.StepTask{}).
		Where("id = ? AND status = ?", task.ID, models.TaskDue).
		Updates(map[string]interface{}{
			"status":     models.TaskRunning,
			"claimed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		w.Logger.WithError(res.Error).Error("Failed to claim step task")
		return false
	}
	return res.RowsAffected == 1
}

func (w *StepWorker) run(ctx context.Context, task *models.StepTask) {
	log := w.Logger.WithFields(logrus.Fields{
		"task":     task.Handle,
		"instance": task.InstanceID,
		"step":     task.StepIndex,
		"attempt":  task.Attempts + 1,
	})

	err := w.Executor.ExecuteStep(ctx, task.InstanceID, task.StepIndex)
	if err == nil {
		w.finish(ctx, task, models.TaskDone, "")
		return
	}

	if !engine.IsRetryable(err) {
		// Permanent: the executor already recorded and alerted the failure.
		log.WithError(err).Warn("Step task dead, permanent failure")
		sentry.CaptureException(err)
		w.finish(ctx, task, models.TaskDead, err.Error())
		return
	}

	attempts := task.Attempts + 1
	if attempts >= w.MaxAttempts {
		log.WithError(err).Error("Step task dead, retries exhausted")
		reason := fmt.Sprintf("retries exhausted after %d attempts: %v", attempts, err)
		if markErr := w.Tracker.MarkFailed(ctx, task.InstanceID, task.StepIndex, reason); markErr != nil {
			log.WithError(markErr).Error("Failed to record exhausted step")
		}
		if w.Notifier != nil {
			w.Notifier.Notify(fmt.Sprintf("Step %d of instance %s gave up: %v", task.StepIndex, task.InstanceID, err))
		}
		sentry.CaptureException(err)
		w.finish(ctx, task, models.TaskDead, reason)
		return
	}

	delay := retryBackoff(attempts)
	log.WithError(err).WithField("retry_in", utils.FormatDuration(delay)).Warn("Step task failed, will retry")
	res := w.DB.WithContext(ctx).Model(&models.StepTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":          models.TaskDue,
			"attempts":        attempts,
			"next_attempt_at": time.Now().UTC().Add(delay),
			"last_error":      err.Error(),
		})
	if res.Error != nil {
		log.WithError(res.Error).Error("Failed to reschedule step task")
	}
}

func (w *StepWorker) finish(ctx context.Context, task *models.StepTask, status models.TaskStatus, lastError string) {
	res := w.DB.WithContext(ctx).Model(&models.StepTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":     status,
			"attempts":   task.Attempts + 1,
			"last_error": lastError,
		})
	if res.Error != nil {
		w.Logger.WithError(res.Error).Error("Failed to finalize step task")
	}
}

const (
	backoffBase = 1 * time.Minute
	backoffCap  = 1 * time.Hour
)

// retryBackoff doubles from one minute per completed attempt, capped at an
// hour.
func retryBackoff(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
