// Package queue schedules model trainings, one session per bot language.
// Session state is persisted so it survives restarts; a session left
// training by a previous process is marked as needing training again.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/logger"
)

// Status is the state of a training session.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusNeedsTraining Status = "needs-training"
	StatusPending       Status = "training-pending"
	StatusTraining      Status = "training"
	StatusDone          Status = "done"
	StatusCanceled      Status = "canceled"
	StatusErrored       Status = "errored"
)

// Active reports whether the status belongs to a queued or running training.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusTraining
}

const (
	persistTimeout   = 5 * time.Second
	progressMinDelta = 0.01
)

// Key identifies a training session.
type Key struct {
	BotID    string
	Language string
}

func (k Key) String() string {
	return k.BotID + "/" + k.Language
}

// Session is the state of the training of one bot language.
type Session struct {
	ID        string    `json:"id"`
	BotID     string    `json:"botId"`
	Language  string    `json:"language"`
	Status    Status    `json:"status"`
	Progress  float64   `json:"progress"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Trainer trains the model of one language of a bot.
type Trainer interface {
	Train(ctx context.Context, language string, progress engine.ProgressFunc) error
}

// SessionStore persists training sessions.
type SessionStore interface {
	GetTrainingSession(ctx context.Context, botID, language string) (*database.TrainingSession, error)
	SaveTrainingSession(ctx context.Context, session *database.TrainingSession) error
	ListTrainingSessions(ctx context.Context, statuses ...string) ([]*database.TrainingSession, error)
}

// Config holds the queue limits.
type Config struct {
	MaxConcurrent int
	Timeout       time.Duration
}

type job struct {
	key     Key
	id      string
	trainer Trainer
}

// Queue runs trainings with bounded concurrency. Pending trainings start in
// the order they were queued.
type Queue struct {
	store  SessionStore
	cfg    Config
	logger *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	pending []job
	running map[Key]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New creates a queue persisting sessions in store.
func New(store SessionStore, cfg Config, log *slog.Logger) *Queue {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:      store,
		cfg:        cfg,
		logger:     log.With("component", "training_queue"),
		baseCtx:    ctx,
		baseCancel: cancel,
		running:    make(map[Key]context.CancelFunc),
	}
}

// Initialize marks sessions left queued or running by a previous process as
// needing training.
func (q *Queue) Initialize(ctx context.Context) error {
	stale, err := q.store.ListTrainingSessions(ctx, string(StatusPending), string(StatusTraining))
	if err != nil {
		return fmt.Errorf("failed to list interrupted trainings: %w", err)
	}

	for _, s := range stale {
		s.Status = string(StatusNeedsTraining)
		s.Progress = 0
		s.Error = ""
		if err := q.store.SaveTrainingSession(ctx, s); err != nil {
			return fmt.Errorf("failed to reset interrupted training %s/%s: %w", s.BotID, s.Language, err)
		}
	}

	q.logger.InfoContext(ctx, "Training queue initialized", "reset_sessions", len(stale))
	return nil
}

// NeedsTraining records that the model of key is stale. A queued or running
// training of key is left untouched.
func (q *Queue) NeedsTraining(ctx context.Context, key Key) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errQueueClosed
	}
	if q.isQueuedLocked(key) {
		return nil
	}

	current, err := q.store.GetTrainingSession(ctx, key.BotID, key.Language)
	if err != nil {
		return err
	}
	if current != nil && current.Status == string(StatusNeedsTraining) {
		return nil
	}

	session := &database.TrainingSession{
		ID:       uuid.NewString(),
		BotID:    key.BotID,
		Language: key.Language,
		Status:   string(StatusNeedsTraining),
	}
	if current != nil {
		session.ID = current.ID
		session.CreatedAt = current.CreatedAt
	}
	if err := q.store.SaveTrainingSession(ctx, session); err != nil {
		return err
	}

	q.logger.InfoContext(ctx, "Model needs training", "key", key.String())
	return nil
}

// QueueTraining queues a training of key with trainer and dispatches it if a
// slot is free. Queueing a key that is already queued or running is a no-op.
func (q *Queue) QueueTraining(ctx context.Context, key Key, trainer Trainer) error {
	if trainer == nil {
		return fmt.Errorf("cannot queue training of %s without a trainer", key)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errQueueClosed
	}
	if q.isQueuedLocked(key) {
		q.mu.Unlock()
		q.logger.DebugContext(ctx, "Training already queued", "key", key.String())
		return nil
	}

	j := job{key: key, id: uuid.NewString(), trainer: trainer}
	err := q.store.SaveTrainingSession(ctx, &database.TrainingSession{
		ID:       j.id,
		BotID:    key.BotID,
		Language: key.Language,
		Status:   string(StatusPending),
	})
	if err != nil {
		q.mu.Unlock()
		return err
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "Training queued", "key", key.String(), "session_id", j.id)
	q.Dispatch(ctx)
	return nil
}

// Dispatch starts pending trainings while fewer than MaxConcurrent run. It
// returns the number of trainings started.
func (q *Queue) Dispatch(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	started := 0
	for !q.closed && len(q.pending) > 0 && len(q.running) < q.cfg.MaxConcurrent {
		j := q.pending[0]
		q.pending = q.pending[1:]

		trainCtx, cancel := q.trainingContext()
		q.running[j.key] = cancel
		q.wg.Add(1)
		go q.run(trainCtx, cancel, j)
		started++
	}

	if started > 0 {
		q.logger.DebugContext(ctx, "Dispatched trainings", "started", started, "running", len(q.running), "pending", len(q.pending))
	}
	return started
}

func (q *Queue) trainingContext() (context.Context, context.CancelFunc) {
	if q.cfg.Timeout > 0 {
		return context.WithTimeout(q.baseCtx, q.cfg.Timeout)
	}
	return context.WithCancel(q.baseCtx)
}

func (q *Queue) run(ctx context.Context, cancel context.CancelFunc, j job) {
	defer q.wg.Done()
	defer cancel()

	log := q.logger.With("key", j.key.String(), "session_id", j.id)
	session := &database.TrainingSession{
		ID:       j.id,
		BotID:    j.key.BotID,
		Language: j.key.Language,
		Status:   string(StatusTraining),
	}
	q.persist(session)
	log.Info("Training started")

	var (
		progressMu sync.Mutex
		lastSaved  float64
	)
	progress := func(p float64) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if p-lastSaved < progressMinDelta && p < 1 {
			return
		}
		lastSaved = p
		session.Progress = p
		q.persist(session)
	}

	err := j.trainer.Train(ctx, j.key.Language, progress)

	progressMu.Lock()
	switch {
	case err == nil:
		session.Status = string(StatusDone)
		session.Progress = 1
		log.Info("Training done")
	case errors.Is(err, context.Canceled):
		session.Status = string(StatusCanceled)
		log.Info("Training canceled")
	default:
		session.Status = string(StatusErrored)
		session.Error = err.Error()
		log.Error("Training failed", "error", err)
	}

	// the final status is saved before the key can be queued again
	q.mu.Lock()
	q.persist(session)
	delete(q.running, j.key)
	q.mu.Unlock()
	progressMu.Unlock()

	q.Dispatch(context.Background())
}

// persist saves session without the caller's context, which may be canceled.
func (q *Queue) persist(session *database.TrainingSession) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := q.store.SaveTrainingSession(ctx, session); err != nil {
		q.logger.Warn("Failed to persist training session",
			"key", Key{session.BotID, session.Language}.String(), "status", session.Status, "error", err)
	}
}

// CancelTraining cancels the queued or running training of key. Canceling a
// key with no such training is a no-op.
func (q *Queue) CancelTraining(ctx context.Context, key Key) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cancel, ok := q.running[key]; ok {
		cancel()
		q.logger.InfoContext(ctx, "Canceling running training", "key", key.String())
		return nil
	}

	idx := slices.IndexFunc(q.pending, func(j job) bool { return j.key == key })
	if idx < 0 {
		return nil
	}
	j := q.pending[idx]
	q.pending = slices.Delete(q.pending, idx, idx+1)

	q.logger.InfoContext(ctx, "Canceled queued training", "key", key.String())
	return q.store.SaveTrainingSession(ctx, &database.TrainingSession{
		ID:       j.id,
		BotID:    key.BotID,
		Language: key.Language,
		Status:   string(StatusCanceled),
	})
}

// GetTraining returns the session of key, or an idle session if none exists.
func (q *Queue) GetTraining(ctx context.Context, key Key) (Session, error) {
	stored, err := q.store.GetTrainingSession(ctx, key.BotID, key.Language)
	if err != nil {
		return Session{}, err
	}
	if stored == nil {
		return Session{BotID: key.BotID, Language: key.Language, Status: StatusIdle}, nil
	}
	return Session{
		ID:        stored.ID,
		BotID:     stored.BotID,
		Language:  stored.Language,
		Status:    Status(stored.Status),
		Progress:  stored.Progress,
		Error:     stored.Error,
		UpdatedAt: stored.UpdatedAt,
	}, nil
}

// Running returns the keys of the running trainings.
func (q *Queue) Running() []Key {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]Key, 0, len(q.running))
	for k := range q.running {
		keys = append(keys, k)
	}
	return keys
}

// Teardown stops accepting trainings, cancels the running ones and waits for
// them until ctx is done. Queued trainings stay persisted as pending and are
// reset by the next Initialize.
func (q *Queue) Teardown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	q.baseCancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.InfoContext(ctx, "Training queue torn down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("training queue teardown interrupted: %w", ctx.Err())
	}
}

func (q *Queue) isQueuedLocked(key Key) bool {
	if _, ok := q.running[key]; ok {
		return true
	}
	return slices.ContainsFunc(q.pending, func(j job) bool { return j.key == key })
}

var errQueueClosed = errors.New("training queue is closed")
