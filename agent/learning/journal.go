package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Journal is a durable, append-only log of execution outcomes.
type Journal interface {
	Append(ctx context.Context, outcome types.ExecutionOutcome) error
	Load(ctx context.Context, since time.Time) ([]types.ExecutionOutcome, error)
}

// OutcomeRecord is the persisted form of an ExecutionOutcome.
type OutcomeRecord struct {
	ID         uint      `gorm:"primaryKey"`
	AgentName  string    `gorm:"size:255;index;not null"`
	Domain     string    `gorm:"size:64;not null"`
	Success    bool      `gorm:"not null"`
	TokensUsed int       `gorm:"not null;default:0"`
	DurationMs int64     `gorm:"not null;default:0"`
	TaskID     string    `gorm:"size:255"`
	Error      string    `gorm:"type:text"`
	Timestamp  time.Time `gorm:"index;not null"`
}

// TableName pins the table name.
func (OutcomeRecord) TableName() string {
	return "execution_outcomes"
}

func recordFromOutcome(o types.ExecutionOutcome) *OutcomeRecord {
	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &OutcomeRecord{
		AgentName:  o.AgentName,
		Domain:     string(o.Domain),
		Success:    o.Success,
		TokensUsed: o.TokensUsed,
		DurationMs: o.Duration.Milliseconds(),
		TaskID:     o.TaskID,
		Error:      o.Error,
		Timestamp:  ts.UTC(),
	}
}

func (r *OutcomeRecord) toOutcome() types.ExecutionOutcome {
	return types.ExecutionOutcome{
		AgentName:  r.AgentName,
		Domain:     types.Domain(r.Domain),
		Success:    r.Success,
		TokensUsed: r.TokensUsed,
		Duration:   time.Duration(r.DurationMs) * time.Millisecond,
		Timestamp:  r.Timestamp,
		TaskID:     r.TaskID,
		Error:      r.Error,
	}
}

// GormJournal stores outcomes through GORM, so any dialect GORM supports
// (PostgreSQL, MySQL, SQLite) can back it.
type GormJournal struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Journal = (*GormJournal)(nil)

// NewGormJournal creates the journal and migrates its table.
func NewGormJournal(db *gorm.DB, logger *zap.Logger) (*GormJournal, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&OutcomeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate outcome journal: %w", err)
	}
	return &GormJournal{
		db:     db,
		logger: logger.With(zap.String("component", "outcome_journal")),
	}, nil
}

// Append persists one outcome.
func (j *GormJournal) Append(ctx context.Context, outcome types.ExecutionOutcome) error {
	if err := j.db.WithContext(ctx).Create(recordFromOutcome(outcome)).Error; err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// Load returns every outcome at or after since, oldest first.
func (j *GormJournal) Load(ctx context.Context, since time.Time) ([]types.ExecutionOutcome, error) {
	var records []OutcomeRecord
	err := j.db.WithContext(ctx).
		Where("timestamp >= ?", since.UTC()).
		Order("timestamp ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}

	outcomes := make([]types.ExecutionOutcome, len(records))
	for i := range records {
		outcomes[i] = records[i].toOutcome()
	}
	return outcomes, nil
}

// Prune deletes outcomes older than before and returns the number removed.
func (j *GormJournal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := j.db.WithContext(ctx).Where("timestamp < ?", before.UTC()).Delete(&OutcomeRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune outcomes: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		j.logger.Info("pruned outcome journal", zap.Int64("rows", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
