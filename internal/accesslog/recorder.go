package accesslog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("accesslog: database handle is required")

// AccessRecord is one public subscription request. Only the first characters
// of the token are stored so the log itself never becomes a credential leak.
type AccessRecord struct {
	ID           string    `gorm:"primaryKey"`
	TokenPrefix  string    `gorm:"index"`
	CustomerName string    `gorm:""`
	Format       string    `gorm:""`
	ClientIP     string    `gorm:""`
	UserAgent    string    `gorm:""`
	StatusCode   int       `gorm:""`
	CreatedAt    time.Time `gorm:"index"`
}

// RecorderConfig describes the dependencies of the access recorder.
type RecorderConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Recorder appends public-endpoint access records to the audit database.
type Recorder struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewRecorder constructs the recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Record persists one access record, assigning its id and timestamp.
func (r *Recorder) Record(ctx context.Context, record AccessRecord) error {
	record.ID = uuid.NewString()
	record.CreatedAt = r.clock().UTC()
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		r.logger.Error("access record insert failed",
			zap.String("token_prefix", record.TokenPrefix),
			zap.Error(err))
		return err
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]AccessRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []AccessRecord
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
