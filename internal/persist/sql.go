package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Suraj-creation/Sysmind-CLI/internal/alerts"
	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// SampleRow is one stored sample.
type SampleRow struct {
	ID        uint      `gorm:"primaryKey"`
	Metric    string    `gorm:"column:metric_name;not null;index:idx_samples_metric_ts,priority:1"`
	Timestamp time.Time `gorm:"column:ts;not null;index:idx_samples_metric_ts,priority:2"`
	Value     float64   `gorm:"column:value;not null"`
}

func (SampleRow) TableName() string { return "samples" }

// BaselineRow is the stored form of a baseline. There is one row per metric.
type BaselineRow struct {
	Metric      string    `gorm:"column:metric_name;primaryKey"`
	Mean        float64   `gorm:"column:mean;not null"`
	StdDev      float64   `gorm:"column:std_dev;not null"`
	Min         float64   `gorm:"column:min_value;not null"`
	Max         float64   `gorm:"column:max_value;not null"`
	P95         float64   `gorm:"column:p95;not null"`
	SampleCount int       `gorm:"column:sample_count;not null"`
	ComputedAt  time.Time `gorm:"column:computed_at;not null"`
	UpdatedAt   time.Time
}

func (BaselineRow) TableName() string { return "baselines" }

// AlertRow is one fired or resolved alert.
type AlertRow struct {
	ID         string     `gorm:"column:id;primaryKey"`
	RuleName   string     `gorm:"column:rule_name;not null;index"`
	Severity   string     `gorm:"column:severity;not null"`
	State      string     `gorm:"column:state;not null"`
	Message    string     `gorm:"column:message"`
	Value      float64    `gorm:"column:value"`
	FiredAt    time.Time  `gorm:"column:fired_at;not null;index"`
	ResolvedAt *time.Time `gorm:"column:resolved_at"`
}

func (AlertRow) TableName() string { return "alerts" }

func toBaselineRow(b baseline.Baseline) BaselineRow {
	return BaselineRow{
		Metric:      b.Metric,
		Mean:        b.Mean,
		StdDev:      b.StdDev,
		Min:         b.Min,
		Max:         b.Max,
		P95:         b.P95,
		SampleCount: b.SampleCount,
		ComputedAt:  b.ComputedAt,
	}
}

func (r BaselineRow) baseline() baseline.Baseline {
	return baseline.Baseline{
		Metric:      r.Metric,
		Mean:        r.Mean,
		StdDev:      r.StdDev,
		Min:         r.Min,
		Max:         r.Max,
		P95:         r.P95,
		SampleCount: r.SampleCount,
		ComputedAt:  r.ComputedAt.UTC(),
	}
}

func toAlertRow(a alerts.Alert) AlertRow {
	return AlertRow{
		ID:         a.ID,
		RuleName:   a.RuleName,
		Severity:   a.Severity,
		State:      a.State,
		Message:    a.Message,
		Value:      a.Value,
		FiredAt:    a.FiredAt,
		ResolvedAt: a.ResolvedAt,
	}
}

// SQL stores samples, baselines and alerts in a relational database through
// gorm. Tables are created or migrated when the backend is opened.
type SQL struct {
	db *gorm.DB
}

// OpenPostgres connects to PostgreSQL using dsn and migrates the schema.
func OpenPostgres(dsn string) (*SQL, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("persist: open postgres: %w", err)
	}
	return NewSQL(db)
}

// NewSQL wraps an open gorm handle and migrates the schema.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&SampleRow{}, &BaselineRow{}, &AlertRow{}); err != nil {
		return nil, fmt.Errorf("persist: migrate: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) SaveBaseline(ctx context.Context, b baseline.Baseline) error {
	row := toBaselineRow(b)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "metric_name"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("persist: save baseline %s: %w", b.Metric, err)
	}
	return nil
}

func (s *SQL) LoadBaseline(ctx context.Context, metric string) (baseline.Baseline, bool, error) {
	var row BaselineRow
	err := s.db.WithContext(ctx).Where("metric_name = ?", metric).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return baseline.Baseline{}, false, nil
	}
	if err != nil {
		return baseline.Baseline{}, false, fmt.Errorf("persist: load baseline %s: %w", metric, err)
	}
	return row.baseline(), true, nil
}

func (s *SQL) ListBaselines(ctx context.Context) ([]baseline.Baseline, error) {
	var rows []BaselineRow
	if err := s.db.WithContext(ctx).Order("metric_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persist: list baselines: %w", err)
	}
	out := make([]baseline.Baseline, len(rows))
	for i, r := range rows {
		out[i] = r.baseline()
	}
	return out, nil
}

func (s *SQL) DeleteBaseline(ctx context.Context, metric string) error {
	err := s.db.WithContext(ctx).Where("metric_name = ?", metric).Delete(&BaselineRow{}).Error
	if err != nil {
		return fmt.Errorf("persist: delete baseline %s: %w", metric, err)
	}
	return nil
}

func (s *SQL) AppendSample(ctx context.Context, smp samples.Sample) error {
	row := SampleRow{Metric: smp.Metric, Timestamp: smp.Timestamp, Value: smp.Value}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("persist: append sample %s: %w", smp.Metric, err)
	}
	return nil
}

func (s *SQL) QuerySamples(ctx context.Context, metric string, r samples.Range) ([]samples.Sample, error) {
	q := s.db.WithContext(ctx).Where("metric_name = ?", metric)
	if !r.From.IsZero() {
		q = q.Where("ts >= ?", r.From)
	}
	if !r.To.IsZero() {
		q = q.Where("ts <= ?", r.To)
	}
	var rows []SampleRow
	if err := q.Order("ts, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persist: query %s: %w", metric, err)
	}
	out := make([]samples.Sample, len(rows))
	for i, row := range rows {
		out[i] = samples.Sample{Metric: row.Metric, Timestamp: row.Timestamp.UTC(), Value: row.Value}
	}
	return out, nil
}

func (s *SQL) Prune(ctx context.Context, before time.Time) error {
	if err := s.db.WithContext(ctx).Where("ts < ?", before).Delete(&SampleRow{}).Error; err != nil {
		return fmt.Errorf("persist: prune: %w", err)
	}
	return nil
}

// RecordAlert inserts a or, for an alert already stored, updates its state.
func (s *SQL) RecordAlert(ctx context.Context, a alerts.Alert) error {
	row := toAlertRow(a)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "resolved_at", "message", "value"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("persist: record alert %s: %w", a.ID, err)
	}
	return nil
}

// Alerts returns up to limit stored alerts, most recently fired first.
func (s *SQL) Alerts(ctx context.Context, limit int) ([]alerts.Alert, error) {
	var rows []AlertRow
	q := s.db.WithContext(ctx).Order("fired_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persist: list alerts: %w", err)
	}
	out := make([]alerts.Alert, len(rows))
	for i, r := range rows {
		out[i] = alerts.Alert{
			ID:         r.ID,
			RuleName:   r.RuleName,
			Severity:   r.Severity,
			State:      r.State,
			Message:    r.Message,
			Value:      r.Value,
			FiredAt:    r.FiredAt.UTC(),
			ResolvedAt: r.ResolvedAt,
		}
	}
	return out, nil
}

// Ping checks that the database is reachable.
func (s *SQL) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
