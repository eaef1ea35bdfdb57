package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/pkg/metrics"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const sqlBackend = "sqlite"

type ratingRow struct {
	ParticipantID int64    `gorm:"column:participant_id;primaryKey;autoIncrement:false"`
	Mu            *float64 `gorm:"column:mu"`
	Sigma         *float64 `gorm:"column:sigma"`
}

// SQL is a gorm-backed Store with one table per mode.
type SQL struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the sqlite database at path and migrates
// every mode table.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQL(ctx, db)
}

// NewSQL wraps an open gorm connection and migrates every mode table.
func NewSQL(ctx context.Context, db *gorm.DB) (*SQL, error) {
	for _, mode := range model.Modes {
		if err := db.WithContext(ctx).Table(TableName(mode)).AutoMigrate(&ratingRow{}); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", TableName(mode), err)
		}
	}
	return &SQL{db: db}, nil
}

func (s *SQL) table(ctx context.Context, mode model.Mode) (*gorm.DB, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return s.db.WithContext(ctx).Table(TableName(mode)), nil
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStorageLatency(sqlBackend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordStorageError(sqlBackend, op)
	}
}

func (s *SQL) Get(ctx context.Context, mode model.Mode, id model.ParticipantID) (rec Record, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())

	tx, err := s.table(ctx, mode)
	if err != nil {
		return Record{}, err
	}
	var row ratingRow
	err = tx.Where("participant_id = ?", int64(id)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if row.Mu == nil || row.Sigma == nil {
		return Record{}, ErrNotFound
	}
	return Record{ParticipantID: id, Mu: *row.Mu, Sigma: *row.Sigma}, nil
}

func (s *SQL) Upsert(ctx context.Context, mode model.Mode, rec Record) error {
	return s.UpsertMany(ctx, mode, []Record{rec})
}

func (s *SQL) UpsertMany(ctx context.Context, mode model.Mode, recs []Record) (err error) {
	defer func(start time.Time) { observe("upsert", start, err) }(time.Now())

	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if len(recs) == 0 {
		return nil
	}
	rows := make([]ratingRow, len(recs))
	for i, r := range recs {
		mu, sigma := r.Mu, r.Sigma
		rows[i] = ratingRow{ParticipantID: int64(r.ParticipantID), Mu: &mu, Sigma: &sigma}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(TableName(mode)).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"mu", "sigma"}),
		}).Create(&rows).Error
	})
}

func (s *SQL) Clear(ctx context.Context, mode model.Mode, id model.ParticipantID) (err error) {
	defer func(start time.Time) { observe("clear", start, err) }(time.Now())

	tx, err := s.table(ctx, mode)
	if err != nil {
		return err
	}
	res := tx.Where("participant_id = ?", int64(id)).
		Updates(map[string]any{"mu": nil, "sigma": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Scan(ctx context.Context, mode model.Mode) (out []Record, err error) {
	defer func(start time.Time) { observe("scan", start, err) }(time.Now())

	tx, err := s.table(ctx, mode)
	if err != nil {
		return nil, err
	}
	var rows []ratingRow
	if err := tx.Where("mu IS NOT NULL AND sigma IS NOT NULL").
		Order("participant_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out = make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{ParticipantID: model.ParticipantID(r.ParticipantID), Mu: *r.Mu, Sigma: *r.Sigma}
	}
	return out, nil
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
