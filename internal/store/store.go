// Package store provides the schema-validated SQLite persistence layer for
// the media library: entries, metadata, and progress rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/spacesaver/internal/models"
)

// Store wraps a GORM connection to the state database. All operations are
// safe for concurrent use; SQLite serialises writes via WAL + busy_timeout.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open creates the database directory if needed, connects, and validates the
// schema, dropping and recreating it on drift.
func Open(path, logLevel string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := open(path, logLevel, log)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, logger: log}
	valid, err := s.ValidateSchema()
	if err != nil {
		return nil, fmt.Errorf("validating schema: %w", err)
	}
	if valid {
		log.Info("database schema validated", slog.String("path", path))
	} else {
		log.Warn("database schema mismatch, dropped and recreated", slog.String("path", path))
	}

	return s, nil
}

func open(path, logLevel string, log *slog.Logger) (*gorm.DB, error) {
	// Pure Go SQLite driver (github.com/glebarez/sqlite -> modernc.org/sqlite).
	// PRAGMAs go through the DSN so they apply to every pooled connection.
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=busy_timeout(30000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 newGormLogger(logLevel, log),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// ValidateSchema compares the live table definitions against the canonical
// schema. On any mismatch or missing table it drops all tables and recreates
// them. Returns true iff the schema was already valid.
func (s *Store) ValidateSchema() (bool, error) {
	type masterRow struct {
		Name string
		SQL  string `gorm:"column:sql"`
	}

	var rows []masterRow
	err := s.db.Raw(
		"SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name IN (?, ?, ?)",
		"entries", "metadata", "progress",
	).Scan(&rows).Error
	if err != nil {
		return false, fmt.Errorf("reading sqlite_master: %w", err)
	}

	existing := make(map[string]string, len(rows))
	for _, r := range rows {
		existing[r.Name] = normaliseSQL(r.SQL)
	}

	match := len(existing) == len(expectedTables)
	for name, expected := range expectedTables {
		if existing[name] != normaliseSQL(expected) {
			match = false
			break
		}
	}
	if match {
		return true, nil
	}

	for _, stmt := range dropStatements {
		if err := s.db.Exec(stmt).Error; err != nil {
			return false, fmt.Errorf("dropping table: %w", err)
		}
	}
	for _, stmt := range createStatements {
		if err := s.db.Exec(stmt).Error; err != nil {
			return false, fmt.Errorf("creating schema: %w", err)
		}
	}
	return false, nil
}

// InsertNewFile inserts an entry, its metadata rows, and a fresh PENDING
// progress row in one transaction. The entry and progress inserts ignore
// conflicts; metadata rows are replaced.
func (s *Store) InsertNewFile(ctx context.Context, entry *models.Entry, metas []*models.Metadata) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error; err != nil {
			return fmt.Errorf("inserting entry: %w", err)
		}
		for _, meta := range metas {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(meta).Error; err != nil {
				return fmt.Errorf("inserting metadata: %w", err)
			}
		}
		progress := models.NewProgress(entry.UUID)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(progress).Error; err != nil {
			return fmt.Errorf("inserting progress: %w", err)
		}
		return nil
	})
}

// GetEntryByUUID returns the entry with the given uuid, or nil if not found.
func (s *Store) GetEntryByUUID(ctx context.Context, uuid string) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).Where("uuid = ?", uuid).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting entry by uuid: %w", err)
	}
	return &entry, nil
}

// GetEntryByHashAndPath returns the entry matching both hash and path, or nil
// if not found. The pair is the dedup identity of a file.
func (s *Store) GetEntryByHashAndPath(ctx context.Context, hash, path string) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).Where("hash = ? AND path = ?", hash, path).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting entry by hash and path: %w", err)
	}
	return &entry, nil
}

// ListEntries returns all entries in insertion order.
func (s *Store) ListEntries(ctx context.Context) ([]models.Entry, error) {
	var entries []models.Entry
	if err := s.db.WithContext(ctx).Order("rowid ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return entries, nil
}

// UpsertMetadata inserts or replaces a metadata row.
func (s *Store) UpsertMetadata(ctx context.Context, meta *models.Metadata) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(meta).Error; err != nil {
		return fmt.Errorf("upserting metadata: %w", err)
	}
	return nil
}

// GetMetadata returns the metadata row of the given kind, or nil if not found.
func (s *Store) GetMetadata(ctx context.Context, uuid string, kind models.MetadataKind) (*models.Metadata, error) {
	var meta models.Metadata
	err := s.db.WithContext(ctx).Where("uuid = ? AND kind = ?", uuid, kind).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting metadata: %w", err)
	}
	return &meta, nil
}

// GetAllMetadata returns every metadata row for an entry.
func (s *Store) GetAllMetadata(ctx context.Context, uuid string) ([]models.Metadata, error) {
	var metas []models.Metadata
	if err := s.db.WithContext(ctx).Where("uuid = ?", uuid).Find(&metas).Error; err != nil {
		return nil, fmt.Errorf("getting all metadata: %w", err)
	}
	return metas, nil
}

// GetProgress returns the progress row for an entry, or nil if not found.
func (s *Store) GetProgress(ctx context.Context, uuid string) (*models.Progress, error) {
	var progress models.Progress
	err := s.db.WithContext(ctx).Where("uuid = ?", uuid).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting progress: %w", err)
	}
	return &progress, nil
}

// SetStatus updates only the status field of a progress row.
func (s *Store) SetStatus(ctx context.Context, uuid string, status models.Status) error {
	err := s.db.WithContext(ctx).Model(&models.Progress{}).
		Where("uuid = ?", uuid).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("setting status: %w", err)
	}
	return nil
}

// progressColumns is the set of progress fields UpdateProgress may touch.
var progressColumns = map[string]bool{
	"status":        true,
	"progress":      true,
	"frame_current": true,
	"frame_total":   true,
	"workfile":      true,
}

// UpdateProgress applies a partial update to a progress row. Unknown fields
// are silently dropped; a nil "workfile" value clears the column.
func (s *Store) UpdateProgress(ctx context.Context, uuid string, fields map[string]any) error {
	updates := make(map[string]any, len(fields))
	for k, v := range fields {
		if progressColumns[k] {
			updates[k] = v
		}
	}
	if len(updates) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.Progress{}).
		Where("uuid = ?", uuid).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	return nil
}

// CountByStatus returns the number of progress rows per status.
func (s *Store) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	type statusCount struct {
		Status models.Status
		Count  int64
	}
	var rows []statusCount
	err := s.db.WithContext(ctx).Model(&models.Progress{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting by status: %w", err)
	}
	counts := make(map[models.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// HasActiveQueue returns true iff any progress row is QUEUED or IN_PROGRESS.
func (s *Store) HasActiveQueue(ctx context.Context) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Progress{}).
		Where("status IN ?", []models.Status{models.StatusQueued, models.StatusInProgress}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking active queue: %w", err)
	}
	return count > 0, nil
}

// QueryBestCandidate returns the largest PENDING entry, ties broken by
// insertion order, or nil when nothing is pending.
func (s *Store) QueryBestCandidate(ctx context.Context) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).Model(&models.Entry{}).
		Joins("JOIN progress ON progress.uuid = entries.uuid").
		Where("progress.status = ?", models.StatusPending).
		Order("entries.size DESC, entries.rowid ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying best candidate: %w", err)
	}
	return &entry, nil
}

// EnqueueEntry flips an entry's progress row to QUEUED unless it is already
// QUEUED or IN_PROGRESS. Guard and flip are a single statement, so of any set
// of concurrent callers exactly one can win. Returns true iff the row was
// flipped.
func (s *Store) EnqueueEntry(ctx context.Context, uuid string) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		"UPDATE progress SET status = ? WHERE uuid = ? AND status NOT IN (?, ?)",
		models.StatusQueued, uuid, models.StatusQueued, models.StatusInProgress,
	)
	if res.Error != nil {
		return false, fmt.Errorf("queueing entry: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// EnqueueBestCandidate queues the largest PENDING entry, ties broken by
// insertion order. The candidate pick and the no-active-queue guard are
// evaluated inside the UPDATE itself, in one transaction with the read-back,
// so concurrent callers cannot all observe an idle queue and win together.
// Returns the queued entry, or nil when nothing was queued.
func (s *Store) EnqueueBestCandidate(ctx context.Context) (*models.Entry, error) {
	var entry *models.Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`UPDATE progress SET status = ?
			WHERE uuid = (
				SELECT entries.uuid FROM entries
				JOIN progress ON progress.uuid = entries.uuid
				WHERE progress.status = ?
				ORDER BY entries.size DESC, entries.rowid ASC
				LIMIT 1
			)
			AND NOT EXISTS (SELECT 1 FROM progress WHERE status IN (?, ?))`,
			models.StatusQueued, models.StatusPending,
			models.StatusQueued, models.StatusInProgress,
		)
		if res.Error != nil {
			return fmt.Errorf("queueing best candidate: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		// The guard held, so the row just flipped is the only QUEUED one.
		var e models.Entry
		err := tx.Model(&models.Entry{}).
			Joins("JOIN progress ON progress.uuid = entries.uuid").
			Where("progress.status = ?", models.StatusQueued).
			First(&e).Error
		if err != nil {
			return fmt.Errorf("loading queued candidate: %w", err)
		}
		entry = &e
		return nil
	})
	return entry, err
}

// PickNextQueued returns the oldest-inserted QUEUED entry, or nil when the
// queue is empty.
func (s *Store) PickNextQueued(ctx context.Context) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).Model(&models.Entry{}).
		Joins("JOIN progress ON progress.uuid = entries.uuid").
		Where("progress.status = ?", models.StatusQueued).
		Order("entries.rowid ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("picking next queued: %w", err)
	}
	return &entry, nil
}

// ResetInProgress reverts every IN_PROGRESS row to PENDING with progress and
// workfile cleared. Used by the startup recovery hook after a crash.
func (s *Store) ResetInProgress(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Progress{}).
		Where("status = ?", models.StatusInProgress).
		Updates(map[string]any{
			"status":   models.StatusPending,
			"progress": 0.0,
			"workfile": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("resetting in-progress rows: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// newGormLogger adapts GORM's logger interface onto slog.
func newGormLogger(level string, log *slog.Logger) logger.Interface {
	return &slogGormLogger{logger: log, level: gormLogLevel(level)}
}

// gormLogLevel maps string log levels to GORM logger levels.
func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// slogGormLogger implements GORM's logger.Interface using slog.
type slogGormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

// slowQueryThreshold defines when a query is considered slow.
const slowQueryThreshold = time.Second

func (l *slogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &slogGormLogger{logger: l.logger, level: level}
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sqlStr, rows := fc()
		l.logger.ErrorContext(ctx, "database error",
			slog.String("sql", sqlStr),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		sqlStr, rows := fc()
		l.logger.WarnContext(ctx, "slow query",
			slog.String("sql", sqlStr),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	case l.level >= logger.Info:
		sqlStr, rows := fc()
		l.logger.DebugContext(ctx, "database query",
			slog.String("sql", sqlStr),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}
