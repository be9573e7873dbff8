// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package state is the postgres-backed store. All schedule mutations for a
// date run inside one transaction holding that date's advisory lock; reads
// never take the lock. The database, not in-process locking, is the source
// of truth for domain invariants.
package state

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// advisoryClassSchedule namespaces the per-date advisory lock keys so other
// tooling sharing the database cannot collide with schedule mutations.
const advisoryClassSchedule = 7342

// StateStore wraps the database handle. The zero value is not usable; build
// one with Open or enter a transactional scope with WithDateLock.
type StateStore struct {
	db     *gorm.DB
	logger log.Logger
}

// Config carries the store's connection settings.
type Config struct {
	DatabaseURL string
	Logger      log.Logger
}

// Open connects to postgres and returns a ready store.
func Open(cfg Config) (*StateStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.Named("state")

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, structs.NewErrTransient("db_connect", "opening database: %v", err)
	}
	return &StateStore{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing handle; used by tests and schema bootstrap.
func NewWithDB(db *gorm.DB, logger log.Logger) *StateStore {
	if logger == nil {
		logger = log.Default()
	}
	return &StateStore{db: db, logger: logger.Named("state")}
}

// dateLockKey derives a stable 32-bit key for a date's advisory lock.
func dateLockKey(date time.Time) int32 {
	return int32(date.UTC().Unix() / 86400)
}

// Day truncates a timestamp to its UTC date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WithDateLock runs fn inside one transaction holding the advisory lock for
// the given date. The lock releases with the transaction; any error rolls
// the whole mutation back, leaving the schedule untouched.
func (s *StateStore) WithDateLock(ctx context.Context, date time.Time, fn func(tx *StateStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)",
			advisoryClassSchedule, dateLockKey(date)).Error; err != nil {
			return structs.NewErrTransient("date_lock", "acquiring schedule lock for %s: %v",
				date.Format("2006-01-02"), err)
		}
		return fn(&StateStore{db: tx, logger: s.logger})
	})
}

// WithTransaction runs fn inside a plain transaction, no advisory lock.
func (s *StateStore) WithTransaction(ctx context.Context, fn func(tx *StateStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&StateStore{db: tx, logger: s.logger})
	})
}

// forUpdate is the row-lock clause used by read-modify-write paths.
func forUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// translateErr maps database failures onto the core error taxonomy.
func translateErr(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return structs.NewErrNotFound(entity, id)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "could not serialize"),
		strings.Contains(msg, "connection"),
		errors.Is(err, context.DeadlineExceeded):
		return structs.NewErrTransient("db_contention", "%s: %v", entity, err)
	case strings.Contains(msg, "duplicate key"):
		return structs.NewErrStateRejection("duplicate", "%s already exists", entity)
	}
	return err
}
