// Package dircache persists resolved Drive folder ids between runs.
package dircache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/avataroor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const memoryPath = ":memory:"

// Store provides persistence for cached directory ids.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Get returns the entry for account, or nil when none is cached.
	Get(ctx context.Context, account string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, account string) error
	// Clear removes every entry and returns how many were removed.
	Clear(ctx context.Context) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DirectoryCacheConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DirectoryCacheConfig,
) Store {
	return &store{
		log: log.WithField("component", "dircache"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		path, err := s.cfg.SQLite.DatabasePath()
		if err != nil {
			return err
		}

		if path != memoryPath {
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("creating cache directory: %w", err)
			}
		}

		dialector = sqlite.Open(path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening cache database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("running cache migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Debug("Directory cache connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) Get(ctx context.Context, account string) (*Entry, error) {
	var entry Entry

	err := s.db.WithContext(ctx).
		Where("account = ?", account).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("getting cache entry: %w", err)
	}

	return &entry, nil
}

// Put inserts or updates the entry keyed by account.
func (s *store) Put(ctx context.Context, entry *Entry) error {
	if entry.Account == "" {
		return errors.New("cache entry has no account")
	}

	result := s.db.WithContext(ctx).
		Where("account = ?", entry.Account).
		Assign(Entry{
			RootID:    entry.RootID,
			ScenesID:  entry.ScenesID,
			AvatarsID: entry.AvatarsID,
			PropsID:   entry.PropsID,
		}).
		FirstOrCreate(entry)
	if result.Error != nil {
		return fmt.Errorf("upserting cache entry: %w", result.Error)
	}

	return nil
}

func (s *store) Delete(ctx context.Context, account string) error {
	if err := s.db.WithContext(ctx).
		Where("account = ?", account).
		Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}

	return nil
}

func (s *store) Clear(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&Entry{})
	if result.Error != nil {
		return 0, fmt.Errorf("clearing cache: %w", result.Error)
	}

	return result.RowsAffected, nil
}
