package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gwi.com/chatbot-backend/internal/errs"
)

// Store is the persistence layer. A Store returned by Open is bound to the
// connection pool; the one handed to a Transaction callback is bound to that
// transaction.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open connects to DATABASE_URL. Postgres URLs/DSNs get the pgvector
// dialect; anything else is treated as a SQLite file or URI.
func Open(databaseURL string, logger zerolog.Logger) (*Store, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(gormWriter{log: logger}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	if IsPostgresURL(databaseURL) {
		db, err = gorm.Open(postgres.Open(databaseURL), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return nil, fmt.Errorf("failed to enable pgvector: %w", err)
		}
	} else {
		sqlDB, err := sql.Open("sqlite3", sqliteDSN(databaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// One writer at a time; also keeps shared in-memory databases alive.
		sqlDB.SetMaxOpenConns(1)
		db, err = gorm.Open(sqlite.New(sqlite.Config{Conn: sqlDB}), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
	}

	s := &Store{db: db, log: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// IsPostgresURL reports whether databaseURL points at Postgres.
func IsPostgresURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") ||
		strings.HasPrefix(databaseURL, "postgresql://") ||
		strings.Contains(databaseURL, "host=")
}

func sqliteDSN(databaseURL string) string {
	dsn := databaseURL
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(&User{}, &Conversation{}, &Message{}, &MessageEmbedding{})
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

// Transaction runs fn as one unit of work. Any error or panic rolls back.
// Errors that already carry a kind pass through untouched; anything else is
// reported as a storage error.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
	if err == nil {
		return nil
	}
	if errs.Kind(err) != nil {
		return err
	}
	return errs.Wrap(errs.ErrStorage, err, "transaction failed")
}

func storageErr(err error, format string, args ...any) error {
	return errs.Wrap(errs.ErrStorage, err, format, args...)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// gormWriter routes gorm's logger through zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Str("component", "gorm").Msgf(format, args...)
}
