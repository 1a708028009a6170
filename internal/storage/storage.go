package storage

import (
	"embed"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/bwmarrin/snowflake"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// discordEpoch is the Discord snowflake epoch in milliseconds.
const discordEpoch = 1420070400000

var ErrNotFound = errors.New("record not found")

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	snowflake.Epoch = discordEpoch
}

type Store struct {
	db  *sqlx.DB
	ids *snowflake.Node
	now func() time.Time
}

// New opens the SQLite database at dbPath. ":memory:" gives a private
// in-memory database, which is what tests use.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// one connection: an in-memory database lives per connection, and
	// SQLite serialises writers anyway
	db.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "snowflake node")
	}
	return &Store{db: db, ids: node, now: time.Now}, nil
}

func dsn(dbPath string) string {
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file:") {
		return dbPath
	}
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// WithClock replaces the time source used for timestamps.
func (s *Store) WithClock(now func() time.Time) {
	s.now = now
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	driver, err := sqlitemigrate.WithInstance(s.db.DB, &sqlitemigrate.Config{})
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "migration runner")
	}
	// m.Close would close the shared *sql.DB through the driver
	defer source.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) nextID() int64 {
	return s.ids.Generate().Int64()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
