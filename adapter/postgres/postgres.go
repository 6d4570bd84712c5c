// Package postgres looks principals up in PostgreSQL through the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/devmarvs/tokenauth/adapter"
	"github.com/devmarvs/tokenauth/entity"
)

// Driver is the database/sql driver name registered by pgx.
const Driver = "pgx"

const (
	defaultIDColumn     = "id"
	defaultTokenColumn  = "authentication_token"
	defaultQueryTimeout = 2 * time.Second
)

// Model is the base every model handled here implements.
type Model interface {
	TableName() string
}

// PoolOptions configures database connection pooling.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Options configures the store.
type Options struct {
	TablePrefix  string
	IDColumn     string
	TokenColumn  string
	QueryTimeout time.Duration
}

// Row is a principal row.
type Row struct {
	ID    string
	Token string
}

// PrincipalID implements adapter.Record.
func (r Row) PrincipalID() string { return r.ID }

// AuthenticationToken implements adapter.Record.
func (r Row) AuthenticationToken() string { return r.Token }

// Store finds principals in per-type tables.
type Store struct {
	db      *sql.DB
	options Options

	mu     sync.RWMutex
	tables map[string]string
}

var _ adapter.Adapter = (*Store)(nil)

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string, pool PoolOptions) (*sql.DB, error) {
	return OpenDriver(Driver, dsn, pool)
}

// OpenDriver opens a database with an arbitrary driver and applies pool options.
func OpenDriver(driver, dsn string, pool PoolOptions) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	pingTimeout := pool.PingTimeout
	if pingTimeout == 0 {
		pingTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// New creates a store backed by db.
func New(db *sql.DB, options Options) *Store {
	if options.IDColumn == "" {
		options.IDColumn = defaultIDColumn
	}
	if options.TokenColumn == "" {
		options.TokenColumn = defaultTokenColumn
	}
	if options.QueryTimeout <= 0 {
		options.QueryTimeout = defaultQueryTimeout
	}
	return &Store{db: db, options: options, tables: map[string]string{}}
}

// Bind maps a principal type to the table its model names.
func (s *Store) Bind(principalType string, model Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[entity.Underscore(principalType)] = model.TableName()
}

// Name implements adapter.Adapter.
func (s *Store) Name() string { return "postgres" }

// ModelsBaseClass implements adapter.Adapter.
func (s *Store) ModelsBaseClass() reflect.Type {
	return reflect.TypeOf((*Model)(nil)).Elem()
}

// Ping implements adapter.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres: store not initialized")
	}
	return s.db.PingContext(ctx)
}

// Table returns the table queried for a principal type: the bound model's
// table, else the prefixed plural of its underscored name.
func (s *Store) Table(ent entity.Entity) string {
	s.mu.RLock()
	table, ok := s.tables[ent.NameUnderscore]
	s.mu.RUnlock()
	if ok {
		return table
	}
	return s.options.TablePrefix + ent.NameUnderscore + "s"
}

// FindByIdentifier implements adapter.Adapter.
func (s *Store) FindByIdentifier(ctx context.Context, ent entity.Entity, identifier string) (adapter.Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("postgres: store not initialized")
	}

	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = $1 LIMIT 1",
		quoteIdent(s.options.IDColumn),
		quoteIdent(s.options.TokenColumn),
		quoteIdent(s.Table(ent)),
		quoteIdent(ent.IdentifierFieldName),
	)

	ctx, cancel := context.WithTimeout(ctx, s.options.QueryTimeout)
	defer cancel()

	var (
		row   Row
		token sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, query, identifier).Scan(&row.ID, &token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, adapter.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find %s: %w", ent.Name, err)
	}
	row.Token = token.String
	return row, nil
}

// quoteIdent quotes each dot-separated part of an identifier.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
