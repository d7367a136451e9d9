package journal

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	u "savecsv/internal/utils"
)

// Postgres stores entries in the csv_exports table.
type Postgres struct {
	db *sql.DB
}

const defaultRecentLimit = 50

// journalDB reuses one pool per DSN across NewPostgres calls.
var journalDB struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

func postgresPort(cfg u.PostgresConfig) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	return 5432
}

// postgresDSN accepts either a full postgres:// URL in Host or discrete fields.
func postgresDSN(cfg u.PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	switch {
	case cfg.Host == "":
		return "", fmt.Errorf("postgres host is empty")
	case cfg.Database == "":
		return "", fmt.Errorf("postgres database is empty")
	case cfg.User == "":
		return "", fmt.Errorf("postgres user is empty")
	}

	hostPort := cfg.Host
	port := postgresPort(cfg)
	switch {
	case strings.HasPrefix(hostPort, "["):
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	case strings.Count(hostPort, ":") >= 2:
		// bare IPv6 address
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	case !strings.Contains(hostPort, ":"):
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	dsn := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		dsn.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		dsn.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		q := dsn.Query()
		q.Set("sslmode", cfg.SSLMode)
		dsn.RawQuery = q.Encode()
	}
	return dsn.String(), nil
}

func getJournalDB(dsn string) (*sql.DB, error) {
	journalDB.Lock()
	defer journalDB.Unlock()

	if journalDB.db != nil && journalDB.dsn == dsn {
		return journalDB.db, nil
	}
	if journalDB.db != nil {
		_ = journalDB.db.Close()
		journalDB.db = nil
		journalDB.dsn = ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	journalDB.db = db
	journalDB.dsn = dsn
	return db, nil
}

// NewPostgres connects (or reuses the pool for the same DSN), pings and makes
// sure the table exists.
func NewPostgres(cfg u.PostgresConfig) (*Postgres, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := getJournalDB(dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS csv_exports (
			id BIGSERIAL PRIMARY KEY,
			member_code TEXT NOT NULL,
			path TEXT NOT NULL,
			rows INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			signed BOOLEAN NOT NULL DEFAULT false,
			request_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_csv_exports_member ON csv_exports (member_code, created_at DESC);`,
	}
	for _, stmt := range ddl {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO csv_exports (member_code, path, rows, bytes, signed, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		e.MemberCode, e.Path, e.Rows, e.Bytes, e.Signed, e.RequestID, e.At.UTC())
	return err
}

func (p *Postgres) Recent(ctx context.Context, memberCode string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT member_code, path, rows, bytes, signed, COALESCE(request_id, ''), created_at
		 FROM csv_exports WHERE member_code = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2;`,
		memberCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.MemberCode, &e.Path, &e.Rows, &e.Bytes, &e.Signed, &e.RequestID, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the pool and forgets it if it is the shared one.
func (p *Postgres) Close() error {
	journalDB.Lock()
	if journalDB.db == p.db {
		journalDB.db = nil
		journalDB.dsn = ""
	}
	journalDB.Unlock()
	return p.db.Close()
}
