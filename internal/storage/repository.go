package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"halfmonth/internal/core"
	"halfmonth/internal/store"
)

// Repository is the SQL backend for every store port. The same queries
// serve SQLite and PostgreSQL; placeholders are rebound per dialect.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ store.Store = (*Repository)(nil)

// NewSQLiteRepository opens (creating if needed) a SQLite database file and
// migrates it.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	repo, err := Open(context.Background(), SQLite, sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}
	repo.db.SetMaxOpenConns(1)
	return repo, nil
}

// NewPostgresRepository connects to PostgreSQL and migrates the schema.
func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	return Open(ctx, Postgres, dsn)
}

// Open connects with the dialect's driver, pings, and runs migrations.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	if !dialect.valid() {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{db: db, dialect: dialect, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, r.dialect.rebind(query), args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) GetPeriod(ctx context.Context, userID string, key core.PeriodKey) (core.Period, error) {
	var balance string
	err := r.db.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT bank_balance FROM periods WHERE user_id = ? AND period_key = ?`),
		userID, key.String(),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Period{}, store.ErrNotFound
	}
	if err != nil {
		return core.Period{}, fmt.Errorf("get period: %w", err)
	}

	p := core.NewPeriod(key)
	if p.BankBalance, err = decimal.NewFromString(balance); err != nil {
		return core.Period{}, fmt.Errorf("parse bank balance %q: %w", balance, err)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(`
		SELECT id, description, amount, category
		FROM expenses
		WHERE user_id = ? AND period_key = ?
		ORDER BY position`), userID, key.String())
	if err != nil {
		return core.Period{}, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return core.Period{}, err
		}
		p.Expenses = append(p.Expenses, e)
	}
	if err := rows.Err(); err != nil {
		return core.Period{}, fmt.Errorf("iterate expenses: %w", err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner, extra ...any) (core.Expense, error) {
	var (
		e        core.Expense
		amount   string
		category string
	)
	dest := append(extra, &e.ID, &e.Description, &amount, &category)
	if err := s.Scan(dest...); err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.Amount = d
	e.Category = core.Category(category).OrDefault()
	return e, nil
}

// ListPeriods returns every well-formed period of the user in
// chronological order. Rows with a malformed key are skipped with a
// warning.
func (r *Repository) ListPeriods(ctx context.Context, userID string) ([]core.Period, error) {
	rows, err := r.db.QueryContext(ctx,
		r.dialect.rebind(`SELECT period_key, bank_balance FROM periods WHERE user_id = ?`), userID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	byKey := make(map[string]*core.Period)
	var keys []core.PeriodKey
	for rows.Next() {
		var rawKey, balance string
		if err := rows.Scan(&rawKey, &balance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan period: %w", err)
		}
		key, err := core.ParsePeriodKey(rawKey)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed period key", "user_id", userID, "period_key", rawKey)
			continue
		}
		p := core.NewPeriod(key)
		if p.BankBalance, err = decimal.NewFromString(balance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse bank balance %q: %w", balance, err)
		}
		byKey[key.String()] = &p
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate periods: %w", err)
	}

	erows, err := r.db.QueryContext(ctx, r.dialect.rebind(`
		SELECT period_key, id, description, amount, category
		FROM expenses
		WHERE user_id = ?
		ORDER BY period_key, position`), userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var rawKey string
		e, err := scanExpense(erows, &rawKey)
		if err != nil {
			return nil, err
		}
		key, err := core.ParsePeriodKey(rawKey)
		if err != nil {
			continue
		}
		if p, ok := byKey[key.String()]; ok {
			p.Expenses = append(p.Expenses, e)
		}
	}
	if err := erows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}

	core.SortKeys(keys, false)
	out := make([]core.Period, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k.String()])
	}
	return out, nil
}

// PutPeriod upserts the period row and replaces its expense list in one
// transaction, preserving list order.
func (r *Repository) PutPeriod(ctx context.Context, userID string, p core.Period) error {
	if !p.Key.Valid() {
		return core.ErrInvalidPeriodKey
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	key := p.Key.String()
	if _, err := r.exec(ctx, tx, `
		INSERT INTO periods (user_id, period_key, bank_balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, period_key)
		DO UPDATE SET bank_balance = excluded.bank_balance, updated_at = excluded.updated_at`,
		userID, key, p.BankBalance.StringFixed(2), r.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("upsert period: %w", err)
	}

	if _, err := r.exec(ctx, tx, `DELETE FROM expenses WHERE user_id = ? AND period_key = ?`, userID, key); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}

	for i, e := range p.Expenses {
		if _, err := r.exec(ctx, tx, `
			INSERT INTO expenses (user_id, period_key, position, id, description, amount, category)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, key, i, e.ID, e.Description, e.Amount.StringFixed(2), string(e.Category.OrDefault()),
		); err != nil {
			return fmt.Errorf("insert expense %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit period: %w", err)
	}
	return nil
}

func (r *Repository) DeletePeriod(ctx context.Context, userID string, key core.PeriodKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.exec(ctx, tx, `DELETE FROM expenses WHERE user_id = ? AND period_key = ?`, userID, key.String()); err != nil {
		return fmt.Errorf("delete expenses: %w", err)
	}
	res, err := r.exec(ctx, tx, `DELETE FROM periods WHERE user_id = ? AND period_key = ?`, userID, key.String())
	if err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}
