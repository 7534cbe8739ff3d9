// Package storage persists the dev chain's contract storage in SQLite so a
// local chain survives restarts.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"

	"grocerybudget/internal/core"
	"grocerybudget/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteLedger struct {
	db *sql.DB
}

func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps the total and the expense rows consistent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Append stores rec at the next index and adds its amount to the running total.
func (l *SQLiteLedger) Append(ctx context.Context, rec core.ExpenseRecord) error {
	amount, ok := new(big.Int).SetString(rec.Amount, 10)
	if !ok {
		return fmt.Errorf("ledger amount %q is not a base-10 integer", rec.Amount)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT total_spent FROM ledger_totals WHERE id = 1`).Scan(&raw); err != nil {
		return fmt.Errorf("read total: %w", err)
	}
	total, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("stored total %q is corrupt", raw)
	}
	total.Add(total, amount)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (idx, item, amount, block_timestamp)
		 VALUES ((SELECT COUNT(*) FROM expenses), ?, ?, ?)`,
		rec.Item, amount.String(), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_totals SET total_spent = ? WHERE id = 1`, total.String()); err != nil {
		return fmt.Errorf("update total: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	idx, _ := res.LastInsertId()
	slog.DebugContext(ctx, "Expense stored in ledger",
		log.FieldComponent, log.ComponentStorage,
		"index", idx,
		log.FieldItem, rec.Item,
		log.FieldAmount, rec.Amount)
	return nil
}

func (l *SQLiteLedger) Totals(ctx context.Context) (*big.Int, int64, error) {
	var raw string
	var count int64
	err := l.db.QueryRowContext(ctx,
		`SELECT t.total_spent, (SELECT COUNT(*) FROM expenses) FROM ledger_totals t WHERE t.id = 1`).
		Scan(&raw, &count)
	if err != nil {
		return nil, 0, fmt.Errorf("read totals: %w", err)
	}
	total, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, 0, fmt.Errorf("stored total %q is corrupt", raw)
	}
	return total, count, nil
}

func (l *SQLiteLedger) Expense(ctx context.Context, index int64) (core.ExpenseRecord, error) {
	var rec core.ExpenseRecord
	err := l.db.QueryRowContext(ctx,
		`SELECT item, amount, block_timestamp FROM expenses WHERE idx = ?`, index).
		Scan(&rec.Item, &rec.Amount, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, fmt.Errorf("%w: %d", core.ErrExpenseNotFound, index)
	}
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("read expense %d: %w", index, err)
	}
	return rec, nil
}

// Ping reports whether the database is reachable.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
