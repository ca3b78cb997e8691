// Package db provides the SQLite storage used by the bot: accounts, per-user
// data records, trade history and the mock-mode book.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUserIDRequired = errors.New("user is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// UserQueries provides user-isolated database queries. Users are keyed by
// their lower-cased email.
type UserQueries struct {
	db *sql.DB
}

// NewUserQueries creates a new UserQueries instance.
func NewUserQueries(db *sql.DB) *UserQueries {
	return &UserQueries{db: db}
}

// Queries returns user-isolated queries over d.
func (d *Database) Queries() *UserQueries {
	return NewUserQueries(d.DB)
}

// UserData is the serialized per-user record.
type UserData struct {
	Email     string
	Data      string
	UpdatedAt time.Time
}

// TradeHistory is one order outcome produced by a trading session.
type TradeHistory struct {
	ID        string
	UserEmail string
	Exchange  string
	Symbol    string
	Action    string
	Quantity  float64
	Price     float64
	Reason    string
	Status    string
	OrderID   string
	CreatedAt time.Time
}

// ----------------------------------------
// User data
// ----------------------------------------

// GetUserData returns the stored record for email or ErrNotFound.
func (q *UserQueries) GetUserData(ctx context.Context, email string) (*UserData, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrUserIDRequired
	}

	var u UserData
	err := q.db.QueryRowContext(ctx, `
		SELECT email, data, updated_at FROM user_data WHERE email = ?
	`, email).Scan(&u.Email, &u.Data, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user data: %w", err)
	}
	return &u, nil
}

// SaveUserData replaces the stored record for email.
func (q *UserQueries) SaveUserData(ctx context.Context, email, data string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO user_data (email, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, email, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save user data: %w", err)
	}
	return nil
}

// ----------------------------------------
// Trade history
// ----------------------------------------

// InsertTradeHistory writes rows in a single transaction. Every row must
// carry its user.
func (q *UserQueries) InsertTradeHistory(ctx context.Context, rows []TradeHistory) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r.UserEmail == "" {
			return ErrUserIDRequired
		}
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO trade_history (
			id, user_email, exchange, symbol, action, quantity, price, reason, status, order_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare trade history: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, strings.ToLower(r.UserEmail), r.Exchange, r.Symbol,
			r.Action, r.Quantity, r.Price, r.Reason, r.Status, r.OrderID, r.CreatedAt); err != nil {
			return fmt.Errorf("insert trade history %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// GetTradeHistoryByUser returns the newest rows of one user first.
func (q *UserQueries) GetTradeHistoryByUser(ctx context.Context, email string, limit int) ([]TradeHistory, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_email, exchange, symbol, action, quantity, price,
		       COALESCE(reason, ''), status, COALESCE(order_id, ''), created_at
		FROM trade_history
		WHERE user_email = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, email, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	var res []TradeHistory
	for rows.Next() {
		var t TradeHistory
		if err := rows.Scan(&t.ID, &t.UserEmail, &t.Exchange, &t.Symbol, &t.Action, &t.Quantity,
			&t.Price, &t.Reason, &t.Status, &t.OrderID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade history: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
