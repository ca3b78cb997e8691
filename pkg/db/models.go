package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User represents an application user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Position tracks the mock-mode net position per symbol.
type Position struct {
	Symbol    string
	Qty       float64
	AvgPrice  float64
	UpdatedAt time.Time
}

// MockTrade is one simulated fill.
type MockTrade struct {
	ID          string
	Symbol      string
	Side        string
	Qty         float64
	Price       float64
	RealizedPnL float64
	CreatedAt   time.Time
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UpsertPosition writes the position for p.Symbol.
func (d *Database) UpsertPosition(ctx context.Context, p Position) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (symbol, qty, avg_price, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			qty = excluded.qty,
			avg_price = excluded.avg_price,
			updated_at = excluded.updated_at
	`, p.Symbol, p.Qty, p.AvgPrice, p.UpdatedAt)
	return err
}

// ListPositions returns every stored position.
func (d *Database) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, qty, avg_price, updated_at
		FROM positions ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Symbol, &p.Qty, &p.AvgPrice, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CreateMockTrade inserts a simulated fill.
func (d *Database) CreateMockTrade(ctx context.Context, t MockTrade) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO mock_trades (id, symbol, side, qty, price, realized_pnl, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Symbol, t.Side, t.Qty, t.Price, t.RealizedPnL, t.CreatedAt)
	return err
}

// ListMockTrades returns the newest simulated fills first.
func (d *Database) ListMockTrades(ctx context.Context, limit int) ([]MockTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, side, qty, price, realized_pnl, created_at
		FROM mock_trades
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []MockTrade
	for rows.Next() {
		var t MockTrade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Qty, &t.Price, &t.RealizedPnL, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
