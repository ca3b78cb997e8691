package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestUserQueriesRequireUser(t *testing.T) {
	q := openTestDB(t).Queries()
	ctx := context.Background()

	t.Run("GetUserData requires email", func(t *testing.T) {
		if _, err := q.GetUserData(ctx, " "); err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("SaveUserData requires email", func(t *testing.T) {
		if err := q.SaveUserData(ctx, "", "{}"); err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("InsertTradeHistory requires user on every row", func(t *testing.T) {
		err := q.InsertTradeHistory(ctx, []TradeHistory{{ID: "t1", Exchange: "btcc"}})
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("GetTradeHistoryByUser requires email", func(t *testing.T) {
		if _, err := q.GetTradeHistoryByUser(ctx, "", 10); err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})
}

func TestUserDataRoundTrip(t *testing.T) {
	q := openTestDB(t).Queries()
	ctx := context.Background()

	if _, err := q.GetUserData(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := q.SaveUserData(ctx, "A@Example.com", `{"v":1}`); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := q.SaveUserData(ctx, "a@example.com", `{"v":2}`); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := q.GetUserData(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data != `{"v":2}` {
		t.Fatalf("data = %s", got.Data)
	}
}

func TestTradeHistoryIsolation(t *testing.T) {
	q := openTestDB(t).Queries()
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []TradeHistory{
		{ID: "a1", UserEmail: "a@example.com", Exchange: "btcc", Symbol: "BTCUSDT", Action: "buy", Quantity: 0.004, Price: 50000, Status: "submitted", CreatedAt: now},
		{ID: "a2", UserEmail: "a@example.com", Exchange: "btcc", Symbol: "ETHUSDT", Action: "sell", Quantity: 0.1, Price: 3000, Status: "executed", CreatedAt: now.Add(time.Second)},
		{ID: "b1", UserEmail: "b@example.com", Exchange: "kucoin", Symbol: "BTC-USDT", Action: "buy", Quantity: 0.01, Price: 50000, Status: "submitted", CreatedAt: now},
	}
	if err := q.InsertTradeHistory(ctx, rows); err != nil {
		t.Fatalf("insert: %v", err)
	}

	t.Run("user A sees only their rows, newest first", func(t *testing.T) {
		got, err := q.GetTradeHistoryByUser(ctx, "a@example.com", 10)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(got))
		}
		if got[0].ID != "a2" {
			t.Errorf("expected a2 first, got %s", got[0].ID)
		}
	})

	t.Run("unknown user sees nothing", func(t *testing.T) {
		got, err := q.GetTradeHistoryByUser(ctx, "nobody@example.com", 10)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected 0 rows, got %d", len(got))
		}
	})
}

func TestPositionsAndMockTrades(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := database.UpsertPosition(ctx, Position{Symbol: "BTCUSDT", Qty: 1, AvgPrice: 30000}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := database.UpsertPosition(ctx, Position{Symbol: "BTCUSDT", Qty: 2, AvgPrice: 30500}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	pos, err := database.ListPositions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pos) != 1 || pos[0].Qty != 2 || pos[0].AvgPrice != 30500 {
		t.Fatalf("positions = %+v", pos)
	}

	if err := database.CreateMockTrade(ctx, MockTrade{ID: "m1", Symbol: "BTCUSDT", Side: "buy", Qty: 1, Price: 30000}); err != nil {
		t.Fatalf("mock trade: %v", err)
	}
	trades, err := database.ListMockTrades(ctx, 0)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Side != "buy" {
		t.Fatalf("trades = %+v", trades)
	}
}

func TestUsers(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if u, err := database.GetUserByEmail(ctx, "x@example.com"); err != nil || u != nil {
		t.Fatalf("expected no user, got %+v %v", u, err)
	}
	if err := database.CreateUser(ctx, User{ID: "u1", Email: "X@Example.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := database.CreateUser(ctx, User{ID: "u2", Email: "x@example.com", PasswordHash: "h"}); err == nil {
		t.Fatal("duplicate email accepted")
	}
	u, err := database.GetUserByEmail(ctx, "x@example.com")
	if err != nil || u == nil || u.ID != "u1" {
		t.Fatalf("got %+v %v", u, err)
	}
}
