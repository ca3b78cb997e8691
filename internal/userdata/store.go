package userdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradebot/internal/risk"
	"tradebot/pkg/db"
)

// Store is the persistence boundary for user records, keyed by email.
// GetUserData returns a default record for unknown users. Callers own the
// returned record; changes are visible only after SaveUserData.
type Store interface {
	GetUserData(ctx context.Context, email string) (*Record, error)
	SaveUserData(ctx context.Context, email string, rec *Record) error
}

// Sealer encrypts secrets at rest. *crypto.Keyring satisfies it.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryStore keeps serialized records in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte), now: time.Now}
}

func (s *MemoryStore) GetUserData(_ context.Context, email string) (*Record, error) {
	if key(email) == "" {
		return nil, db.ErrUserIDRequired
	}
	s.mu.RLock()
	raw, ok := s.data[key(email)]
	s.mu.RUnlock()
	if !ok {
		return NewRecord(s.now().UTC()), nil
	}
	return decodeRecord(raw)
}

func (s *MemoryStore) SaveUserData(_ context.Context, email string, rec *Record) error {
	if key(email) == "" {
		return db.ErrUserIDRequired
	}
	if rec == nil {
		return errors.New("userdata: nil record")
	}
	cp := *rec
	cp.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}
	s.mu.Lock()
	s.data[key(email)] = raw
	s.mu.Unlock()
	return nil
}

// SQLStore persists records as JSON in the user_data table. Exchange secrets
// are sealed before they are written when a Sealer is configured.
type SQLStore struct {
	q      *db.UserQueries
	sealer Sealer
	limits *risk.Limits
	now    func() time.Time
}

// NewSQLStore builds a store over database. sealer may be nil, in which case
// secrets are stored as given.
func NewSQLStore(database *db.Database, sealer Sealer) *SQLStore {
	return &SQLStore{q: database.Queries(), sealer: sealer, now: time.Now}
}

// SetDefaultLimits sets the risk limits given to users that have no record yet.
func (s *SQLStore) SetDefaultLimits(l risk.Limits) {
	s.limits = &l
}

func (s *SQLStore) GetUserData(ctx context.Context, email string) (*Record, error) {
	row, err := s.q.GetUserData(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		rec := NewRecord(s.now().UTC())
		if s.limits != nil {
			rec.RiskManagement = *s.limits
		}
		return rec, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord([]byte(row.Data))
	if err != nil {
		return nil, err
	}
	if s.sealer != nil {
		for i := range rec.Exchanges {
			if err := s.openConnection(&rec.Exchanges[i]); err != nil {
				return nil, fmt.Errorf("open %s credentials: %w", rec.Exchanges[i].Name, err)
			}
		}
	}
	return rec, nil
}

func (s *SQLStore) SaveUserData(ctx context.Context, email string, rec *Record) error {
	if rec == nil {
		return errors.New("userdata: nil record")
	}
	cp := *rec
	cp.UpdatedAt = s.now().UTC()
	cp.Exchanges = append([]ExchangeConnection(nil), rec.Exchanges...)
	if s.sealer != nil {
		for i := range cp.Exchanges {
			if err := s.sealConnection(&cp.Exchanges[i]); err != nil {
				return fmt.Errorf("seal %s credentials: %w", cp.Exchanges[i].Name, err)
			}
		}
	}
	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}
	return s.q.SaveUserData(ctx, email, string(raw))
}

func (s *SQLStore) sealConnection(c *ExchangeConnection) error {
	for _, field := range []*string{&c.APIKey, &c.APISecret, &c.Passphrase} {
		sealed, err := s.sealer.Seal(*field)
		if err != nil {
			return err
		}
		*field = sealed
	}
	return nil
}

func (s *SQLStore) openConnection(c *ExchangeConnection) error {
	for _, field := range []*string{&c.APIKey, &c.APISecret, &c.Passphrase} {
		plain, err := s.sealer.Open(*field)
		if err != nil {
			return err
		}
		*field = plain
	}
	return nil
}

func decodeRecord(raw []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode user data: %w", err)
	}
	rec.normalizeDefaults()
	return &rec, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
