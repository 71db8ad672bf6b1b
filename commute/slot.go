package commute

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// Slot is the single cached commute computation. The cache deliberately
// holds only the most recent (address, listing set, profile) triple; any
// input change is a full miss and overwrites the slot.
type Slot struct {
	Address   string         `json:"address"`
	IDsHash   string         `json:"idsHash"`
	Profile   Mode           `json:"profile"`
	Durations map[string]int `json:"durations"`
	Timestamp int64          `json:"timestamp"`
}

// SlotStore persists the single commute slot.
type SlotStore interface {
	Load() (*Slot, bool, error)
	Save(*Slot) error
}

// MemorySlot keeps the slot in process memory.
type MemorySlot struct {
	mu   sync.Mutex
	slot *Slot
}

// NewMemorySlot creates an empty MemorySlot.
func NewMemorySlot() *MemorySlot { return &MemorySlot{} }

func (m *MemorySlot) Load() (*Slot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return nil, false, nil
	}
	cp := *m.slot
	return &cp, true, nil
}

func (m *MemorySlot) Save(s *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.slot = &cp
	return nil
}

const slotSchema = `
CREATE TABLE IF NOT EXISTS commute_cache (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	address   TEXT NOT NULL,
	ids_hash  TEXT NOT NULL,
	profile   TEXT NOT NULL,
	durations BLOB NOT NULL,
	ts        INTEGER NOT NULL
);
`

// SQLiteSlot persists the slot as a single row, sharing the cache
// database.
type SQLiteSlot struct {
	db *sql.DB
}

// NewSQLiteSlot wraps the given database connection and applies the
// schema.
func NewSQLiteSlot(db *sql.DB) (*SQLiteSlot, error) {
	if _, err := db.Exec(slotSchema); err != nil {
		return nil, fmt.Errorf("commute: migrate: %w", err)
	}
	return &SQLiteSlot{db: db}, nil
}

func (s *SQLiteSlot) Load() (*Slot, bool, error) {
	row := s.db.QueryRow(`SELECT address, ids_hash, profile, durations, ts FROM commute_cache WHERE id = 1`)

	var slot Slot
	var durations []byte
	if err := row.Scan(&slot.Address, &slot.IDsHash, &slot.Profile, &durations, &slot.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("commute: load slot: %w", err)
	}
	if err := json.Unmarshal(durations, &slot.Durations); err != nil {
		return nil, false, fmt.Errorf("commute: decode durations: %w", err)
	}
	return &slot, true, nil
}

func (s *SQLiteSlot) Save(slot *Slot) error {
	durations, err := json.Marshal(slot.Durations)
	if err != nil {
		return fmt.Errorf("commute: encode durations: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO commute_cache (id, address, ids_hash, profile, durations, ts) VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET address = excluded.address, ids_hash = excluded.ids_hash,
			profile = excluded.profile, durations = excluded.durations, ts = excluded.ts
	`, slot.Address, slot.IDsHash, string(slot.Profile), durations, slot.Timestamp)
	if err != nil {
		return fmt.Errorf("commute: save slot: %w", err)
	}
	return nil
}
