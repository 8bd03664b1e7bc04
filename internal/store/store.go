package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
)

const (
	openOrdersFile = "open_orders.json"
	historyFile    = "order_history.jsonl"
)

// Store persists the order mirror under a state directory: an atomic JSON
// snapshot of open orders plus an append-only JSONL ledger of closed orders.
type Store struct {
	root string
	mu   sync.Mutex
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("state dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

type openOrdersSnapshot struct {
	Orders    []core.Order `json:"orders"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s *Store) SaveOpenOrders(orders []core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := openOrdersSnapshot{Orders: orders, UpdatedAt: time.Now().UTC()}
	return writeJSONAtomic(filepath.Join(s.root, openOrdersFile), snapshot)
}

// LoadOpenOrders returns the last saved snapshot; a missing file is an empty
// snapshot, not an error.
func (s *Store) LoadOpenOrders() ([]core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(s.root, openOrdersFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snapshot openOrdersSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return snapshot.Orders, nil
}

type historyEntry struct {
	Order    core.Order `json:"order"`
	ClosedAt time.Time  `json:"closed_at"`
}

func (s *Store) AppendHistory(order core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, err := json.Marshal(historyEntry{Order: order, ClosedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.root, historyFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
