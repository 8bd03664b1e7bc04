package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
)

func testOrder(id, price string) core.Order {
	return core.Order{
		ID:        id,
		ClientID:  "bp-" + id,
		Symbol:    "SOL_USDC",
		Side:      core.Bid,
		Type:      core.Limit,
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.NewFromInt(1),
		Status:    core.OrderNew,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want error")
	}
}

func TestSaveLoadOpenOrders(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := []core.Order{testOrder("o1", "150.25"), testOrder("o2", "149.5")}
	if err := s.SaveOpenOrders(want); err != nil {
		t.Fatalf("SaveOpenOrders() error = %v", err)
	}

	got, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("order %d ID = %q, want %q", i, got[i].ID, want[i].ID)
		}
		if !got[i].Price.Equal(want[i].Price) {
			t.Errorf("order %d price = %s, want %s", i, got[i].Price, want[i].Price)
		}
	}
}

func TestSaveOpenOrdersOverwrites(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.SaveOpenOrders([]core.Order{testOrder("old", "100")}); err != nil {
		t.Fatalf("SaveOpenOrders() error = %v", err)
	}
	if err := s.SaveOpenOrders([]core.Order{testOrder("new", "110")}); err != nil {
		t.Fatalf("SaveOpenOrders() error = %v", err)
	}

	got, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("snapshot = %v, want only the latest save", got)
	}
}

func TestLoadOpenOrdersMissingFile(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders() on empty dir error = %v", err)
	}
	if got != nil {
		t.Fatalf("LoadOpenOrders() = %v, want nil", got)
	}
}

func TestAppendHistoryGrowsLedger(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, id := range []string{"h1", "h2", "h3"} {
		if err := s.AppendHistory(testOrder(id, "150")); err != nil {
			t.Fatalf("AppendHistory(%s) error = %v", id, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "order_history.jsonl"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry struct {
			Order    core.Order `json:"order"`
			ClosedAt time.Time  `json:"closed_at"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("bad ledger line %q: %v", scanner.Text(), err)
		}
		if entry.ClosedAt.IsZero() {
			t.Error("ledger entry has no closed_at")
		}
		ids = append(ids, entry.Order.ID)
	}
	if len(ids) != 3 {
		t.Fatalf("ledger has %d lines, want 3", len(ids))
	}
	for i, want := range []string{"h1", "h2", "h3"} {
		if ids[i] != want {
			t.Fatalf("line %d = %q, want %q (append order)", i, ids[i], want)
		}
	}
}

func TestInstanceLockExclusive(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireInstanceLock(dir)
	if err != nil {
		t.Fatalf("AcquireInstanceLock() error = %v", err)
	}
	if _, err := AcquireInstanceLock(dir); err == nil {
		t.Fatal("second AcquireInstanceLock() error = nil, want error")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	relock, err := AcquireInstanceLock(dir)
	if err != nil {
		t.Fatalf("AcquireInstanceLock() after release error = %v", err)
	}
	if err := relock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestInstanceLockReleaseIdempotent(t *testing.T) {
	lock, err := AcquireInstanceLock(t.TempDir())
	if err != nil {
		t.Fatalf("AcquireInstanceLock() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
}
