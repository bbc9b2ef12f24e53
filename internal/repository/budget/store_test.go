package budget

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/kailas-cloud/ltrkit/internal/db"
)

type memCounters struct {
	vals    map[string]int64
	raw     map[string][]byte
	ttls    map[string]time.Duration
	incrErr error
}

func newMemCounters() *memCounters {
	return &memCounters{
		vals: map[string]int64{},
		raw:  map[string][]byte{},
		ttls: map[string]time.Duration{},
	}
}

func (m *memCounters) Get(_ context.Context, key string) ([]byte, error) {
	if b, ok := m.raw[key]; ok {
		return b, nil
	}
	v, ok := m.vals[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return []byte(strconv.FormatInt(v, 10)), nil
}

func (m *memCounters) IncrBy(_ context.Context, key string, val int64) error {
	if m.incrErr != nil {
		return m.incrErr
	}
	m.vals[key] += val
	return nil
}

func (m *memCounters) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	if _, ok := m.ttls[key]; ok && nx {
		return nil
	}
	m.ttls[key] = ttl
	return nil
}

func TestStore_IncrByAndGet(t *testing.T) {
	mem := newMemCounters()
	s := New(mem, time.Hour, 24*time.Hour)
	ctx := context.Background()

	key := "ltrkit:budget:openai:daily:2026-10-19"
	for _, n := range []int64{10, 32} {
		if err := s.IncrBy(ctx, key, n); err != nil {
			t.Fatalf("IncrBy: %v", err)
		}
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 42 {
		t.Errorf("value = %d, want 42", got)
	}
	if mem.ttls[key] != time.Hour {
		t.Errorf("ttl = %v, want 1h", mem.ttls[key])
	}
}

func TestStore_MonthlyTTL(t *testing.T) {
	mem := newMemCounters()
	s := New(mem, time.Hour, 24*time.Hour)

	key := "ltrkit:budget:openai:monthly:2026-10"
	if err := s.IncrBy(context.Background(), key, 1); err != nil {
		t.Fatal(err)
	}
	if mem.ttls[key] != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", mem.ttls[key])
	}
}

func TestStore_DefaultTTLs(t *testing.T) {
	s := New(newMemCounters(), 0, 0)
	if s.dailyTTL != DefaultDailyTTL || s.monthTTL != DefaultMonthlyTTL {
		t.Errorf("ttls = %v/%v", s.dailyTTL, s.monthTTL)
	}
}

func TestStore_GetMissingIsZero(t *testing.T) {
	s := New(newMemCounters(), 0, 0)
	got, err := s.Get(context.Background(), "nope")
	if err != nil || got != 0 {
		t.Errorf("Get = %d, %v; want 0, nil", got, err)
	}
}

func TestStore_GetGarbage(t *testing.T) {
	mem := newMemCounters()
	mem.raw["k"] = []byte("twelve")
	s := New(mem, 0, 0)
	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStore_IncrByError(t *testing.T) {
	mem := newMemCounters()
	mem.incrErr = &db.Error{Op: db.OpIncrBy, Err: errors.New("WRONGTYPE")}
	s := New(mem, 0, 0)

	err := s.IncrBy(context.Background(), "k", 1)
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected db.Error, got %v", err)
	}
	if _, ok := mem.ttls["k"]; ok {
		t.Error("expire should not run after a failed incr")
	}
}
