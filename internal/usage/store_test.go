package usage

import (
	"context"
	"testing"
)

func TestMemoryStoreAccumulates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.AddDailyUsage(ctx, "aff-1", 3, 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := s.AddDailyUsage(ctx, "aff-1", 2, 0); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	clicks, sales, err := s.GetDailyUsage(ctx, "aff-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if clicks != 5 || sales != 1 {
		t.Fatalf("expected 5 clicks / 1 sale, got %d/%d", clicks, sales)
	}
}

func TestMemoryStoreIsolatesAffiliates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.AddDailyUsage(ctx, "aff-1", 10, 0)

	clicks, _, _ := s.GetDailyUsage(ctx, "aff-2")
	if clicks != 0 {
		t.Fatalf("expected 0 for an untouched affiliate, got %d", clicks)
	}
}
