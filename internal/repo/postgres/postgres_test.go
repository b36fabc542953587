package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/hamed0406/endpointresolver/internal/repo/repotest"
)

func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	store, err := New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	// start from a clean key so reruns against the same volume behave
	_ = store.RemoveItem(context.Background(), "endpointresolver:api_endpoint")
	repotest.Run(t, store)
}

func TestPostgresStore_RejectsEmptyDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := New(ctx, ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
