//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
)

func TestPostgresStore(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := OpenPostgres(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	defer s.Close()

	// Clean table for deterministic tests
	s.db.Exec(ctx, "DELETE FROM proof_records")

	exerciseStore(t, s)
}
