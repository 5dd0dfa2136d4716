package postgres

import (
	"context"
	"os"
	"testing"

	"backoffice/backend/internal/store/storetest"
)

func TestPostgresRepositoryContract(t *testing.T) {
	databaseURL := os.Getenv("BACKOFFICE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BACKOFFICE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// second run must be a no-op
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	storetest.Run(t, s)
}

func TestEscapeLike(t *testing.T) {
	got := escapeLike(`50%_a\b`)
	want := `50\%\_a\\b`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
