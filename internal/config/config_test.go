package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadInfersStoreDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("DATABASE_URL", "")
	if got := Load().StoreDriver; got != DriverMemory {
		t.Fatalf("expected memory driver, got %q", got)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/backoffice")
	if got := Load().StoreDriver; got != DriverPostgres {
		t.Fatalf("expected postgres driver, got %q", got)
	}

	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	if got := Load().StoreDriver; got != DriverMongo {
		t.Fatalf("expected mongo driver, got %q", got)
	}

	t.Setenv("STORE_DRIVER", "Memory")
	if got := Load().StoreDriver; got != DriverMemory {
		t.Fatalf("expected explicit driver to win, got %q", got)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("CONFLICT_RETRIES", "zero")
	t.Setenv("BILLING_CACHE_TTL_SECONDS", "-4")
	t.Setenv("MONGO_TRANSACTIONS", "maybe")

	cfg := Load()
	if cfg.ConflictRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.ConflictRetries)
	}
	if cfg.BillingCacheTTLSeconds != 30 {
		t.Fatalf("expected 30s cache ttl, got %d", cfg.BillingCacheTTLSeconds)
	}
	if !cfg.MongoTransactions {
		t.Fatalf("expected mongo transactions to default on")
	}
	if cfg.Address() != ":"+cfg.Port {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}
