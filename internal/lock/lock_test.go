package lock

import (
	"context"
	"testing"
)

func TestNormalizeSortsAndDeduplicates(t *testing.T) {
	got := Normalize([]string{"b", "", "a", "b", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestKeysArePrefixed(t *testing.T) {
	keys := SerialKeys([]string{"IMEI-1"})
	if keys[0] != SerialKeyPrefix+"IMEI-1" {
		t.Fatalf("unexpected serial key %q", keys[0])
	}
	if BillingKey("bill-1") != BillingKeyPrefix+"bill-1" {
		t.Fatalf("unexpected billing key %q", BillingKey("bill-1"))
	}
}

func TestNoopAlwaysAcquires(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("noop acquire: %v", err)
	}
	release()
}
