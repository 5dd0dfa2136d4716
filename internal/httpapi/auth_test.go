package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"backoffice/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "482915", store)
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLegacyCashierAccountsLoginAsStaff(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"kasir": {
				Username:  "kasir",
				Password:  "kasir123",
				Role:      "cashier",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "482915", store)
	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "KASIR", Password: "kasir123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != roleStaff {
		t.Fatalf("expected staff role, got %s", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "kasir" || actor.Role != roleStaff {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"gone": {Username: "gone", Password: "gone1234", Role: roleStaff, Active: false},
		},
	}
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "482915", store)
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "gone", Password: "gone1234"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "gone", Password: "wrong"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	ctx := context.Background()
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: roleAdmin, Active: true},
		},
	}
	issuer := NewAuthManager(ctx, "secret-one", time.Hour, "482915", store)
	verifier := NewAuthManager(ctx, "secret-two", time.Hour, "482915", store)

	resp, err := issuer.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "482915", store)

	user, err := manager.CreateStaff(ctx, domain.StaffCreateRequest{Username: "Teknisi1", Password: "pass1234"})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if user.Username != "teknisi1" || user.Role != roleStaff {
		t.Fatalf("unexpected staff user %+v", user)
	}

	saved := store.users["teknisi1"]
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "teknisi1", Password: "pass1234"}); err != nil {
		t.Fatalf("login with new staff failed: %v", err)
	}

	if _, err := manager.CreateStaff(ctx, domain.StaffCreateRequest{Username: "teknisi1", Password: "pass1234"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
	if _, err := manager.CreateStaff(ctx, domain.StaffCreateRequest{Username: "ab", Password: "pass1234"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}

	staff := manager.ListStaff(ctx)
	if len(staff) != 1 || staff[0].Username != "teknisi1" {
		t.Fatalf("unexpected staff list %+v", staff)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "654321", store)

	if string(manager.pinHash) == "654321" || !isBcryptHash(string(manager.pinHash)) {
		t.Fatalf("expected manager pin to be stored as a bcrypt hash, got %q", manager.pinHash)
	}
	if !manager.ValidateManagerPIN(" 654321 ") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

func TestEmptyManagerPINApprovesNothing(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "  ", nil)
	for _, pin := range []string{"", "disabled", "000000"} {
		if manager.ValidateManagerPIN(pin) {
			t.Fatalf("expected %q to be rejected without a configured pin", pin)
		}
	}
	paid := domain.Billing{InvoiceNumber: 7, Status: domain.BillingPaid}
	if err := manager.approveBillingDelete(paid, "disabled"); !errors.Is(err, errManagerApproval) {
		t.Fatalf("expected finalized delete to need approval, got %v", err)
	}
}

func TestApproveBillingDeleteByStatus(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, testPIN, nil)

	cases := []struct {
		status domain.BillingStatus
		pin    string
		want   error
	}{
		{domain.BillingDrafted, "", nil},
		{domain.BillingRemovedCheckout, "", nil},
		{domain.BillingUnpaid, "", errManagerApproval},
		{domain.BillingPartiallyPaid, "000000", errManagerApproval},
		{domain.BillingPaid, testPIN, nil},
	}
	for _, tc := range cases {
		err := manager.approveBillingDelete(domain.Billing{InvoiceNumber: 1, Status: tc.status}, tc.pin)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s with pin %q: expected %v, got %v", tc.status, tc.pin, tc.want, err)
		}
	}
}

func TestTokensCarryIssuerAndExpiry(t *testing.T) {
	signer := tokenSigner{secret: []byte("test-secret"), ttl: time.Minute}
	issuedAt := time.Now().UTC()
	raw, expiresAt, err := signer.issue(domain.Actor{Username: "staff", Role: roleStaff}, issuedAt)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.Equal(issuedAt.Add(time.Minute)) {
		t.Fatalf("expected expiry one ttl after issue, got %s", expiresAt)
	}
	actor, err := signer.verify(raw)
	if err != nil || actor.Username != "staff" || actor.Role != roleStaff {
		t.Fatalf("verify: %+v err=%v", actor, err)
	}

	stale, _, err := signer.issue(domain.Actor{Username: "staff", Role: roleStaff}, issuedAt.Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("issue stale: %v", err)
	}
	if _, err := signer.verify(stale); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}
