package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/store"
)

// Roles carried in access tokens. Accounts stored before the staff role
// existed say "cashier" and are read as staff.
const (
	roleAdmin         = "admin"
	roleStaff         = "staff"
	legacyRoleCashier = "cashier"

	managerPINHeader = "X-Manager-PIN"
	tokenIssuer      = "backoffice"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
	errManagerApproval    = errors.New("invalid manager pin")
)

// UserStore persists back office accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager signs in counter staff and admins, and holds the manager PIN
// that unlocks deleting a bill once its units have been sold.
type AuthManager struct {
	tokens   tokenSigner
	accounts *accountBook
	pinHash  []byte
}

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		tokens:   tokenSigner{secret: []byte(secret), ttl: tokenTTL},
		accounts: &accountBook{store: userStore, byName: map[string]account{}},
	}
	// an empty PIN leaves finalized bills undeletable
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost); err == nil {
			manager.pinHash = hash
		}
	}
	manager.accounts.reload(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.accounts.reload(ctx)
	username := canonicalUsername(req.Username)
	acct, ok := a.accounts.get(username)
	if !ok || !matchesHash(acct.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !acct.active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	token, expiresAt, err := a.tokens.issue(domain.Actor{Username: username, Role: acct.role}, time.Now().UTC())
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        acct.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	return a.tokens.verify(raw)
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	pin = strings.TrimSpace(pin)
	if pin == "" || a.pinHash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.pinHash, []byte(pin)) == nil
}

// needsManagerApproval reports whether deleting the bill puts sold units back
// on the shelf, which only a manager may do.
func needsManagerApproval(billing domain.Billing) bool {
	return billing.Status.Finalized()
}

// approveBillingDelete returns errManagerApproval when the bill is finalized
// and pin does not match. Drafts and removed bills pass without a PIN.
func (a *AuthManager) approveBillingDelete(billing domain.Billing, pin string) error {
	if needsManagerApproval(billing) && !a.ValidateManagerPIN(pin) {
		return fmt.Errorf("%w: invoice %d is %s", errManagerApproval, billing.InvoiceNumber, billing.Status)
	}
	return nil
}

func (a *AuthManager) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.StaffUser, error) {
	a.accounts.reload(ctx)
	username := canonicalUsername(req.Username)
	if err := checkNewAccount(username, req.Password); err != nil {
		return domain.StaffUser{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.StaffUser{}, fmt.Errorf("hash password: %w", err)
	}

	acct := account{hash: string(hash), role: roleStaff, active: true, createdAt: time.Now().UTC()}
	if err := a.accounts.add(ctx, username, acct); err != nil {
		return domain.StaffUser{}, err
	}
	return acct.staffUser(username), nil
}

func (a *AuthManager) ListStaff(ctx context.Context) []domain.StaffUser {
	a.accounts.reload(ctx)
	return a.accounts.withRole(roleStaff)
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

type tokenSigner struct {
	secret []byte
	ttl    time.Duration
}

func (s tokenSigner) issue(actor domain.Actor, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.ttl)
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   actor.Username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: actor.Role,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s tokenSigner) verify(raw string) (domain.Actor, error) {
	var claims accessClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims, func(*jwtlib.Token) (any, error) {
		return s.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithExpirationRequired())
	if err != nil || claims.Subject == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

type account struct {
	hash      string
	role      string
	active    bool
	createdAt time.Time
}

func (acct account) staffUser(username string) domain.StaffUser {
	return domain.StaffUser{Username: username, Role: acct.role, Active: acct.active, CreatedAt: acct.createdAt}
}

// accountBook caches stored accounts by canonical username. Without a store
// it only knows the accounts added through it.
type accountBook struct {
	store  UserStore
	mu     sync.RWMutex
	byName map[string]account
}

// reload pulls every stored account and rehashes plain-text passwords in
// place. A failing store keeps the cache as it was.
func (b *accountBook) reload(ctx context.Context) {
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	stored, err := b.store.ListUsers(ctx)
	if err != nil {
		return
	}

	fresh := make(map[string]account, len(stored))
	for _, user := range stored {
		username := canonicalUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isBcryptHash(hash) {
			upgraded, err := bcrypt.GenerateFromPassword([]byte(hash), bcrypt.DefaultCost)
			if err != nil {
				continue
			}
			hash = string(upgraded)
			_ = b.store.UpdateUserPassword(ctx, username, hash)
		}
		role := user.Role
		if role == legacyRoleCashier {
			role = roleStaff
		}
		fresh[username] = account{hash: hash, role: role, active: user.Active, createdAt: user.CreatedAt}
	}

	b.mu.Lock()
	for username, acct := range fresh {
		b.byName[username] = acct
	}
	b.mu.Unlock()
}

func (b *accountBook) get(username string) (account, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acct, ok := b.byName[username]
	return acct, ok
}

func (b *accountBook) add(ctx context.Context, username string, acct account) error {
	if _, taken := b.get(username); taken {
		return fmt.Errorf("%w: username already exists", store.ErrDuplicate)
	}
	if b.store != nil {
		if err := b.store.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  acct.hash,
			Role:      acct.role,
			Active:    acct.active,
			CreatedAt: acct.createdAt,
		}); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.byName[username] = acct
	b.mu.Unlock()
	return nil
}

func (b *accountBook) withRole(role string) []domain.StaffUser {
	b.mu.RLock()
	out := make([]domain.StaffUser, 0, len(b.byName))
	for username, acct := range b.byName {
		if acct.role == role {
			out = append(out, acct.staffUser(username))
		}
	}
	b.mu.RUnlock()
	slices.SortFunc(out, func(x, y domain.StaffUser) int { return strings.Compare(x.Username, y.Username) })
	return out
}

func canonicalUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func checkNewAccount(username, password string) error {
	switch {
	case len(username) < 4:
		return fmt.Errorf("%w: username must be at least 4 characters", store.ErrInvalidRequest)
	case strings.ContainsAny(username, " \t\r\n"):
		return fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidRequest)
	case len(strings.TrimSpace(password)) < 6:
		return fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidRequest)
	}
	return nil
}

func matchesHash(hash, password string) bool {
	if strings.TrimSpace(password) == "" || !isBcryptHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func isBcryptHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
