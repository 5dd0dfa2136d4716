package memory

import (
	"cmp"
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/store"
	"backoffice/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

type dataset struct {
	products       map[string]domain.Product
	billings       map[string]domain.Billing
	counterparties map[string]domain.Counterparty
	brands         map[string]domain.Brand
	models         map[string]domain.Model
	auditLogs      []domain.AuditLog
	users          map[string]domain.UserAccount
	invoiceSeq     int64
}

// clone copies the maps. Stored values are never mutated in place, so the
// slices inside them can be shared between snapshots.
func (d *dataset) clone() *dataset {
	out := &dataset{
		products:       make(map[string]domain.Product, len(d.products)),
		billings:       make(map[string]domain.Billing, len(d.billings)),
		counterparties: make(map[string]domain.Counterparty, len(d.counterparties)),
		brands:         make(map[string]domain.Brand, len(d.brands)),
		models:         make(map[string]domain.Model, len(d.models)),
		auditLogs:      slices.Clone(d.auditLogs),
		users:          make(map[string]domain.UserAccount, len(d.users)),
		invoiceSeq:     d.invoiceSeq,
	}
	for k, v := range d.products {
		out.products[k] = v
	}
	for k, v := range d.billings {
		out.billings[k] = v
	}
	for k, v := range d.counterparties {
		out.counterparties[k] = v
	}
	for k, v := range d.brands {
		out.brands[k] = v
	}
	for k, v := range d.models {
		out.models[k] = v
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	return out
}

// Store keeps everything in process memory. Transactions run against a
// private snapshot that replaces the live data on commit.
type Store struct {
	mu   *sync.RWMutex
	data *dataset
	inTx bool
}

func New() *Store {
	return &Store{
		mu: &sync.RWMutex{},
		data: &dataset{
			products:       make(map[string]domain.Product),
			billings:       make(map[string]domain.Billing),
			counterparties: make(map[string]domain.Counterparty),
			brands:         make(map[string]domain.Brand),
			models:         make(map[string]domain.Model),
			auditLogs:      make([]domain.AuditLog, 0, 128),
			users:          make(map[string]domain.UserAccount),
		},
	}
}

// NewSeeded returns a store with the dev/demo admin and staff accounts.
// Passwords come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; dev
// defaults are used with a warning when unset. Never used when a database is
// configured.
func NewSeeded() *Store {
	s := New()
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		s.data.users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) RunInTx(ctx context.Context, fn store.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, data: s.data.clone(), inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Serial) == "" || !product.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	defer s.lock()()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.data.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}
	s.data.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	defer s.rlock()()
	product, ok := s.data.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	defer s.rlock()()

	serial := strings.ToLower(strings.TrimSpace(filter.Serial))
	out := make([]domain.Product, 0, len(s.data.products))
	for _, product := range s.data.products {
		if product.Status == domain.ProductRemoved && !filter.IncludeRemoved && filter.Status != domain.ProductRemoved {
			continue
		}
		if filter.Status != "" && product.Status != filter.Status {
			continue
		}
		if filter.SupplierID != "" && product.SupplierID != filter.SupplierID {
			continue
		}
		if serial != "" && !strings.Contains(strings.ToLower(product.Serial), serial) {
			continue
		}
		out = append(out, cloneProduct(product))
	}
	sortProducts(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) FindProductsBySerial(_ context.Context, serial string) ([]domain.Product, error) {
	defer s.rlock()()
	out := make([]domain.Product, 0, 2)
	for _, product := range s.data.products {
		if product.Serial == serial && product.Status.Live() {
			out = append(out, cloneProduct(product))
		}
	}
	sortProducts(out)
	return out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product, expected domain.ProductStatus) (*domain.Product, error) {
	if !product.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	defer s.lock()()

	existing, ok := s.data.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Status != expected {
		return nil, store.ErrConflict
	}
	product.CreatedAt = existing.CreatedAt
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	s.data.products[product.ID] = cloneProduct(product)
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) NextInvoiceNumber(_ context.Context) (int64, error) {
	defer s.lock()()
	s.data.invoiceSeq++
	return s.data.invoiceSeq, nil
}

func (s *Store) CreateBilling(_ context.Context, billing domain.Billing) (*domain.Billing, error) {
	if !billing.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	defer s.lock()()

	if billing.ID == "" {
		billing.ID = xid.New("bill")
	}
	if _, exists := s.data.billings[billing.ID]; exists {
		return nil, store.ErrDuplicate
	}
	for _, other := range s.data.billings {
		if other.InvoiceNumber == billing.InvoiceNumber {
			return nil, store.ErrDuplicate
		}
	}
	if billing.Version == 0 {
		billing.Version = 1
	}
	now := time.Now().UTC()
	if billing.CreatedAt.IsZero() {
		billing.CreatedAt = now
	}
	if billing.UpdatedAt.IsZero() {
		billing.UpdatedAt = billing.CreatedAt
	}
	s.data.billings[billing.ID] = cloneBilling(billing)
	out := cloneBilling(billing)
	return &out, nil
}

func (s *Store) GetBilling(_ context.Context, id string) (*domain.Billing, error) {
	defer s.rlock()()
	billing, ok := s.data.billings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneBilling(billing)
	return &out, nil
}

func (s *Store) ListBillings(_ context.Context, filter store.BillingFilter) ([]domain.Billing, error) {
	defer s.rlock()()
	out := make([]domain.Billing, 0, len(s.data.billings))
	for _, billing := range s.data.billings {
		if !filter.MatchesBilling(billing) {
			continue
		}
		out = append(out, cloneBilling(billing))
	}
	slices.SortFunc(out, func(a, b domain.Billing) int {
		return cmp.Compare(b.InvoiceNumber, a.InvoiceNumber)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateBilling(_ context.Context, billing domain.Billing, expectedVersion int64) (*domain.Billing, error) {
	if !billing.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	defer s.lock()()

	existing, ok := s.data.billings[billing.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return nil, store.ErrConflict
	}
	billing.Version = expectedVersion + 1
	billing.InvoiceNumber = existing.InvoiceNumber
	billing.CreatedAt = existing.CreatedAt
	if billing.UpdatedAt.IsZero() {
		billing.UpdatedAt = time.Now().UTC()
	}
	s.data.billings[billing.ID] = cloneBilling(billing)
	out := cloneBilling(billing)
	return &out, nil
}

func (s *Store) DeleteBilling(_ context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.data.billings[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.data.billings, id)
	return nil
}

func (s *Store) CreateCounterparty(_ context.Context, cp domain.Counterparty) (*domain.Counterparty, error) {
	if strings.TrimSpace(cp.Contact) == "" || cp.Role == "" {
		return nil, store.ErrInvalidRequest
	}
	defer s.lock()()

	for _, other := range s.data.counterparties {
		if other.Contact == cp.Contact && other.Role == cp.Role {
			return nil, store.ErrDuplicate
		}
	}
	if cp.ID == "" {
		cp.ID = xid.New("cp")
	}
	if cp.Version == 0 {
		cp.Version = 1
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = cp.CreatedAt
	s.data.counterparties[cp.ID] = cloneCounterparty(cp)
	out := cloneCounterparty(cp)
	return &out, nil
}

func (s *Store) GetCounterparty(_ context.Context, id string) (*domain.Counterparty, error) {
	defer s.rlock()()
	cp, ok := s.data.counterparties[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneCounterparty(cp)
	return &out, nil
}

func (s *Store) FindCounterpartyByContact(_ context.Context, contact string, role domain.CounterpartyRole) (*domain.Counterparty, error) {
	defer s.rlock()()
	var found *domain.Counterparty
	for _, cp := range s.data.counterparties {
		if cp.Contact != contact || (role != "" && cp.Role != role) {
			continue
		}
		if found == nil || cp.CreatedAt.Before(found.CreatedAt) {
			c := cp
			found = &c
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	out := cloneCounterparty(*found)
	return &out, nil
}

func (s *Store) ListCounterparties(_ context.Context, role domain.CounterpartyRole) ([]domain.Counterparty, error) {
	defer s.rlock()()
	out := make([]domain.Counterparty, 0, len(s.data.counterparties))
	for _, cp := range s.data.counterparties {
		if role != "" && cp.Role != role {
			continue
		}
		out = append(out, cloneCounterparty(cp))
	}
	slices.SortFunc(out, func(a, b domain.Counterparty) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out, nil
}

func (s *Store) UpdateCounterparty(_ context.Context, cp domain.Counterparty, expectedVersion int64) (*domain.Counterparty, error) {
	defer s.lock()()
	existing, ok := s.data.counterparties[cp.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return nil, store.ErrConflict
	}
	cp.Version = expectedVersion + 1
	cp.CreatedAt = existing.CreatedAt
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.data.counterparties[cp.ID] = cloneCounterparty(cp)
	out := cloneCounterparty(cp)
	return &out, nil
}

func (s *Store) FindOrCreateBrand(_ context.Context, name string) (*domain.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidRequest
	}
	defer s.lock()()
	for _, brand := range s.data.brands {
		if strings.EqualFold(brand.Name, name) {
			out := brand
			return &out, nil
		}
	}
	now := time.Now().UTC()
	brand := domain.Brand{ID: xid.New("brand"), Name: name, CreatedAt: now, UpdatedAt: now}
	s.data.brands[brand.ID] = brand
	return &brand, nil
}

func (s *Store) FindOrCreateModel(_ context.Context, brandID string, name string) (*domain.Model, error) {
	name = strings.TrimSpace(name)
	if name == "" || brandID == "" {
		return nil, store.ErrInvalidRequest
	}
	defer s.lock()()
	for _, model := range s.data.models {
		if model.BrandID == brandID && strings.EqualFold(model.Name, name) {
			out := model
			return &out, nil
		}
	}
	now := time.Now().UTC()
	model := domain.Model{ID: xid.New("model"), BrandID: brandID, Name: name, CreatedAt: now, UpdatedAt: now}
	s.data.models[model.ID] = model
	return &model, nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	defer s.rlock()()
	out := make([]domain.Brand, 0, len(s.data.brands))
	for _, brand := range s.data.brands {
		out = append(out, brand)
	}
	slices.SortFunc(out, func(a, b domain.Brand) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) ListModels(_ context.Context, brandID string) ([]domain.Model, error) {
	defer s.rlock()()
	out := make([]domain.Model, 0, len(s.data.models))
	for _, model := range s.data.models {
		if brandID != "" && model.BrandID != brandID {
			continue
		}
		out = append(out, model)
	}
	slices.SortFunc(out, func(a, b domain.Model) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	defer s.lock()()
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.data.auditLogs = append(s.data.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	defer s.rlock()()
	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.data.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.data.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	defer s.lock()()
	if _, exists := s.data.users[user.Username]; exists {
		return store.ErrDuplicate
	}
	s.data.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	defer s.rlock()()
	out := make([]domain.UserAccount, 0, len(s.data.users))
	for _, user := range s.data.users {
		out = append(out, user)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return cmp.Compare(a.Username, b.Username) })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	defer s.lock()()
	user, ok := s.data.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.data.users[username] = user
	return nil
}

func sortProducts(products []domain.Product) {
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func cloneProduct(p domain.Product) domain.Product {
	out := p
	out.RepairParts = slices.Clone(p.RepairParts)
	if p.RepairStartedAt != nil {
		t := *p.RepairStartedAt
		out.RepairStartedAt = &t
	}
	if p.RepairCompletedAt != nil {
		t := *p.RepairCompletedAt
		out.RepairCompletedAt = &t
	}
	return out
}

func cloneBilling(b domain.Billing) domain.Billing {
	out := b
	out.Items = slices.Clone(b.Items)
	out.PaidAmount = slices.Clone(b.PaidAmount)
	return out
}

func cloneCounterparty(cp domain.Counterparty) domain.Counterparty {
	out := cp
	out.PaidAmount = slices.Clone(cp.PaidAmount)
	return out
}
