// Package mongo implements store.Repository on MongoDB. Money is stored as
// Decimal128 and invoice numbers come from a counters collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/logging"
	"backoffice/backend/internal/store"
	"backoffice/backend/internal/xid"
)

// Collection name constants.
const (
	colProducts       = "products"
	colBillings       = "billings"
	colCounterparties = "counterparties"
	colBrands         = "brands"
	colModels         = "models"
	colAuditLogs      = "audit_logs"
	colUsers          = "app_users"
	colCounters       = "counters"
)

const invoiceCounter = "billing_invoice"

// WriteConflict is raised when two transactions touch the same document.
const codeWriteConflict = 112

var _ store.Repository = (*Store)(nil)

type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	inTx         bool
	log          zerolog.Logger
}

type Options struct {
	Database string
	// Transactions requires a replica set. When false RunInTx runs fn
	// directly and only the per-document compare-and-swap protects writes.
	Transactions bool
}

func New(ctx context.Context, uri string, opts Options) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	name := opts.Database
	if name == "" {
		name = "backoffice"
	}
	return &Store{
		client:       client,
		db:           client.Database(name),
		transactions: opts.Transactions,
		log:          logging.WithComponent("mongo"),
	}, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: migrate %s indexes: %w", col, err)
		}
		s.log.Info().Str("collection", col).Int("indexes", len(models)).Msg("ensured indexes")
	}
	return nil
}

// RunInTx runs fn inside a session transaction. Operations made through the
// repo handed to fn must use the ctx handed to fn.
func (s *Store) RunInTx(ctx context.Context, fn store.TxFunc) error {
	if s.inTx || !s.transactions {
		return fn(ctx, s)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo: start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	txStore := *s
	txStore.inTx = true
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, &txStore)
	})
	return conflictOr(err)
}

// ==================== Products ====================

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Serial) == "" || !product.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now()
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}
	m, err := toProductModel(product)
	if err != nil {
		return nil, fmt.Errorf("mongo: encode product: %w", err)
	}
	if _, err := s.db.Collection(colProducts).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, fmt.Errorf("mongo: create product: %w", err)
	}
	return fromProductModel(m)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var m productModel
	if err := s.db.Collection(colProducts).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: get product: %w", err)
	}
	return fromProductModel(&m)
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	q := bson.M{}
	switch {
	case filter.Status != "":
		q["status"] = string(filter.Status)
	case !filter.IncludeRemoved:
		q["status"] = bson.M{"$ne": string(domain.ProductRemoved)}
	}
	if filter.SupplierID != "" {
		q["supplier_id"] = filter.SupplierID
	}
	if serial := strings.TrimSpace(filter.Serial); serial != "" {
		q["serial"] = containsPattern(serial)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}
	return s.findProducts(ctx, q, opts)
}

func (s *Store) FindProductsBySerial(ctx context.Context, serial string) ([]domain.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return s.findProducts(ctx, bson.M{
		"serial": serial,
		"status": bson.M{"$ne": string(domain.ProductRemoved)},
	}, opts)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product, expected domain.ProductStatus) (*domain.Product, error) {
	if !product.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	existing, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = now()
	}
	m, err := toProductModel(product)
	if err != nil {
		return nil, fmt.Errorf("mongo: encode product: %w", err)
	}

	res, err := s.db.Collection(colProducts).ReplaceOne(ctx, bson.M{"_id": product.ID, "status": string(expected)}, m)
	if err != nil {
		return nil, fmt.Errorf("mongo: update product: %w", conflictOr(err))
	}
	if res.MatchedCount == 0 {
		return nil, store.ErrConflict
	}
	return fromProductModel(m)
}

// ==================== Billings ====================

// NextInvoiceNumber increments the invoice counter. Inside a transaction the
// increment rolls back with everything else.
func (s *Store) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": invoiceCounter},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongo: next invoice number: %w", conflictOr(err))
	}
	return counter.Seq, nil
}

func (s *Store) CreateBilling(ctx context.Context, billing domain.Billing) (*domain.Billing, error) {
	if !billing.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	if billing.ID == "" {
		billing.ID = xid.New("bill")
	}
	if billing.Version == 0 {
		billing.Version = 1
	}
	if billing.CreatedAt.IsZero() {
		billing.CreatedAt = now()
	}
	if billing.UpdatedAt.IsZero() {
		billing.UpdatedAt = billing.CreatedAt
	}
	m, err := toBillingModel(billing)
	if err != nil {
		return nil, fmt.Errorf("mongo: encode billing: %w", err)
	}
	if _, err := s.db.Collection(colBillings).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, fmt.Errorf("mongo: create billing: %w", conflictOr(err))
	}
	return fromBillingModel(m)
}

func (s *Store) GetBilling(ctx context.Context, id string) (*domain.Billing, error) {
	var m billingModel
	if err := s.db.Collection(colBillings).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: get billing: %w", err)
	}
	return fromBillingModel(&m)
}

func (s *Store) ListBillings(ctx context.Context, filter store.BillingFilter) ([]domain.Billing, error) {
	q := bson.M{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		q["status"] = bson.M{"$in": statuses}
	}
	created := bson.M{}
	if !filter.From.IsZero() {
		created["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		created["$lt"] = filter.To
	}
	if len(created) > 0 {
		q["created_at"] = created
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := containsPattern(search)
		q["$or"] = bson.A{
			bson.M{"customer_name": pattern},
			bson.M{"customer_contact": pattern},
		}
	}
	if serial := strings.TrimSpace(filter.Serial); serial != "" {
		q["items.serial"] = containsPattern(serial)
	}

	opts := options.Find().SetSort(bson.D{{Key: "invoice_number", Value: -1}})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.db.Collection(colBillings).Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list billings: %w", err)
	}
	var models []billingModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: list billings: %w", err)
	}

	out := make([]domain.Billing, 0, len(models))
	for i := range models {
		b, err := fromBillingModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

func (s *Store) UpdateBilling(ctx context.Context, billing domain.Billing, expectedVersion int64) (*domain.Billing, error) {
	if !billing.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	existing, err := s.GetBilling(ctx, billing.ID)
	if err != nil {
		return nil, err
	}
	billing.CreatedAt = existing.CreatedAt
	billing.InvoiceNumber = existing.InvoiceNumber
	billing.Version = expectedVersion + 1
	if billing.UpdatedAt.IsZero() {
		billing.UpdatedAt = now()
	}
	m, err := toBillingModel(billing)
	if err != nil {
		return nil, fmt.Errorf("mongo: encode billing: %w", err)
	}

	res, err := s.db.Collection(colBillings).ReplaceOne(ctx, bson.M{"_id": billing.ID, "version": expectedVersion}, m)
	if err != nil {
		return nil, fmt.Errorf("mongo: update billing: %w", conflictOr(err))
	}
	if res.MatchedCount == 0 {
		return nil, store.ErrConflict
	}
	return fromBillingModel(m)
}

func (s *Store) DeleteBilling(ctx context.Context, id string) error {
	res, err := s.db.Collection(colBillings).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo: delete billing: %w", conflictOr(err))
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==================== Counterparties ====================

func (s *Store) CreateCounterparty(ctx context.Context, cp domain.Counterparty) (*domain.Counterparty, error) {
	if strings.TrimSpace(cp.Contact) == "" || cp.Role == "" {
		return nil, store.ErrInvalidRequest
	}
	if cp.ID == "" {
		cp.ID = xid.New("cp")
	}
	if cp.Version == 0 {
		cp.Version = 1
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now()
	}
	cp.UpdatedAt = cp.CreatedAt
	m, err := toCounterpartyModel(cp)
	if err != nil {
		return nil, fmt.Errorf("mongo: encode counterparty: %w", err)
	}
	if _, err := s.db.Collection(colCounterparties).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, fmt.Errorf("mongo: create counterparty: %w", err)
	}
	return fromCounterpartyModel(m)
}

func (s *Store) GetCounterparty(ctx context.Context, id string) (*domain.Counterparty, error) {
	var m counterpartyModel
	if err := s.db.Collection(colCounterparties).FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: get counterparty: %w", err)
	}
	return fromCounterpartyModel(&m)
}

func (s *Store) FindCounterpartyByContact(ctx context.Context, contact string, role domain.CounterpartyRole) (*domain.Counterparty, error) {
	q := bson.M{"contact": contact}
	if role != "" {
		q["role"] = string(role)
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})

	var m counterpartyModel
	if err := s.db.Collection(colCounterparties).FindOne(ctx, q, opts).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find counterparty by contact: %w", err)
	}
	return fromCounterpartyModel(&m)
}

func (s *Store) ListCounterparties(ctx context.Context, role domain.CounterpartyRole) ([]domain.Counterparty, error) {
	q := bson.M{}
	if role != "" {
		q["role"] = string(role)
	}
	cur, err := s.db.Collection(colCounterparties).Find(ctx, q, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list counterparties: %w", err)
	}
	var models []counterpartyModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: list counterparties: %w", err)
	}

	out := make([]domain.Counterparty, 0, len(models))
	for i := range models {
		cp, err := fromCounterpartyModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}

func (s *Store) UpdateCounterparty(ctx context.Context, cp domain.Counterparty, expectedVersion int64) (*domain.Counterparty, error) {
	existing, err := s.GetCounterparty(ctx, cp.ID)
	if err != nil {
		return nil, err
	}
	cp.Contact = existing.Contact
	cp.Role = existing.Role
	cp.CreatedAt = existing.CreatedAt
	cp.Version = expectedVersion + 1
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now()
	}
	m, err := toCounterpartyModel(cp)
	if err != nil {
		return nil, fmt.Errorf("mongo: encode counterparty: %w", err)
	}

	res, err := s.db.Collection(colCounterparties).ReplaceOne(ctx, bson.M{"_id": cp.ID, "version": expectedVersion}, m)
	if err != nil {
		return nil, fmt.Errorf("mongo: update counterparty: %w", conflictOr(err))
	}
	if res.MatchedCount == 0 {
		return nil, store.ErrConflict
	}
	return fromCounterpartyModel(m)
}

// ==================== Catalog ====================

func (s *Store) FindOrCreateBrand(ctx context.Context, name string) (*domain.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidRequest
	}
	t := now()
	var m brandModel
	err := s.upsertByKey(ctx, colBrands, bson.M{"name_key": strings.ToLower(name)}, bson.M{
		"_id":        xid.New("brand"),
		"name":       name,
		"created_at": t,
		"updated_at": t,
	}, &m)
	if err != nil {
		return nil, fmt.Errorf("mongo: find or create brand: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindOrCreateModel(ctx context.Context, brandID string, name string) (*domain.Model, error) {
	name = strings.TrimSpace(name)
	if name == "" || brandID == "" {
		return nil, store.ErrInvalidRequest
	}
	t := now()
	var m modelModel
	err := s.upsertByKey(ctx, colModels, bson.M{"brand_id": brandID, "name_key": strings.ToLower(name)}, bson.M{
		"_id":        xid.New("model"),
		"name":       name,
		"created_at": t,
		"updated_at": t,
	}, &m)
	if err != nil {
		return nil, fmt.Errorf("mongo: find or create model: %w", err)
	}
	return m.toDomain(), nil
}

// upsertByKey returns the document matching key, inserting it with onInsert
// when absent. A racing insert surfaces as a duplicate key and is resolved by
// reading the winner.
func (s *Store) upsertByKey(ctx context.Context, col string, key bson.M, onInsert bson.M, out any) error {
	coll := s.db.Collection(col)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := coll.FindOneAndUpdate(ctx, key, bson.M{"$setOnInsert": onInsert}, opts).Decode(out)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		err = coll.FindOne(ctx, key).Decode(out)
	}
	return err
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	cur, err := s.db.Collection(colBrands).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name_key", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list brands: %w", err)
	}
	var models []brandModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: list brands: %w", err)
	}
	out := make([]domain.Brand, 0, len(models))
	for i := range models {
		out = append(out, *models[i].toDomain())
	}
	return out, nil
}

func (s *Store) ListModels(ctx context.Context, brandID string) ([]domain.Model, error) {
	q := bson.M{}
	if brandID != "" {
		q["brand_id"] = brandID
	}
	cur, err := s.db.Collection(colModels).Find(ctx, q, options.Find().SetSort(bson.D{{Key: "name_key", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list models: %w", err)
	}
	var models []modelModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: list models: %w", err)
	}
	out := make([]domain.Model, 0, len(models))
	for i := range models {
		out = append(out, *models[i].toDomain())
	}
	return out, nil
}

// ==================== Audit and users ====================

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}
	_, err := s.db.Collection(colAuditLogs).InsertOne(ctx, auditLogModel(entry))
	if err != nil {
		return fmt.Errorf("mongo: create audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.db.Collection(colAuditLogs).Find(ctx, bson.M{
		"created_at": bson.M{"$gte": from, "$lt": to},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list audit logs: %w", err)
	}
	var models []auditLogModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: list audit logs: %w", err)
	}
	out := make([]domain.AuditLog, 0, len(models))
	for _, m := range models {
		entry := domain.AuditLog(m)
		entry.CreatedAt = entry.CreatedAt.UTC()
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	_, err := s.db.Collection(colUsers).InsertOne(ctx, userModel{
		Username:  user.Username,
		Password:  user.Password,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
		UpdatedAt: now(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("mongo: create user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	cur, err := s.db.Collection(colUsers).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list users: %w", err)
	}
	var models []userModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: list users: %w", err)
	}
	out := make([]domain.UserAccount, 0, len(models))
	for _, m := range models {
		out = append(out, domain.UserAccount{
			Username:  m.Username,
			Password:  m.Password,
			Role:      m.Role,
			Active:    m.Active,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRequest
	}
	res, err := s.db.Collection(colUsers).UpdateOne(ctx,
		bson.M{"_id": username},
		bson.M{"$set": bson.M{"password": password, "updated_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("mongo: update user password: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==================== Helpers ====================

func (s *Store) findProducts(ctx context.Context, q bson.M, opts *options.FindOptionsBuilder) ([]domain.Product, error) {
	cur, err := s.db.Collection(colProducts).Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: find products: %w", err)
	}
	var models []productModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: find products: %w", err)
	}

	out := make([]domain.Product, 0, len(models))
	for i := range models {
		p, err := fromProductModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func containsPattern(val string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(val), Options: "i"}
}

// conflictOr maps write conflicts and transient transaction aborts to
// ErrConflict so the service retries them.
func conflictOr(err error) error {
	if err == nil {
		return nil
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.HasErrorCode(codeWriteConflict) || serverErr.HasErrorLabel("TransientTransactionError") {
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
	}
	return err
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func now() time.Time {
	return time.Now().UTC()
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colProducts: {
			{Keys: bson.D{{Key: "serial", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "supplier_id", Value: 1}}},
		},
		colBillings: {
			{
				Keys:    bson.D{{Key: "invoice_number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
			{Keys: bson.D{{Key: "items.serial", Value: 1}}},
		},
		colCounterparties: {
			{
				Keys:    bson.D{{Key: "contact", Value: 1}, {Key: "role", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "name", Value: 1}}},
		},
		colBrands: {
			{
				Keys:    bson.D{{Key: "name_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colModels: {
			{
				Keys:    bson.D{{Key: "brand_id", Value: 1}, {Key: "name_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colAuditLogs: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}
