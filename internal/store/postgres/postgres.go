package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/logging"
	"backoffice/backend/internal/store"
	"backoffice/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db   *sql.DB
	q    queryer
	inTx bool
	log  zerolog.Logger
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, q: db, log: logging.WithComponent("postgres")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn in a SERIALIZABLE transaction. Serialization failures and
// deadlocks come back as store.ErrConflict so the caller can retry.
func (s *Store) RunInTx(ctx context.Context, fn store.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(ctx, &Store{db: s.db, q: pgTx, inTx: true, log: s.log}); err != nil {
		return conflictOr(err)
	}
	return conflictOr(pgTx.Commit())
}

const productColumns = `
	id, model_id, model_name, brand_name, serial, sales_price, purchase_price,
	gst_purchase_price, sold_at_price, grade, engineer_name, accessories, supplier_id,
	status, qc_remark, billing_id, is_repaired, issue, repair_parts, repairer_cost,
	repair_remark, repair_by, repair_started_at, repair_completed_at,
	purchase_cost_including_expenses, created_by, created_at, updated_at`

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Serial) == "" || !product.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}
	partsJSON, err := json.Marshal(nonNilParts(product.RepairParts))
	if err != nil {
		return nil, err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
	`, product.ID, product.ModelID, product.ModelName, product.BrandName, product.Serial, product.SalesPrice, product.PurchasePrice,
		product.GSTPurchasePrice, product.SoldAtPrice, product.Grade, product.EngineerName, product.Accessories, product.SupplierID,
		string(product.Status), product.QCRemark, product.BillingID, product.IsRepaired, product.Issue, partsJSON, product.RepairerCost,
		product.RepairRemark, product.RepairBy, nullTime(product.RepairStartedAt), nullTime(product.RepairCompletedAt),
		product.PurchaseCostIncludingExpenses, product.CreatedBy, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if !filter.IncludeRemoved && filter.Status != domain.ProductRemoved {
		clauses = append(clauses, "status <> 'REMOVED'")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.SupplierID != "" {
		args = append(args, filter.SupplierID)
		clauses = append(clauses, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	if serial := strings.TrimSpace(filter.Serial); serial != "" {
		args = append(args, "%"+escapeLike(serial)+"%")
		clauses = append(clauses, fmt.Sprintf("serial ILIKE $%d", len(args)))
	}
	query := `SELECT ` + productColumns + ` FROM products`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryProducts(ctx, query, args...)
}

func (s *Store) FindProductsBySerial(ctx context.Context, serial string) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE serial = $1 AND status <> 'REMOVED'
		ORDER BY created_at DESC, id DESC
	`, serial)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product, expected domain.ProductStatus) (*domain.Product, error) {
	if !product.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	partsJSON, err := json.Marshal(nonNilParts(product.RepairParts))
	if err != nil {
		return nil, err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE products
		SET model_id = $3, model_name = $4, brand_name = $5, sales_price = $6, purchase_price = $7,
			gst_purchase_price = $8, sold_at_price = $9, grade = $10, engineer_name = $11, accessories = $12,
			status = $13, qc_remark = $14, billing_id = $15, is_repaired = $16, issue = $17, repair_parts = $18,
			repairer_cost = $19, repair_remark = $20, repair_by = $21, repair_started_at = $22,
			repair_completed_at = $23, purchase_cost_including_expenses = $24, updated_at = $25
		WHERE id = $1 AND status = $2
	`, product.ID, string(expected), product.ModelID, product.ModelName, product.BrandName, product.SalesPrice, product.PurchasePrice,
		product.GSTPurchasePrice, product.SoldAtPrice, product.Grade, product.EngineerName, product.Accessories,
		string(product.Status), product.QCRemark, product.BillingID, product.IsRepaired, product.Issue, partsJSON,
		product.RepairerCost, product.RepairRemark, product.RepairBy, nullTime(product.RepairStartedAt),
		nullTime(product.RepairCompletedAt), product.PurchaseCostIncludingExpenses, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := s.casResult(ctx, res, "products", product.ID); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

// NextInvoiceNumber draws from billing_invoice_seq. Sequence values are not
// returned on rollback, so invoice numbers may have gaps.
func (s *Store) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var next int64
	if err := s.q.QueryRowContext(ctx, `SELECT nextval('billing_invoice_seq')`).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

const billingColumns = `
	id, invoice_number, customer_id, customer_name, customer_contact, items,
	payable_amount, paid_amount, pending_amount, net_total, c_gst, s_gst,
	profit_to_show, actual_profit, status, version, created_by, created_at, updated_at`

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
	now := time.Now().UTC()
	if billing.CreatedAt.IsZero() {
		billing.CreatedAt = now
	}
	if billing.UpdatedAt.IsZero() {
		billing.UpdatedAt = billing.CreatedAt
	}
	itemsJSON, paidJSON, err := billingJSON(billing)
	if err != nil {
		return nil, err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO billings (`+billingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, billing.ID, billing.InvoiceNumber, billing.CustomerID, billing.CustomerName, billing.CustomerContact, itemsJSON,
		billing.PayableAmount, paidJSON, billing.PendingAmount, billing.NetTotal, billing.CGST, billing.SGST,
		billing.ProfitToShow, billing.ActualProfit, string(billing.Status), billing.Version, billing.CreatedBy,
		billing.CreatedAt, billing.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := billing
	return &created, nil
}

func (s *Store) GetBilling(ctx context.Context, id string) (*domain.Billing, error) {
	billing, err := scanBilling(s.q.QueryRowContext(ctx, `SELECT `+billingColumns+` FROM billings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return billing, nil
}

func (s *Store) ListBillings(ctx context.Context, filter store.BillingFilter) ([]domain.Billing, error) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		clauses = append(clauses, fmt.Sprintf("(customer_name ILIKE $%d OR customer_contact ILIKE $%d)", len(args), len(args)))
	}
	if serial := strings.TrimSpace(filter.Serial); serial != "" {
		args = append(args, "%"+escapeLike(serial)+"%")
		clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements(items) AS item WHERE item->>'imei_number' ILIKE $%d)", len(args)))
	}

	query := `SELECT ` + billingColumns + ` FROM billings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY invoice_number DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	billings := make([]domain.Billing, 0, 64)
	for rows.Next() {
		billing, err := scanBilling(rows)
		if err != nil {
			return nil, err
		}
		billings = append(billings, *billing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return billings, nil
}

func (s *Store) UpdateBilling(ctx context.Context, billing domain.Billing, expectedVersion int64) (*domain.Billing, error) {
	if !billing.Status.Valid() {
		return nil, store.ErrInvalidRequest
	}
	if billing.UpdatedAt.IsZero() {
		billing.UpdatedAt = time.Now().UTC()
	}
	itemsJSON, paidJSON, err := billingJSON(billing)
	if err != nil {
		return nil, err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE billings
		SET customer_id = $3, customer_name = $4, customer_contact = $5, items = $6, payable_amount = $7,
			paid_amount = $8, pending_amount = $9, net_total = $10, c_gst = $11, s_gst = $12,
			profit_to_show = $13, actual_profit = $14, status = $15, version = version + 1, updated_at = $16
		WHERE id = $1 AND version = $2
	`, billing.ID, expectedVersion, billing.CustomerID, billing.CustomerName, billing.CustomerContact, itemsJSON,
		billing.PayableAmount, paidJSON, billing.PendingAmount, billing.NetTotal, billing.CGST, billing.SGST,
		billing.ProfitToShow, billing.ActualProfit, string(billing.Status), billing.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := s.casResult(ctx, res, "billings", billing.ID); err != nil {
		return nil, err
	}
	return s.GetBilling(ctx, billing.ID)
}

func (s *Store) DeleteBilling(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM billings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const counterpartyColumns = `
	id, name, contact, role, address, payable_amount, pending_amount, paid_amount,
	advance_amount, version, created_at, updated_at`

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
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	paidJSON, err := json.Marshal(nonNilEntries(cp.PaidAmount))
	if err != nil {
		return nil, err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO counterparties (`+counterpartyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, cp.ID, cp.Name, cp.Contact, string(cp.Role), cp.Address, cp.PayableAmount, cp.PendingAmount, paidJSON,
		cp.AdvanceAmount, cp.Version, cp.CreatedAt, cp.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := cp
	return &created, nil
}

func (s *Store) GetCounterparty(ctx context.Context, id string) (*domain.Counterparty, error) {
	cp, err := scanCounterparty(s.q.QueryRowContext(ctx, `SELECT `+counterpartyColumns+` FROM counterparties WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return cp, nil
}

func (s *Store) FindCounterpartyByContact(ctx context.Context, contact string, role domain.CounterpartyRole) (*domain.Counterparty, error) {
	cp, err := scanCounterparty(s.q.QueryRowContext(ctx, `
		SELECT `+counterpartyColumns+`
		FROM counterparties
		WHERE contact = $1 AND ($2 = '' OR role = $2)
		ORDER BY created_at ASC
		LIMIT 1
	`, contact, string(role)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return cp, nil
}

func (s *Store) ListCounterparties(ctx context.Context, role domain.CounterpartyRole) ([]domain.Counterparty, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+counterpartyColumns+`
		FROM counterparties
		WHERE $1 = '' OR role = $1
		ORDER BY lower(name) ASC
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Counterparty, 0, 32)
	for rows.Next() {
		cp, err := scanCounterparty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateCounterparty(ctx context.Context, cp domain.Counterparty, expectedVersion int64) (*domain.Counterparty, error) {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	paidJSON, err := json.Marshal(nonNilEntries(cp.PaidAmount))
	if err != nil {
		return nil, err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE counterparties
		SET name = $3, address = $4, payable_amount = $5, pending_amount = $6, paid_amount = $7,
			advance_amount = $8, version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $2
	`, cp.ID, expectedVersion, cp.Name, cp.Address, cp.PayableAmount, cp.PendingAmount, paidJSON, cp.AdvanceAmount, cp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := s.casResult(ctx, res, "counterparties", cp.ID); err != nil {
		return nil, err
	}
	return s.GetCounterparty(ctx, cp.ID)
}

func (s *Store) FindOrCreateBrand(ctx context.Context, name string) (*domain.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidRequest
	}
	now := time.Now().UTC()
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO brands (id, name, created_at, updated_at)
		VALUES ($1,$2,$3,$3)
		ON CONFLICT DO NOTHING
	`, xid.New("brand"), name, now); err != nil {
		return nil, err
	}

	var brand domain.Brand
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM brands
		WHERE lower(name) = lower($1)
	`, name).Scan(&brand.ID, &brand.Name, &brand.CreatedAt, &brand.UpdatedAt)
	if err != nil {
		return nil, err
	}
	brand.CreatedAt = brand.CreatedAt.UTC()
	brand.UpdatedAt = brand.UpdatedAt.UTC()
	return &brand, nil
}

func (s *Store) FindOrCreateModel(ctx context.Context, brandID string, name string) (*domain.Model, error) {
	name = strings.TrimSpace(name)
	if name == "" || brandID == "" {
		return nil, store.ErrInvalidRequest
	}
	now := time.Now().UTC()
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO models (id, brand_id, name, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$4)
		ON CONFLICT DO NOTHING
	`, xid.New("model"), brandID, name, now); err != nil {
		return nil, err
	}

	var model domain.Model
	err := s.q.QueryRowContext(ctx, `
		SELECT id, brand_id, name, created_at, updated_at
		FROM models
		WHERE brand_id = $1 AND lower(name) = lower($2)
	`, brandID, name).Scan(&model.ID, &model.BrandID, &model.Name, &model.CreatedAt, &model.UpdatedAt)
	if err != nil {
		return nil, err
	}
	model.CreatedAt = model.CreatedAt.UTC()
	model.UpdatedAt = model.UpdatedAt.UTC()
	return &model, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM brands
		ORDER BY lower(name) ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 32)
	for rows.Next() {
		var brand domain.Brand
		if err := rows.Scan(&brand.ID, &brand.Name, &brand.CreatedAt, &brand.UpdatedAt); err != nil {
			return nil, err
		}
		brand.CreatedAt = brand.CreatedAt.UTC()
		brand.UpdatedAt = brand.UpdatedAt.UTC()
		brands = append(brands, brand)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) ListModels(ctx context.Context, brandID string) ([]domain.Model, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, brand_id, name, created_at, updated_at
		FROM models
		WHERE $1 = '' OR brand_id = $1
		ORDER BY lower(name) ASC
	`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	models := make([]domain.Model, 0, 64)
	for rows.Next() {
		var model domain.Model
		if err := rows.Scan(&model.ID, &model.BrandID, &model.Name, &model.CreatedAt, &model.UpdatedAt); err != nil {
			return nil, err
		}
		model.CreatedAt = model.CreatedAt.UTC()
		model.UpdatedAt = model.UpdatedAt.UTC()
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
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
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRequest
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// casResult turns a zero-row conditional update into ErrNotFound or
// ErrConflict depending on whether the row exists at all.
func (s *Store) casResult(ctx context.Context, res sql.Result, table string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p         domain.Product
		status    string
		partsRaw  []byte
		started   sql.NullTime
		completed sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.ModelID, &p.ModelName, &p.BrandName, &p.Serial, &p.SalesPrice, &p.PurchasePrice,
		&p.GSTPurchasePrice, &p.SoldAtPrice, &p.Grade, &p.EngineerName, &p.Accessories, &p.SupplierID,
		&status, &p.QCRemark, &p.BillingID, &p.IsRepaired, &p.Issue, &partsRaw, &p.RepairerCost,
		&p.RepairRemark, &p.RepairBy, &started, &completed,
		&p.PurchaseCostIncludingExpenses, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = domain.ProductStatus(status)
	if len(partsRaw) > 0 {
		if err := json.Unmarshal(partsRaw, &p.RepairParts); err != nil {
			return nil, fmt.Errorf("postgres: decode repair_parts of %s: %w", p.ID, err)
		}
	}
	if started.Valid {
		t := started.Time.UTC()
		p.RepairStartedAt = &t
	}
	if completed.Valid {
		t := completed.Time.UTC()
		p.RepairCompletedAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func scanBilling(row rowScanner) (*domain.Billing, error) {
	var (
		b        domain.Billing
		status   string
		itemsRaw []byte
		paidRaw  []byte
	)
	if err := row.Scan(&b.ID, &b.InvoiceNumber, &b.CustomerID, &b.CustomerName, &b.CustomerContact, &itemsRaw,
		&b.PayableAmount, &paidRaw, &b.PendingAmount, &b.NetTotal, &b.CGST, &b.SGST,
		&b.ProfitToShow, &b.ActualProfit, &status, &b.Version, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = domain.BillingStatus(status)
	if err := json.Unmarshal(itemsRaw, &b.Items); err != nil {
		return nil, fmt.Errorf("postgres: decode items of %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(paidRaw, &b.PaidAmount); err != nil {
		return nil, fmt.Errorf("postgres: decode paid_amount of %s: %w", b.ID, err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func scanCounterparty(row rowScanner) (*domain.Counterparty, error) {
	var (
		cp      domain.Counterparty
		role    string
		paidRaw []byte
	)
	if err := row.Scan(&cp.ID, &cp.Name, &cp.Contact, &role, &cp.Address, &cp.PayableAmount, &cp.PendingAmount, &paidRaw,
		&cp.AdvanceAmount, &cp.Version, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
		return nil, err
	}
	cp.Role = domain.CounterpartyRole(role)
	if err := json.Unmarshal(paidRaw, &cp.PaidAmount); err != nil {
		return nil, fmt.Errorf("postgres: decode paid_amount of %s: %w", cp.ID, err)
	}
	cp.CreatedAt = cp.CreatedAt.UTC()
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return &cp, nil
}

func billingJSON(billing domain.Billing) ([]byte, []byte, error) {
	items := billing.Items
	if items == nil {
		items = []domain.BillingItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, nil, err
	}
	paidJSON, err := json.Marshal(nonNilEntries(billing.PaidAmount))
	if err != nil {
		return nil, nil, err
	}
	return itemsJSON, paidJSON, nil
}

func nonNilEntries(entries []domain.PaymentEntry) []domain.PaymentEntry {
	if entries == nil {
		return []domain.PaymentEntry{}
	}
	return entries
}

func nonNilParts(parts []domain.RepairPart) []domain.RepairPart {
	if parts == nil {
		return []domain.RepairPart{}
	}
	return parts
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// conflictOr maps serialization_failure and deadlock_detected to ErrConflict.
func conflictOr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	}
	return err
}

func escapeLike(val string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
