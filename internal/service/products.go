package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/finance"
	"backoffice/backend/internal/inventory"
	"backoffice/backend/internal/lock"
	"backoffice/backend/internal/store"
	"backoffice/backend/internal/xid"
)

// ResolveModel finds or creates the brand and the model under it.
func (s *Service) ResolveModel(ctx context.Context, brandName string, modelName string) (domain.ModelRef, error) {
	return resolveModel(ctx, s.repo, brandName, modelName)
}

func resolveModel(ctx context.Context, repo store.Repository, brandName string, modelName string) (domain.ModelRef, error) {
	brandName = strings.TrimSpace(brandName)
	modelName = strings.TrimSpace(modelName)
	if brandName == "" || modelName == "" {
		return domain.ModelRef{}, fmt.Errorf("%w: brand_name and model_name are required", store.ErrInvalidRequest)
	}
	brand, err := repo.FindOrCreateBrand(ctx, brandName)
	if err != nil {
		return domain.ModelRef{}, err
	}
	model, err := repo.FindOrCreateModel(ctx, brand.ID, modelName)
	if err != nil {
		return domain.ModelRef{}, err
	}
	return domain.ModelRef{ModelID: model.ID, ModelName: model.Name, BrandID: brand.ID, BrandName: brand.Name}, nil
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) ListModels(ctx context.Context, brandID string) ([]domain.Model, error) {
	return s.repo.ListModels(ctx, strings.TrimSpace(brandID))
}

// CreateProduct takes a unit into stock from a supplier and charges the
// purchase price to the supplier's payable.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	serial := strings.TrimSpace(req.Serial)
	if serial == "" {
		return domain.Product{}, fmt.Errorf("%w: imei_number is required", store.ErrInvalidRequest)
	}
	if req.PurchasePrice.IsNegative() || req.SalesPrice.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: prices must not be negative", store.ErrInvalidRequest)
	}
	status := domain.ProductAvailable
	switch requested := domain.ProductStatus(strings.ToUpper(strings.TrimSpace(req.Status))); requested {
	case "", domain.ProductAvailable:
	case domain.ProductReturn:
		status = domain.ProductReturn
	default:
		return domain.Product{}, fmt.Errorf("%w: intake status must be AVAILABLE or RETURN", store.ErrInvalidRequest)
	}
	contact := strings.TrimSpace(req.SupplierContact)

	var created domain.Product
	err := s.withRetry(ctx, "create product", lock.SerialKeys([]string{serial}), func(ctx context.Context, repo store.Repository) error {
		supplier, err := repo.FindCounterpartyByContact(ctx, contact, domain.RoleSupplier)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: supplier %s", store.ErrCounterpartyNotFound, contact)
			}
			return err
		}
		ref, err := resolveModel(ctx, repo, req.BrandName, req.ModelName)
		if err != nil {
			return err
		}

		siblings, err := repo.FindProductsBySerial(ctx, serial)
		if err != nil {
			return err
		}
		intakeStatus := status
		for _, sibling := range siblings {
			switch sibling.Status {
			case domain.ProductAvailable:
				return fmt.Errorf("%w: %s", store.ErrDuplicateSerial, serial)
			case domain.ProductSold:
				intakeStatus = domain.ProductReturn
			}
		}

		now := s.now()
		product, err := repo.CreateProduct(ctx, domain.Product{
			ID:                            xid.New("prd"),
			ModelID:                       ref.ModelID,
			ModelName:                     ref.ModelName,
			BrandName:                     ref.BrandName,
			Serial:                        serial,
			SalesPrice:                    req.SalesPrice,
			PurchasePrice:                 req.PurchasePrice,
			GSTPurchasePrice:              finance.GSTPurchasePrice(req.PurchasePrice),
			SoldAtPrice:                   decimal.Zero,
			Grade:                         strings.TrimSpace(req.Grade),
			EngineerName:                  strings.TrimSpace(req.EngineerName),
			Accessories:                   strings.TrimSpace(req.Accessories),
			SupplierID:                    supplier.ID,
			Status:                        intakeStatus,
			QCRemark:                      strings.TrimSpace(req.QCRemark),
			RepairerCost:                  decimal.Zero,
			PurchaseCostIncludingExpenses: req.PurchasePrice,
			CreatedBy:                     actorName(ctx),
			CreatedAt:                     now,
			UpdatedAt:                     now,
		})
		if err != nil {
			return err
		}
		if err := s.applyLedgerDelta(ctx, repo, supplier.ID, domain.LedgerDelta{PayableDelta: req.PurchasePrice}); err != nil {
			return err
		}
		created = *product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "CREATE_PRODUCT", "product", created.ID, fmt.Sprintf("serial=%s status=%s purchase=%s", created.Serial, created.Status, created.PurchasePrice))
	return created, nil
}

func (s *Service) ListProducts(ctx context.Context, filter store.ProductFilter) (domain.ProductListResponse, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.ProductListResponse{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidRequest, filter.Status)
	}
	if filter.Limit < 1 || filter.Limit > 1000 {
		filter.Limit = 1000
	}
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return domain.ProductListResponse{}, err
	}

	resp := domain.ProductListResponse{
		Products:          products,
		PurchaseTotal:     decimal.Zero,
		RepairerCostTotal: decimal.Zero,
		PartCostTotal:     decimal.Zero,
	}
	for _, product := range products {
		resp.PurchaseTotal = resp.PurchaseTotal.Add(product.PurchasePrice)
		resp.RepairerCostTotal = resp.RepairerCostTotal.Add(product.RepairerCost)
		resp.PartCostTotal = resp.PartCostTotal.Add(inventory.PartsCost(product.RepairParts))
	}
	return resp, nil
}

func (s *Service) RemoveProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	current, err := s.loadProduct(ctx, s.repo, id)
	if err != nil {
		return domain.Product{}, err
	}

	var removed domain.Product
	err = s.withRetry(ctx, "remove product", lock.SerialKeys([]string{current.Serial}), func(ctx context.Context, repo store.Repository) error {
		product, err := s.ledger.Remove(ctx, repo, id, s.now())
		if err != nil {
			return err
		}
		removed = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "REMOVE_PRODUCT", "product", id, fmt.Sprintf("serial=%s", removed.Serial))
	return removed, nil
}

func (s *Service) StartRepair(ctx context.Context, id string, req domain.RepairStartRequest) (domain.Product, error) {
	issue := strings.TrimSpace(req.Issue)
	if issue == "" {
		return domain.Product{}, fmt.Errorf("%w: issue is required", store.ErrInvalidRequest)
	}
	current, err := s.loadProduct(ctx, s.repo, id)
	if err != nil {
		return domain.Product{}, err
	}

	var started domain.Product
	err = s.withRetry(ctx, "start repair", lock.SerialKeys([]string{current.Serial}), func(ctx context.Context, repo store.Repository) error {
		repairer, err := loadCounterparty(ctx, repo, strings.TrimSpace(req.RepairerID))
		if err != nil {
			return err
		}
		if repairer.Role != domain.RoleRepairer {
			return fmt.Errorf("%w: %s is not a repairer", store.ErrInvalidRequest, repairer.ID)
		}
		product, err := s.ledger.StartRepair(ctx, repo, id, issue, repairer.ID, s.now())
		if err != nil {
			return err
		}
		started = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "START_REPAIR", "product", id, fmt.Sprintf("serial=%s repairer=%s", started.Serial, started.RepairBy))
	return started, nil
}

// CompleteRepair closes a repair and charges the repairer and each parts shop.
func (s *Service) CompleteRepair(ctx context.Context, id string, req domain.RepairCompleteRequest) (domain.Product, error) {
	if req.RepairerCost.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: repairer_cost must not be negative", store.ErrInvalidRequest)
	}
	parts := make([]domain.RepairPart, 0, len(req.Parts))
	for _, part := range req.Parts {
		part.ShopID = strings.TrimSpace(part.ShopID)
		part.PartName = strings.TrimSpace(part.PartName)
		if part.ShopID == "" || part.PartName == "" {
			return domain.Product{}, fmt.Errorf("%w: every part needs shop_id and part_name", store.ErrInvalidRequest)
		}
		if part.Cost.IsNegative() {
			return domain.Product{}, fmt.Errorf("%w: cost of %s must not be negative", store.ErrInvalidRequest, part.PartName)
		}
		parts = append(parts, part)
	}
	current, err := s.loadProduct(ctx, s.repo, id)
	if err != nil {
		return domain.Product{}, err
	}

	var completed domain.Product
	err = s.withRetry(ctx, "complete repair", lock.SerialKeys([]string{current.Serial}), func(ctx context.Context, repo store.Repository) error {
		product, err := s.ledger.CompleteRepair(ctx, repo, id, inventory.RepairCompletion{
			Parts:        parts,
			RepairerCost: req.RepairerCost,
			Remark:       strings.TrimSpace(req.Remark),
		}, s.now())
		if err != nil {
			return err
		}
		if product.RepairBy != "" {
			if err := s.applyLedgerDelta(ctx, repo, product.RepairBy, domain.LedgerDelta{PayableDelta: req.RepairerCost}); err != nil {
				return err
			}
		}

		byShop := map[string]decimal.Decimal{}
		for _, part := range parts {
			byShop[part.ShopID] = byShop[part.ShopID].Add(part.Cost)
		}
		shops := make([]string, 0, len(byShop))
		for shopID := range byShop {
			shops = append(shops, shopID)
		}
		sort.Strings(shops)
		for _, shopID := range shops {
			if err := s.applyLedgerDelta(ctx, repo, shopID, domain.LedgerDelta{PayableDelta: byShop[shopID]}); err != nil {
				return err
			}
		}
		completed = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "COMPLETE_REPAIR", "product", id, fmt.Sprintf("serial=%s parts=%d repairer_cost=%s", completed.Serial, len(completed.RepairParts), completed.RepairerCost))
	return completed, nil
}

func (s *Service) loadProduct(ctx context.Context, repo store.Repository, id string) (*domain.Product, error) {
	product, err := repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, id)
		}
		return nil, err
	}
	return product, nil
}
