package product

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service exposes catalog reads and the current price of a configured line.
type Service interface {
	ListProducts(ctx context.Context, filters ListFilters) ([]ProductDTO, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
}

type service struct {
	repo Repository
}

// NewService wires the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListProducts(ctx context.Context, filters ListFilters) ([]ProductDTO, error) {
	filters.Category = strings.TrimSpace(filters.Category)
	filters.Query = strings.ToLower(strings.TrimSpace(filters.Query))
	rows, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, db.MapError(err, "list products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toProductDTO(row))
	}
	return out, nil
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	row, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, db.MapError(err, "product not found")
	}
	if !row.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	dto := toProductDTO(*row)
	return &dto, nil
}

// PricedLine is a cart line priced against the catalog as it is right now.
type PricedLine struct {
	Product   models.Product
	Options   types.OrderItemOptions
	UnitPrice decimal.Decimal
}

// PriceLine resolves optionIDs against product and returns the live unit price.
// An inactive or unavailable product, an unknown option or an unavailable option is a validation error.
func PriceLine(product models.Product, optionIDs []uuid.UUID) (*PricedLine, error) {
	if !product.Orderable() {
		return nil, unavailable(product.Name)
	}
	byID := make(map[uuid.UUID]models.ProductOption, len(product.Options))
	for _, opt := range product.Options {
		byID[opt.ID] = opt
	}

	selected := make(types.OrderItemOptions, 0, len(optionIDs))
	seen := make(map[uuid.UUID]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		opt, ok := byID[id]
		if !ok || !opt.IsAvailable {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "option no longer available for "+product.Name).
				WithDetails(map[string]any{"product": product.Name, "option_id": id.String()})
		}
		selected = append(selected, types.OrderItemOption{
			ID:        opt.ID.String(),
			Name:      opt.Name,
			Surcharge: opt.Surcharge.Round(2),
		})
	}

	return &PricedLine{
		Product:   product,
		Options:   selected,
		UnitPrice: product.Price.Round(2).Add(selected.TotalSurcharge()),
	}, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, name+" is no longer available").
		WithDetails(map[string]any{"product": name})
}
