package cart

import (
	"context"
	"errors"
	"sort"
	"strings"

	product "github.com/angelmondragon/orderportal/internal/products"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxQuantity caps a single cart line.
const MaxQuantity = 99

// Service manages the user-owned cart consumed by checkout.
type Service interface {
	View(ctx context.Context, actor types.Actor) (*View, error)
	AddItem(ctx context.Context, actor types.Actor, input AddItemInput) (*models.CartItem, error)
	UpdateQuantity(ctx context.Context, actor types.Actor, itemID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, actor types.Actor, itemID uuid.UUID) error
	Clear(ctx context.Context, actor types.Actor) error
}

// AddItemInput describes a product line to add.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	OptionIDs []uuid.UUID
	Notes     string
}

// Line is a cart item priced against the live catalog.
type Line struct {
	ID          uuid.UUID              `json:"id"`
	ProductID   uuid.UUID              `json:"product_id"`
	ProductName string                 `json:"product_name"`
	Quantity    int                    `json:"quantity"`
	Options     types.OrderItemOptions `json:"options"`
	UnitPrice   decimal.Decimal        `json:"unit_price"`
	LineTotal   decimal.Decimal        `json:"line_total"`
	Notes       *string                `json:"notes,omitempty"`
	Available   bool                   `json:"available"`
}

// View is the cart as checkout would see it right now. Total only counts available lines.
type View struct {
	Items     []Line          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Orderable bool            `json:"orderable"`
}

type service struct {
	repo    Repository
	catalog Catalog
}

// NewService wires the cart service.
func NewService(repo Repository, catalog Catalog) (Service, error) {
	if repo == nil {
		return nil, errors.New("cart repository required")
	}
	if catalog == nil {
		return nil, errors.New("catalog required")
	}
	return &service{repo: repo, catalog: catalog}, nil
}

func (s *service) View(ctx context.Context, actor types.Actor) (*View, error) {
	items, err := s.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, db.MapError(err, "load cart")
	}
	productIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.catalog.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, db.MapError(err, "load catalog")
	}

	view := &View{Items: make([]Line, 0, len(items)), Total: decimal.Zero, Orderable: len(items) > 0}
	for _, item := range items {
		line := Line{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Notes:     item.Notes,
			UnitPrice: decimal.Zero,
			LineTotal: decimal.Zero,
		}
		p, ok := products[item.ProductID]
		if ok {
			line.ProductName = p.Name
			if priced, err := product.PriceLine(p, item.OptionIDs); err == nil {
				line.Available = true
				line.Options = priced.Options
				line.UnitPrice = priced.UnitPrice
				line.LineTotal = priced.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
				view.Total = view.Total.Add(line.LineTotal)
			}
		}
		if !line.Available {
			view.Orderable = false
		}
		view.ItemCount += item.Quantity
		view.Items = append(view.Items, line)
	}
	return view, nil
}

func (s *service) AddItem(ctx context.Context, actor types.Actor, input AddItemInput) (*models.CartItem, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity < 1 || input.Quantity > MaxQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be between 1 and 99")
	}

	p, err := s.catalog.FindByID(ctx, input.ProductID)
	if err != nil {
		return nil, db.MapError(err, "product not found")
	}
	if _, err := product.PriceLine(*p, input.OptionIDs); err != nil {
		return nil, err
	}

	optionIDs := normalizeOptions(input.OptionIDs)
	notes := strings.TrimSpace(input.Notes)

	existing, err := s.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, db.MapError(err, "load cart")
	}
	for _, item := range existing {
		if item.ProductID != input.ProductID || !sameOptions(item.OptionIDs, optionIDs) || notes != "" || item.Notes != nil {
			continue
		}
		quantity := item.Quantity + input.Quantity
		if quantity > MaxQuantity {
			quantity = MaxQuantity
		}
		if err := s.repo.UpdateQuantity(ctx, actor.UserID, item.ID, quantity); err != nil {
			return nil, db.MapError(err, "update cart item")
		}
		item.Quantity = quantity
		return &item, nil
	}

	item := &models.CartItem{
		UserID:    actor.UserID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		OptionIDs: optionIDs,
	}
	if notes != "" {
		item.Notes = &notes
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, db.MapError(err, "add cart item")
	}
	return item, nil
}

func (s *service) UpdateQuantity(ctx context.Context, actor types.Actor, itemID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, actor, itemID)
	}
	if quantity > MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be between 1 and 99")
	}
	if err := s.repo.UpdateQuantity(ctx, actor.UserID, itemID, quantity); err != nil {
		return db.MapError(err, "cart item not found")
	}
	return nil
}

func (s *service) RemoveItem(ctx context.Context, actor types.Actor, itemID uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, actor.UserID, itemID)
	if err != nil {
		return db.MapError(err, "remove cart item")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return nil
}

func (s *service) Clear(ctx context.Context, actor types.Actor) error {
	if _, err := s.repo.DeleteByUser(ctx, actor.UserID); err != nil {
		return db.MapError(err, "clear cart")
	}
	return nil
}

func normalizeOptions(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sameOptions(a, b []uuid.UUID) bool {
	a = normalizeOptions(a)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
