package product

import (
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListFilters narrows the catalog listing.
type ListFilters struct {
	Category      string
	Query         string
	AvailableOnly bool
	Popular       bool
}

// OptionDTO is a selectable add-on.
type OptionDTO struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Surcharge decimal.Decimal `json:"surcharge"`
	Available bool            `json:"available"`
}

// ProductDTO is the public catalog representation of a product.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`
	OrderCount  int             `json:"order_count"`
	Options     []OptionDTO     `json:"options"`
}

func toProductDTO(p models.Product) ProductDTO {
	dto := ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price.Round(2),
		Available:   p.Orderable(),
		OrderCount:  p.OrderCount,
		Options:     make([]OptionDTO, 0, len(p.Options)),
	}
	for _, opt := range p.Options {
		dto.Options = append(dto.Options, OptionDTO{
			ID:        opt.ID,
			Name:      opt.Name,
			Surcharge: opt.Surcharge.Round(2),
			Available: opt.IsAvailable,
		})
	}
	return dto
}
