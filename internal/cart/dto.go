package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quickcart/quickcart-backend/pkg/db/models"
)

// ProductSummary is the catalog data shown next to a cart line.
type ProductSummary struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
}

type ItemView struct {
	ID        uuid.UUID       `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Product   *ProductSummary `json:"product,omitempty"`
}

// CartView is the cart as returned to callers. Totals are derived from the
// lines on every read and never stored.
type CartView struct {
	ID            uuid.UUID       `json:"id"`
	Items         []ItemView      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	TotalQuantity int             `json:"total_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewCartView(record *models.Cart) *CartView {
	view := &CartView{
		ID:        record.ID,
		Items:     make([]ItemView, 0, len(record.Items)),
		Total:     decimal.Zero,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	for _, item := range record.Items {
		line := item.LineTotal()
		view.Items = append(view.Items, ItemView{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			LineTotal: line,
			Product:   summarize(item.Product),
		})
		view.Total = view.Total.Add(line)
		view.TotalQuantity += item.Quantity
	}
	return view
}

func summarize(p *models.Product) *ProductSummary {
	if p == nil {
		return nil
	}
	return &ProductSummary{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive,
	}
}
