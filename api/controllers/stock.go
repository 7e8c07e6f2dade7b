package controllers

import (
	"context"
	"net/http"

	"github.com/quickcart/quickcart-backend/api/responses"
	"github.com/quickcart/quickcart-backend/api/validators"
	"github.com/quickcart/quickcart-backend/pkg/db/models"
	"github.com/quickcart/quickcart-backend/pkg/enums"
	pkgerrors "github.com/quickcart/quickcart-backend/pkg/errors"
	"github.com/quickcart/quickcart-backend/pkg/logger"
)

// StockAdjuster is the operator surface of the stock ledger.
type StockAdjuster interface {
	Adjust(ctx context.Context, productID int64, quantity int, op enums.StockOperation) (*models.Product, error)
}

type adjustStockRequest struct {
	Quantity  *int   `json:"quantity" validate:"required,min=0"`
	Operation string `json:"operation" validate:"required,oneof=add subtract set"`
}

type stockResponse struct {
	ProductID     int64  `json:"product_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	StockQuantity int    `json:"stock_quantity"`
}

// AdminAdjustStock applies an add, subtract or set to a product's stock.
func AdminAdjustStock(ledger StockAdjuster, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}

		productID, err := validators.ParseInt64Param(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := ledger.Adjust(r.Context(), productID, *payload.Quantity, enums.StockOperation(payload.Operation))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stockResponse{
			ProductID:     product.ID,
			SKU:           product.SKU,
			Name:          product.Name,
			StockQuantity: product.StockQuantity,
		})
	}
}
