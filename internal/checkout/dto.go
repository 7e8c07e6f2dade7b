package checkout

import (
	"github.com/quickcart/quickcart-backend/pkg/enums"
	"github.com/quickcart/quickcart-backend/pkg/types"
)

// CheckoutInput carries what the customer submits to place an order.
type CheckoutInput struct {
	ShippingAddress types.Address
	BillingAddress  types.Address
	PaymentMethod   enums.PaymentMethod
	Notes           *string
}
