package enums

import "fmt"

// StockOperation selects how a stock adjustment applies its quantity.
type StockOperation string

const (
	StockOperationAdd      StockOperation = "add"
	StockOperationSubtract StockOperation = "subtract"
	StockOperationSet      StockOperation = "set"
)

var validStockOperations = []StockOperation{
	StockOperationAdd,
	StockOperationSubtract,
	StockOperationSet,
}

// String implements fmt.Stringer.
func (o StockOperation) String() string {
	return string(o)
}

// IsValid reports whether the value is a known StockOperation.
func (o StockOperation) IsValid() bool {
	for _, candidate := range validStockOperations {
		if candidate == o {
			return true
		}
	}
	return false
}

// Apply returns the stock level after applying the operation, floored at zero.
func (o StockOperation) Apply(current, quantity int) int {
	var next int
	switch o {
	case StockOperationAdd:
		next = current + quantity
	case StockOperationSubtract:
		next = current - quantity
	case StockOperationSet:
		next = quantity
	default:
		next = current
	}
	if next < 0 {
		return 0
	}
	return next
}

// ParseStockOperation converts raw input into a StockOperation.
func ParseStockOperation(value string) (StockOperation, error) {
	for _, candidate := range validStockOperations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock operation %q", value)
}
