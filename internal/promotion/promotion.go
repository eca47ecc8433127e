package promotion

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pricing/internal/document"
)

// SnapshotItem is one cart line as seen by the promotion calculator.
type SnapshotItem struct {
	ProductID string          `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category,omitempty"`
}

// Snapshot is the serialized cart sent to the promotion calculator.
type Snapshot struct {
	Total      decimal.Decimal `json:"total"`
	ClientID   string          `json:"clientId,omitempty"`
	ApplyScope string          `json:"applyScope"`
	Items      []SnapshotItem  `json:"items"`
}

// Result is the calculator answer. Only DiscountTotal reaches the totals.
type Result struct {
	DiscountTotal         decimal.Decimal `json:"discountTotal"`
	AppliedPromotionNames []string        `json:"appliedPromotionNames"`
}

// Calculator computes cart-level promotions.
type Calculator interface {
	Calculate(ctx context.Context, snap Snapshot) (Result, error)
}

// NewSnapshot serializes the document lines at their current resolved prices.
func NewSnapshot(doc *document.Document, scope string) Snapshot {
	lines := doc.Lines()
	snap := Snapshot{
		Total:      decimal.Zero,
		ClientID:   doc.ClientID,
		ApplyScope: scope,
		Items:      make([]SnapshotItem, 0, len(lines)),
	}
	for _, l := range lines {
		item := SnapshotItem{Quantity: l.Quantity, Price: l.UnitPrice}
		if l.Item != nil {
			item.ProductID = l.Item.ID
			item.Category = l.Item.Category
		}
		snap.Items = append(snap.Items, item)
		snap.Total = snap.Total.Add(l.Amount())
	}
	return snap
}

// Document converts a result into the form folded into document totals.
func (r Result) Document() document.Promotion {
	return document.Promotion{Discount: r.DiscountTotal, Names: r.AppliedPromotionNames}
}

// Static returns a fixed result. It backs deployments without a promotion service.
type Static struct {
	Result Result
}

// Calculate returns the configured result unless the cart is empty.
func (s Static) Calculate(_ context.Context, snap Snapshot) (Result, error) {
	if len(snap.Items) == 0 {
		return Result{DiscountTotal: decimal.Zero}, nil
	}
	return s.Result, nil
}
