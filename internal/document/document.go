package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pricing/internal/pricing"
)

var (
	// ErrLineNotFound indicates the requested line does not belong to the document.
	ErrLineNotFound = errors.New("document line not found")
	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrNegativePrice is returned when a manual price below zero is entered.
	ErrNegativePrice = errors.New("price must not be negative")
	// ErrMissingItem is returned when a line is added without a catalog snapshot.
	ErrMissingItem = errors.New("catalog item is required")
)

// Kind names the screen a document belongs to.
type Kind string

const (
	KindSale      Kind = "sale"
	KindQuotation Kind = "quotation"
	KindReturn    Kind = "return"
	KindPurchase  Kind = "purchase"
	KindTransfer  Kind = "transfer"
)

// ParseKind normalises a kind string, defaulting to KindSale.
func ParseKind(v string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(v))); k {
	case "":
		return KindSale, nil
	case KindSale, KindQuotation, KindReturn, KindPurchase, KindTransfer:
		return k, nil
	default:
		return "", fmt.Errorf("unknown document kind %q", v)
	}
}

// costBased reports whether the kind falls back to the reference cost instead of the list price.
func (k Kind) costBased() bool {
	return k == KindPurchase || k == KindTransfer
}

// OrderLine is a document line. UnitConversionFactor, UnitPrice, PriceCurrency and PriceRule
// are derived and refreshed whenever the unit, level or currency changes.
type OrderLine struct {
	ID                   uuid.UUID
	Item                 *pricing.CatalogItem
	Quantity             decimal.Decimal
	Unit                 string
	Level                string
	UnitConversionFactor decimal.Decimal
	UnitPrice            decimal.Decimal
	PriceCurrency        string
	PriceRule            pricing.Rule
	ManualPrice          bool
	LineDiscount         decimal.Decimal
	TaxRate              decimal.Decimal
}

// Amount returns quantity * unit price.
func (l OrderLine) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// BaseQuantity returns the quantity expressed in the item's base unit.
func (l OrderLine) BaseQuantity() decimal.Decimal {
	return l.Quantity.Mul(l.UnitConversionFactor)
}

// Promotion is the outcome of the external promotion calculator folded into the totals.
type Promotion struct {
	Discount decimal.Decimal
	Names    []string
}

// Document owns its lines and recomputes prices and totals on every edit. It is not safe for
// concurrent use.
type Document struct {
	ID       uuid.UUID
	Kind     Kind
	ClientID string

	cfg           pricing.PricingConfig
	resolver      pricing.Resolver
	observer      pricing.Observer
	currency      string
	rate          decimal.Decimal
	level         string
	clientLevel   string
	taxRate       decimal.Decimal
	orderDiscount decimal.Decimal
	promotion     Promotion
	lines         []*OrderLine
}

// Option customises a document at construction.
type Option func(*Document)

// WithObserver routes unresolved-unit and resolution events to o.
func WithObserver(o pricing.Observer) Option {
	return func(d *Document) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithLevel sets the price level used for new lines.
func WithLevel(level string) Option {
	return func(d *Document) {
		if strings.TrimSpace(level) != "" {
			d.level = strings.TrimSpace(level)
		}
	}
}

// WithClientLevel sets the customer's own price level.
func WithClientLevel(level string) Option {
	return func(d *Document) { d.clientLevel = strings.TrimSpace(level) }
}

// WithTaxRate sets the tax rate applied to new lines.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(d *Document) { d.taxRate = rate }
}

// WithClientID records the customer the document is issued to.
func WithClientID(id string) Option {
	return func(d *Document) { d.ClientID = strings.TrimSpace(id) }
}

// New creates an empty document priced in currency at the given exchange rate.
func New(kind Kind, cfg pricing.PricingConfig, currency string, rate decimal.Decimal, opts ...Option) (*Document, error) {
	if currency = strings.ToUpper(strings.TrimSpace(currency)); currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(cfg.FunctionalCurrency))
	}
	effective, err := pricing.EffectiveRate(currency, cfg.FunctionalCurrency, rate)
	if err != nil {
		return nil, err
	}
	d := &Document{
		ID:       uuid.New(),
		Kind:     kind,
		cfg:      cfg,
		resolver: pricing.Resolver{FunctionalCurrency: cfg.FunctionalCurrency},
		observer: pricing.NopObserver{},
		currency: currency,
		rate:     effective,
		level:    strings.TrimSpace(cfg.DefaultLevel),
		taxRate:  cfg.DefaultTaxRate,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Currency returns the document currency.
func (d *Document) Currency() string { return d.currency }

// Rate returns the effective exchange rate of the document currency.
func (d *Document) Rate() decimal.Decimal { return d.rate }

// Config returns the pricing configuration the document was created with.
func (d *Document) Config() pricing.PricingConfig { return d.cfg }

// AddItem appends a line for item. An empty unit selects the item's base unit.
func (d *Document) AddItem(item *pricing.CatalogItem, quantity decimal.Decimal, unit string) (OrderLine, error) {
	if item == nil {
		return OrderLine{}, ErrMissingItem
	}
	if !quantity.IsPositive() {
		return OrderLine{}, ErrInvalidQuantity
	}
	if strings.TrimSpace(unit) == "" {
		unit = item.BaseUnit
	}
	line := &OrderLine{
		ID:       uuid.New(),
		Item:     item,
		Quantity: quantity,
		Unit:     strings.ToUpper(strings.TrimSpace(unit)),
		Level:    d.level,
		TaxRate:  d.taxRate,
	}
	if err := d.reprice(line); err != nil {
		return OrderLine{}, err
	}
	d.lines = append(d.lines, line)
	return *line, nil
}

// RemoveLine drops a line from the document.
func (d *Document) RemoveLine(id uuid.UUID) error {
	for i, l := range d.lines {
		if l.ID == id {
			d.lines = append(d.lines[:i], d.lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// SetQuantity changes the entered quantity. Prices, including manual ones, are kept. The edit
// is refused when the line discount would exceed the new amount.
func (d *Document) SetQuantity(id uuid.UUID, quantity decimal.Decimal) error {
	line, err := d.find(id)
	if err != nil {
		return err
	}
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	prev := line.Quantity
	line.Quantity = quantity
	if err := checkDiscount(line); err != nil {
		line.Quantity = prev
		return err
	}
	return nil
}

// SetUnit switches the line unit and re-resolves factor and price.
func (d *Document) SetUnit(id uuid.UUID, unit string) error {
	line, err := d.find(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(unit) == "" {
		unit = line.Item.BaseUnit
	}
	prev := *line
	line.Unit = strings.ToUpper(strings.TrimSpace(unit))
	if err := d.reprice(line); err != nil {
		*line = prev
		return err
	}
	return nil
}

// SetLevel switches the line price level and re-resolves the price.
func (d *Document) SetLevel(id uuid.UUID, level string) error {
	line, err := d.find(id)
	if err != nil {
		return err
	}
	prev := *line
	line.Level = strings.TrimSpace(level)
	if err := d.reprice(line); err != nil {
		*line = prev
		return err
	}
	return nil
}

// SetClientLevel changes the customer level and re-resolves every line.
func (d *Document) SetClientLevel(level string) error {
	prev := d.clientLevel
	d.clientLevel = strings.TrimSpace(level)
	if err := d.repriceAll(); err != nil {
		d.clientLevel = prev
		return err
	}
	return nil
}

// SetCurrency moves the document to another currency at rate and re-resolves every line.
// Line, order and promotion discounts are converted through the functional currency. The
// switch is refused, leaving the document untouched, when a converted line discount exceeds
// the repriced line amount.
func (d *Document) SetCurrency(currency string, rate decimal.Decimal) error {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	effective, err := pricing.EffectiveRate(currency, d.cfg.FunctionalCurrency, rate)
	if err != nil {
		return err
	}

	prevCurrency, prevRate := d.currency, d.rate
	prevOrder, prevPromotion := d.orderDiscount, d.promotion.Discount
	discounts := make([]decimal.Decimal, len(d.lines))
	for i, l := range d.lines {
		discounts[i] = l.LineDiscount
	}
	rollback := func() {
		d.currency, d.rate = prevCurrency, prevRate
		d.orderDiscount, d.promotion.Discount = prevOrder, prevPromotion
		for i, l := range d.lines {
			l.LineDiscount = discounts[i]
		}
	}

	rebase := func(amount decimal.Decimal) (decimal.Decimal, error) {
		if amount.IsZero() {
			return amount, nil
		}
		functional, err := pricing.ToFunctional(amount, prevCurrency, d.cfg.FunctionalCurrency, prevRate)
		if err != nil {
			return decimal.Zero, err
		}
		return pricing.Convert(functional, currency, d.cfg.FunctionalCurrency, effective)
	}
	converted := make([]decimal.Decimal, 0, len(d.lines)+2)
	for _, amount := range append(append([]decimal.Decimal{}, discounts...), prevOrder, prevPromotion) {
		v, err := rebase(amount)
		if err != nil {
			return err
		}
		converted = append(converted, v)
	}

	d.currency, d.rate = currency, effective
	for i, l := range d.lines {
		l.LineDiscount = converted[i]
	}
	d.orderDiscount = converted[len(d.lines)]
	d.promotion.Discount = converted[len(d.lines)+1]
	if err := d.repriceAll(); err != nil {
		rollback()
		return err
	}
	return nil
}

// SetPrice overrides the resolved unit price until the next unit, level or currency change.
func (d *Document) SetPrice(id uuid.UUID, price decimal.Decimal) error {
	line, err := d.find(id)
	if err != nil {
		return err
	}
	if price.IsNegative() {
		return ErrNegativePrice
	}
	prev := *line
	line.UnitPrice = price
	line.PriceCurrency = d.currency
	line.ManualPrice = true
	if err := checkDiscount(line); err != nil {
		*line = prev
		return err
	}
	return nil
}

// SetLineDiscount sets an absolute discount on one line.
func (d *Document) SetLineDiscount(id uuid.UUID, amount decimal.Decimal) error {
	line, err := d.find(id)
	if err != nil {
		return err
	}
	if amount.IsNegative() {
		return pricing.ErrNegativeDiscount
	}
	prev := line.LineDiscount
	line.LineDiscount = amount
	if err := checkDiscount(line); err != nil {
		line.LineDiscount = prev
		return err
	}
	return nil
}

// SetTaxRate overrides the tax rate of one line.
func (d *Document) SetTaxRate(id uuid.UUID, rate decimal.Decimal) error {
	line, err := d.find(id)
	if err != nil {
		return err
	}
	line.TaxRate = rate
	return nil
}

// SetOrderDiscount sets the single document-level discount.
func (d *Document) SetOrderDiscount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return pricing.ErrNegativeDiscount
	}
	d.orderDiscount = amount
	return nil
}

// ApplyPromotion stores the external promotion result. It replaces any previous result.
func (d *Document) ApplyPromotion(p Promotion) error {
	if p.Discount.IsNegative() {
		return pricing.ErrNegativeDiscount
	}
	p.Names = append([]string(nil), p.Names...)
	d.promotion = p
	return nil
}

// Promotion returns the promotion currently folded into the totals.
func (d *Document) Promotion() Promotion {
	return Promotion{Discount: d.promotion.Discount, Names: append([]string(nil), d.promotion.Names...)}
}

// Line returns a copy of one line.
func (d *Document) Line(id uuid.UUID) (OrderLine, error) {
	line, err := d.find(id)
	if err != nil {
		return OrderLine{}, err
	}
	return *line, nil
}

// Lines returns copies of all lines in insertion order.
func (d *Document) Lines() []OrderLine {
	out := make([]OrderLine, 0, len(d.lines))
	for _, l := range d.lines {
		out = append(out, *l)
	}
	return out
}

// Totals aggregates the current lines, order discount and promotion discount.
func (d *Document) Totals() (pricing.OrderTotals, error) {
	lines := make([]pricing.Line, 0, len(d.lines))
	for _, l := range d.lines {
		lines = append(lines, pricing.Line{
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			LineDiscount: l.LineDiscount,
			TaxRate:      l.TaxRate,
		})
	}
	return pricing.Aggregate(lines, d.orderDiscount, d.promotion.Discount)
}

func (d *Document) find(id uuid.UUID) (*OrderLine, error) {
	for _, l := range d.lines {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, ErrLineNotFound
}

func (d *Document) repriceAll() error {
	snapshot := make([]OrderLine, len(d.lines))
	for i, l := range d.lines {
		snapshot[i] = *l
	}
	for _, l := range d.lines {
		if err := d.reprice(l); err != nil {
			for i, prev := range snapshot {
				*d.lines[i] = prev
			}
			return err
		}
	}
	return nil
}

func (d *Document) reprice(line *OrderLine) error {
	item := line.Item
	factor, _ := pricing.ResolveUnit(item, line.Unit, d.observer)
	fallback := item.BasePrice
	if d.Kind.costBased() {
		fallback = item.ReferenceCost
	}
	res, err := d.resolver.Resolve(item.Tiers, pricing.ResolutionContext{
		TargetCurrency: d.currency,
		TargetLevel:    line.Level,
		TargetUnit:     line.Unit,
		ClientLevel:    d.clientLevel,
	}, fallback.Mul(factor), d.rate)
	if err != nil {
		return err
	}
	d.observer.Resolved(item.ID, res.Rule)
	line.UnitConversionFactor = factor
	line.UnitPrice = res.Price
	line.PriceCurrency = res.Currency
	line.PriceRule = res.Rule
	line.ManualPrice = false
	return checkDiscount(line)
}

// checkDiscount rejects a line whose discount no longer fits its amount.
func checkDiscount(line *OrderLine) error {
	if line.LineDiscount.GreaterThan(line.Amount()) {
		return fmt.Errorf("discount %s over line amount %s: %w", line.LineDiscount, line.Amount(), pricing.ErrDiscountExceedsLine)
	}
	return nil
}
