package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-pricing/internal/document"
	"github.com/noah-isme/backend-pricing/internal/obs"
	"github.com/noah-isme/backend-pricing/internal/pricing"
	"github.com/noah-isme/backend-pricing/internal/promotion"
)

// ErrInvalidRequest wraps request problems detected before the engine runs.
var ErrInvalidRequest = errors.New("invalid quote request")

// ItemLookup resolves catalog snapshots by id.
type ItemLookup interface {
	Items(ctx context.Context, ids []string) (map[string]*pricing.CatalogItem, error)
}

// Service prices documents and exposes the stateless calculators.
type Service struct {
	cfg        pricing.PricingConfig
	items      ItemLookup
	promotions promotion.Calculator
	scope      string
	observer   pricing.Observer
	logger     zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Pricing    pricing.PricingConfig
	Items      ItemLookup
	Promotions promotion.Calculator
	ApplyScope string
	Observer   pricing.Observer
	Logger     zerolog.Logger
}

// NewService constructs a quote service.
func NewService(cfg ServiceConfig) *Service {
	observer := cfg.Observer
	if observer == nil {
		observer = pricing.NopObserver{}
	}
	return &Service{
		cfg:        cfg.Pricing,
		items:      cfg.Items,
		promotions: cfg.Promotions,
		scope:      cfg.ApplyScope,
		observer:   observer,
		logger:     cfg.Logger,
	}
}

// Request describes a document to price.
type Request struct {
	Kind           string           `json:"kind" validate:"omitempty,oneof=sale quotation return purchase transfer"`
	Currency       string           `json:"currency" validate:"omitempty,alpha,len=3"`
	ExchangeRate   decimal.Decimal  `json:"exchangeRate"`
	Level          string           `json:"level" validate:"max=32"`
	ClientID       string           `json:"clientId" validate:"max=64"`
	ClientLevel    string           `json:"clientLevel" validate:"max=32"`
	TaxRate        *decimal.Decimal `json:"taxRate,omitempty"`
	OrderDiscount  decimal.Decimal  `json:"orderDiscount"`
	SkipPromotions bool             `json:"skipPromotions"`
	Lines          []LineRequest    `json:"lines" validate:"required,min=1,max=500,dive"`
}

// LineRequest is one requested line. Price, when set, overrides the resolved price.
type LineRequest struct {
	ItemID   string           `json:"itemId" validate:"required,max=64"`
	Quantity decimal.Decimal  `json:"quantity"`
	Unit     string           `json:"unit" validate:"max=16"`
	Level    string           `json:"level" validate:"max=32"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Discount decimal.Decimal  `json:"discount"`
	TaxRate  *decimal.Decimal `json:"taxRate,omitempty"`
}

// Line is a priced document line.
type Line struct {
	LineID               uuid.UUID       `json:"lineId"`
	ItemID               string          `json:"itemId"`
	Description          string          `json:"description"`
	Quantity             decimal.Decimal `json:"quantity"`
	Unit                 string          `json:"unit"`
	Level                string          `json:"level"`
	UnitConversionFactor decimal.Decimal `json:"unitConversionFactor"`
	BaseQuantity         decimal.Decimal `json:"baseQuantity"`
	UnitPrice            decimal.Decimal `json:"unitPrice"`
	PriceCurrency        string          `json:"priceCurrency"`
	PriceRule            pricing.Rule    `json:"priceRule"`
	ManualPrice          bool            `json:"manualPrice"`
	Amount               decimal.Decimal `json:"amount"`
	LineDiscount         decimal.Decimal `json:"lineDiscount"`
	TaxRate              decimal.Decimal `json:"taxRate"`
}

// Quote is the priced document.
type Quote struct {
	DocumentID        uuid.UUID           `json:"documentId"`
	Kind              document.Kind       `json:"kind"`
	Currency          string              `json:"currency"`
	ExchangeRate      decimal.Decimal     `json:"exchangeRate"`
	Lines             []Line              `json:"lines"`
	Totals            pricing.OrderTotals `json:"totals"`
	Promotions        []string            `json:"promotions"`
	PromotionDegraded bool                `json:"promotionDegraded,omitempty"`
}

// Quote prices a whole document. A failing promotion calculator degrades to no promotion.
// Without a clientId in the body the X-Client-ID header is used.
func (s *Service) Quote(ctx context.Context, req Request) (Quote, error) {
	ctx, span := otel.Tracer("quote.Service").Start(ctx, "Service.Quote")
	defer span.End()
	span.SetAttributes(
		attribute.Int("quote.lines", len(req.Lines)),
		attribute.String("quote.currency", strings.ToUpper(req.Currency)),
	)

	q, err := s.quote(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return q, err
}

func (s *Service) quote(ctx context.Context, req Request) (Quote, error) {
	kind, err := document.ParseKind(req.Kind)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		ids = append(ids, strings.TrimSpace(l.ItemID))
	}
	items, err := s.items.Items(ctx, ids)
	if err != nil {
		return Quote{}, err
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = obs.ClientIDFromContext(ctx)
	}
	opts := []document.Option{
		document.WithObserver(s.observer),
		document.WithLevel(req.Level),
		document.WithClientLevel(req.ClientLevel),
		document.WithClientID(clientID),
	}
	if req.TaxRate != nil {
		opts = append(opts, document.WithTaxRate(*req.TaxRate))
	}
	doc, err := document.New(kind, s.cfg, req.Currency, req.ExchangeRate, opts...)
	if err != nil {
		return Quote{}, err
	}

	for i, l := range req.Lines {
		if err := s.addLine(doc, items[strings.TrimSpace(l.ItemID)], l); err != nil {
			return Quote{}, &pricing.LineError{Index: i, Err: err}
		}
	}
	if err := doc.SetOrderDiscount(req.OrderDiscount); err != nil {
		return Quote{}, err
	}

	degraded := false
	if s.promotions != nil && !req.SkipPromotions {
		degraded = !s.applyPromotion(ctx, doc)
	}

	totals, err := doc.Totals()
	if err != nil {
		return Quote{}, err
	}
	return s.present(doc, totals, degraded), nil
}

func (s *Service) addLine(doc *document.Document, item *pricing.CatalogItem, l LineRequest) error {
	line, err := doc.AddItem(item, l.Quantity, l.Unit)
	if err != nil {
		return err
	}
	if strings.TrimSpace(l.Level) != "" {
		if err := doc.SetLevel(line.ID, l.Level); err != nil {
			return err
		}
	}
	if l.TaxRate != nil {
		if err := doc.SetTaxRate(line.ID, *l.TaxRate); err != nil {
			return err
		}
	}
	if l.Price != nil {
		if err := doc.SetPrice(line.ID, *l.Price); err != nil {
			return err
		}
	}
	if !l.Discount.IsZero() {
		return doc.SetLineDiscount(line.ID, l.Discount)
	}
	return nil
}

func (s *Service) applyPromotion(ctx context.Context, doc *document.Document) bool {
	res, err := s.promotions.Calculate(ctx, promotion.NewSnapshot(doc, s.scope))
	if err == nil {
		err = doc.ApplyPromotion(res.Document())
	}
	if err != nil {
		logger := obs.LoggerFrom(ctx, s.logger)
		logger.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("promotion_unavailable")
		return false
	}
	return true
}

func (s *Service) present(doc *document.Document, totals pricing.OrderTotals, degraded bool) Quote {
	lines := doc.Lines()
	out := Quote{
		DocumentID:        doc.ID,
		Kind:              doc.Kind,
		Currency:          doc.Currency(),
		ExchangeRate:      doc.Rate(),
		Lines:             make([]Line, 0, len(lines)),
		Totals:            totals.Round(s.places()),
		Promotions:        doc.Promotion().Names,
		PromotionDegraded: degraded,
	}
	if out.Promotions == nil {
		out.Promotions = []string{}
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, Line{
			LineID:               l.ID,
			ItemID:               l.Item.ID,
			Description:          l.Item.Description,
			Quantity:             l.Quantity,
			Unit:                 l.Unit,
			Level:                l.Level,
			UnitConversionFactor: l.UnitConversionFactor,
			BaseQuantity:         l.BaseQuantity(),
			UnitPrice:            s.cfg.Round(l.UnitPrice),
			PriceCurrency:        l.PriceCurrency,
			PriceRule:            l.PriceRule,
			ManualPrice:          l.ManualPrice,
			Amount:               s.cfg.Round(l.Amount()),
			LineDiscount:         s.cfg.Round(l.LineDiscount),
			TaxRate:              l.TaxRate,
		})
	}
	return out
}

func (s *Service) places() int32 {
	if s.cfg.MoneyPlaces <= 0 {
		return 2
	}
	return s.cfg.MoneyPlaces
}
