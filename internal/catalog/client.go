package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-pricing/internal/pricing"
	"github.com/noah-isme/backend-pricing/internal/resilience"
)

var (
	// ErrNotFound is returned when the catalog has no item for the requested id.
	ErrNotFound = errors.New("catalog item not found")
	// ErrInvalidSnapshot is returned when the catalog answers with an unusable item.
	ErrInvalidSnapshot = errors.New("invalid catalog snapshot")
	// ErrUpstream wraps transport and server failures of the catalog service.
	ErrUpstream = errors.New("catalog upstream failure")
)

// Fetcher loads one item snapshot.
type Fetcher interface {
	Item(ctx context.Context, id string) (*pricing.CatalogItem, error)
}

// Client reads item snapshots from the catalog service.
type Client struct {
	baseURL    string
	warehouse  string
	onlyActive bool
	http       resilience.HTTPClient
}

// ClientConfig groups Client dependencies.
type ClientConfig struct {
	BaseURL    string
	Warehouse  string
	OnlyActive bool
	HTTP       resilience.HTTPClient
}

// NewClient constructs a catalog client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		warehouse:  strings.TrimSpace(cfg.Warehouse),
		onlyActive: cfg.OnlyActive,
		http:       cfg.HTTP,
	}
}

// Item fetches and validates one snapshot.
func (c *Client) Item(ctx context.Context, id string) (*pricing.CatalogItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	q := url.Values{}
	if c.warehouse != "" {
		q.Set("warehouse", c.warehouse)
	}
	q.Set("active", strconv.FormatBool(c.onlyActive))
	endpoint := fmt.Sprintf("%s/items/%s?%s", c.baseURL, url.PathEscape(id), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var item pricing.CatalogItem
	if err := c.http.DoJSON(ctx, req, &item); err != nil {
		var se *resilience.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if errors.Is(err, resilience.ErrOpenCircuit) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch catalog item %s: %w: %w", id, ErrUpstream, err)
	}
	if err := validate(&item); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", id, ErrInvalidSnapshot, err)
	}
	return &item, nil
}

// Ping checks that the catalog service answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	return c.http.DoJSON(ctx, req, nil)
}

func validate(item *pricing.CatalogItem) error {
	if strings.TrimSpace(item.ID) == "" {
		return errors.New("missing id")
	}
	if strings.TrimSpace(item.BaseUnit) == "" {
		return errors.New("missing base unit")
	}
	if item.Plan != nil {
		if err := item.Plan.Validate(); err != nil {
			return err
		}
	}
	for i, t := range item.Tiers {
		if t.Price.IsNegative() {
			return fmt.Errorf("tier %d: negative price", i)
		}
	}
	return nil
}
