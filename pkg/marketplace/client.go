package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmorales/waresync-backend/pkg/config"
	pkgerrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

const (
	successCode             = 200
	responseReadLimit int64 = 4 << 20
)

var (
	errBaseURLRequired = errors.New("marketplace base url is required")
	errAPIKeyRequired  = errors.New("marketplace api key is required")
)

// Client wraps the downstream marketplace REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the marketplace client from configuration.
func NewClient(cfg config.MarketplaceConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logg:       logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ListListings returns every live listing owned by this account.
func (c *Client) ListListings(ctx context.Context) ([]Listing, error) {
	var listings []Listing
	if err := c.call(ctx, http.MethodGet, "/api/v2/listings", nil, nil, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// DeleteListing retracts the listing with the given id.
func (c *Client) DeleteListing(ctx context.Context, listingID string) error {
	if strings.TrimSpace(listingID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	err := c.call(ctx, http.MethodDelete, "/api/v2/listings/"+url.PathEscape(listingID), nil, nil, nil)
	c.log(ctx, "delete_listing", map[string]any{
		"listing_id": listingID,
		"ok":         err == nil,
	})
	return err
}

// CreateOrder submits the order payload and returns the downstream order id.
func (c *Client) CreateOrder(ctx context.Context, payload OrderPayload) (string, error) {
	if len(payload.Lines) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order payload has no lines")
	}
	var data createOrderData
	if err := c.call(ctx, http.MethodPost, "/api/v2/orders", nil, payload, &data); err != nil {
		return "", err
	}
	c.log(ctx, "create_order", map[string]any{
		"upstream_order_id":   payload.UpstreamOrderID,
		"downstream_order_id": data.ID,
		"lines":               len(payload.Lines),
	})
	return data.ID, nil
}

// UpdateStock sets absolute quantities for the given products in one call.
func (c *Client) UpdateStock(ctx context.Context, warehouseID string, adjustments []StockAdjustment) error {
	if strings.TrimSpace(warehouseID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "warehouse id is required")
	}
	if len(adjustments) == 0 {
		return nil
	}
	body := map[string]any{
		"warehouse_id": warehouseID,
		"adjustments":  adjustments,
	}
	err := c.call(ctx, http.MethodPost, "/api/v2/stocks", nil, body, nil)
	c.log(ctx, "update_stock", map[string]any{
		"warehouse_id": warehouseID,
		"adjustments":  len(adjustments),
		"ok":           err == nil,
	})
	return err
}

// UpdateListing applies a partial update covering only the changed fields.
func (c *Client) UpdateListing(ctx context.Context, listingID string, patch ListingPatch) error {
	if strings.TrimSpace(listingID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	if patch.IsEmpty() {
		return nil
	}
	return c.call(ctx, http.MethodPatch, "/api/v2/listings/"+url.PathEscape(listingID), nil, patch, nil)
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal marketplace request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build marketplace request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransport, err, "execute marketplace request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransport, err, "read marketplace response")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return pkgerrors.New(pkgerrors.CodeRemote,
				fmt.Sprintf("marketplace api status %d", resp.StatusCode))
		}
		return pkgerrors.Wrap(pkgerrors.CodeParse, err, "decode marketplace envelope")
	}
	if env.Code != successCode {
		return pkgerrors.New(pkgerrors.CodeRemote,
			fmt.Sprintf("marketplace api code %d: %s", env.Code, env.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeParse, err, "decode marketplace payload")
	}
	return nil
}

func (c *Client) log(ctx context.Context, operation string, fields map[string]any) {
	if c.logg == nil {
		return
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"integration": "marketplace",
		"operation":   operation,
	})
	logCtx = c.logg.WithFields(logCtx, fields)
	c.logg.Info(logCtx, "marketplace api call")
}
