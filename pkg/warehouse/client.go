package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tmorales/waresync-backend/pkg/config"
	pkgerrors "github.com/tmorales/waresync-backend/pkg/errors"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

const (
	successCode             = 200
	defaultPageSize         = 100
	defaultBatchSize        = 50
	responseReadLimit int64 = 4 << 20
)

var (
	errBaseURLRequired = errors.New("warehouse base url is required")
	errAPIKeyRequired  = errors.New("warehouse api key is required")
)

// Client wraps the source warehouse REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	batchSize  int
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

// NewClient builds the warehouse client from configuration.
func NewClient(cfg config.WarehouseConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
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
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	batchSize := cfg.FullProductBatch
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   pageSize,
		batchSize:  batchSize,
		logg:       logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ListInventories returns all warehouse scopes known to the source system.
func (c *Client) ListInventories(ctx context.Context) ([]Inventory, error) {
	var inventories []Inventory
	if err := c.get(ctx, "/api/v1/inventories", nil, &inventories); err != nil {
		return nil, err
	}
	return inventories, nil
}

// ListProducts returns every product in the given warehouse, folding the
// API's pagination internally.
func (c *Client) ListProducts(ctx context.Context, warehouseID string) ([]InventoryItem, error) {
	if strings.TrimSpace(warehouseID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse id is required")
	}

	var items []InventoryItem
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("warehouse_id", warehouseID)
		query.Set("page", strconv.Itoa(page))
		query.Set("page_size", strconv.Itoa(c.pageSize))

		var result productPage
		if err := c.get(ctx, "/api/v1/products", query, &result); err != nil {
			return nil, err
		}
		items = append(items, result.Items...)
		if len(result.Items) < c.pageSize || len(items) >= result.Total {
			break
		}
	}

	c.log(ctx, "response", "list_products", map[string]any{
		"warehouse_id": warehouseID,
		"count":        len(items),
	})
	return items, nil
}

// FetchFullProductData returns the full product records for the given ids,
// keyed by product id. Lookups are batched to respect the API's limits.
func (c *Client) FetchFullProductData(ctx context.Context, ids []string, warehouseID string) (map[string]InventoryItem, error) {
	out := make(map[string]InventoryItem, len(ids))
	for start := 0; start < len(ids); start += c.batchSize {
		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		body := map[string]any{
			"ids":          ids[start:end],
			"warehouse_id": warehouseID,
		}
		var batch map[string]InventoryItem
		if err := c.post(ctx, "/api/v1/products/full", body, &batch); err != nil {
			return nil, err
		}
		for id, item := range batch {
			out[id] = item
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build warehouse request")
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal warehouse request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build warehouse request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransport, err, "execute warehouse request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransport, err, "read warehouse response")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return pkgerrors.New(pkgerrors.CodeRemote,
				fmt.Sprintf("warehouse api status %d", resp.StatusCode))
		}
		return pkgerrors.Wrap(pkgerrors.CodeParse, err, "decode warehouse envelope")
	}
	if env.Code != successCode {
		return pkgerrors.New(pkgerrors.CodeRemote,
			fmt.Sprintf("warehouse api code %d: %s", env.Code, env.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeParse, err, "decode warehouse payload")
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, operation string, fields map[string]any) {
	if c.logg == nil {
		return
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"integration": "warehouse",
		"phase":       phase,
		"operation":   operation,
	})
	logCtx = c.logg.WithFields(logCtx, fields)
	c.logg.Info(logCtx, "warehouse api call")
}
