// Package odoo wraps the Odoo ERP JSON-RPC API for FlowDesk.
//
// Flows that require ERP data (price lists, patient lookups, payment and
// purchase history) call it through the capability-typed Client interface;
// every transport or remote failure surfaces as
// models.ErrCollaboratorUnavailable so a conversation turn can degrade to
// its configured fallback text.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

// DefaultTimeout bounds every ERP call so a slow Odoo instance cannot
// block a conversation turn.
const DefaultTimeout = 5 * time.Second

// Patient is an identified ERP patient record.
type Patient struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"ref"`
}

// Payment is a pending payment line for a patient.
type Payment struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Amount  float64 `json:"amount_residual"`
	DueDate string  `json:"invoice_date_due"`
}

// Purchase is a recent purchase/order line for a patient.
type Purchase struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Date string  `json:"date_order"`
	Tot  float64 `json:"amount_total"`
}

// Service is a priced service offered by the tenant.
type Service struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"list_price"`
}

// Branch is a physical branch/location of the tenant.
type Branch struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Address string `json:"street"`
}

// Client is the capability interface flows use to reach the ERP.
type Client interface {
	LookupPatientByIdentifier(ctx context.Context, identifier string) (*Patient, error)
	ListPendingPayments(ctx context.Context, patientID int) ([]Payment, error)
	ListRecentPurchases(ctx context.Context, patientID int) ([]Purchase, error)
	ListServices(ctx context.Context) ([]Service, error)
	ListBranches(ctx context.Context) ([]Branch, error)
}

// Opts holds configuration options for the Odoo client.
type Opts struct {
	URL     string
	DB      string
	User    string
	APIKey  string
	Timeout time.Duration
}

// Option defines a configuration option for the Odoo client.
type Option func(*Opts)

// WithURL sets the Odoo server base URL.
func WithURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// WithDB sets the Odoo database name.
func WithDB(db string) Option {
	return func(o *Opts) { o.DB = db }
}

// WithCredentials sets the Odoo login and API key.
func WithCredentials(user, apiKey string) Option {
	return func(o *Opts) {
		o.User = user
		o.APIKey = apiKey
	}
}

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// RPCClient talks to Odoo's /jsonrpc endpoint.
type RPCClient struct {
	http    *http.Client
	url     string
	db      string
	user    string
	apiKey  string
	timeout time.Duration

	mu  sync.Mutex
	uid int // authenticated user id, 0 until first login
}

// NewRPCClient creates a new Odoo JSON-RPC client, falling back to
// ODOO_URL, ODOO_DB, ODOO_USER and ODOO_API_KEY environment variables
// for unset options.
func NewRPCClient(opts ...Option) (*RPCClient, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		cfg.URL = os.Getenv("ODOO_URL")
	}
	if cfg.DB == "" {
		cfg.DB = os.Getenv("ODOO_DB")
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("ODOO_USER")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ODOO_API_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	slog.Debug("Odoo client config loaded", "url_set", cfg.URL != "", "db", cfg.DB, "user_set", cfg.User != "", "timeout", cfg.Timeout)

	if cfg.URL == "" || cfg.DB == "" {
		return nil, fmt.Errorf("odoo URL and DB must be provided")
	}
	return &RPCClient{
		http:    &http.Client{Timeout: cfg.Timeout},
		url:     cfg.URL,
		db:      cfg.DB,
		user:    cfg.User,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
	}, nil
}

type rpcRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
	ID      int64                  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one JSON-RPC round trip. Transport failures, timeouts and
// remote errors all map to models.ErrCollaboratorUnavailable.
func (c *RPCClient) call(ctx context.Context, service, method string, args []interface{}, out interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: map[string]interface{}{
			"service": service,
			"method":  method,
			"args":    args,
		},
		ID: time.Now().UnixNano(),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode odoo request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/jsonrpc", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build odoo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("Odoo call transport failure", "error", err, "service", service, "method", method)
		return fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Odoo call unexpected status", "status", resp.StatusCode, "service", service, "method", method)
		return fmt.Errorf("%w: odoo returned status %d", models.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		slog.Error("Odoo call decode failure", "error", err, "service", service, "method", method)
		return fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}
	if rpcResp.Error != nil {
		slog.Error("Odoo call remote error", "code", rpcResp.Error.Code, "message", rpcResp.Error.Message, "service", service, "method", method)
		return fmt.Errorf("%w: odoo error %d: %s", models.ErrCollaboratorUnavailable, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			slog.Error("Odoo call result decode failure", "error", err, "service", service, "method", method)
			return fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
		}
	}
	return nil
}

// authenticate logs in via the common service and caches the uid.
func (c *RPCClient) authenticate(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}
	var uid int
	err := c.call(ctx, "common", "authenticate", []interface{}{c.db, c.user, c.apiKey, map[string]interface{}{}}, &uid)
	if err != nil {
		return 0, err
	}
	if uid == 0 {
		return 0, fmt.Errorf("%w: odoo authentication rejected", models.ErrCollaboratorUnavailable)
	}
	c.uid = uid
	slog.Debug("Odoo authenticated", "uid", uid, "db", c.db)
	return uid, nil
}

// executeKw calls object.execute_kw with the authenticated uid.
func (c *RPCClient) executeKw(ctx context.Context, model, method string, domain interface{}, kwargs map[string]interface{}, out interface{}) error {
	uid, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	args := []interface{}{c.db, uid, c.apiKey, model, method, []interface{}{domain}, kwargs}
	return c.call(ctx, "object", "execute_kw", args, out)
}

// LookupPatientByIdentifier finds the patient whose reference matches the
// given identifier. Returns (nil, nil) when no patient matches.
func (c *RPCClient) LookupPatientByIdentifier(ctx context.Context, identifier string) (*Patient, error) {
	slog.Debug("Odoo LookupPatientByIdentifier", "identifier", identifier)
	var patients []Patient
	domain := []interface{}{[]interface{}{"ref", "=", identifier}}
	kwargs := map[string]interface{}{"fields": []string{"id", "name", "ref"}, "limit": 1}
	if err := c.executeKw(ctx, "res.partner", "search_read", domain, kwargs, &patients); err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		slog.Debug("Odoo LookupPatientByIdentifier no match", "identifier", identifier)
		return nil, nil
	}
	return &patients[0], nil
}

// ListPendingPayments returns unpaid invoice lines for the patient.
func (c *RPCClient) ListPendingPayments(ctx context.Context, patientID int) ([]Payment, error) {
	slog.Debug("Odoo ListPendingPayments", "patientID", patientID)
	var payments []Payment
	domain := []interface{}{
		[]interface{}{"partner_id", "=", patientID},
		[]interface{}{"payment_state", "in", []string{"not_paid", "partial"}},
	}
	kwargs := map[string]interface{}{"fields": []string{"id", "name", "amount_residual", "invoice_date_due"}}
	if err := c.executeKw(ctx, "account.move", "search_read", domain, kwargs, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// ListRecentPurchases returns the patient's most recent confirmed orders.
func (c *RPCClient) ListRecentPurchases(ctx context.Context, patientID int) ([]Purchase, error) {
	slog.Debug("Odoo ListRecentPurchases", "patientID", patientID)
	var purchases []Purchase
	domain := []interface{}{[]interface{}{"partner_id", "=", patientID}}
	kwargs := map[string]interface{}{
		"fields": []string{"id", "name", "date_order", "amount_total"},
		"order":  "date_order desc",
		"limit":  5,
	}
	if err := c.executeKw(ctx, "sale.order", "search_read", domain, kwargs, &purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}

// ListServices returns the tenant's sellable services with list prices.
func (c *RPCClient) ListServices(ctx context.Context) ([]Service, error) {
	slog.Debug("Odoo ListServices")
	var services []Service
	domain := []interface{}{[]interface{}{"type", "=", "service"}, []interface{}{"sale_ok", "=", true}}
	kwargs := map[string]interface{}{"fields": []string{"id", "name", "list_price"}}
	if err := c.executeKw(ctx, "product.product", "search_read", domain, kwargs, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// ListBranches returns the tenant's branch locations.
func (c *RPCClient) ListBranches(ctx context.Context) ([]Branch, error) {
	slog.Debug("Odoo ListBranches")
	var branches []Branch
	domain := []interface{}{[]interface{}{"is_company", "=", true}}
	kwargs := map[string]interface{}{"fields": []string{"id", "name", "street"}}
	if err := c.executeKw(ctx, "res.partner", "search_read", domain, kwargs, &branches); err != nil {
		return nil, err
	}
	return branches, nil
}
