package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/flowdesk/flowdesk/internal/flow"
	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/odoo"
	"github.com/flowdesk/flowdesk/internal/tenant"
)

// OdooFactory builds an ERP client for a tenant. It is called once per
// tenant and the result cached for the life of the router.
type OdooFactory func(t *models.Tenant) (odoo.Client, error)

// DefaultOdooFactory builds an RPC client from the tenant's Odoo settings.
func DefaultOdooFactory(t *models.Tenant) (odoo.Client, error) {
	return odoo.NewRPCClient(
		odoo.WithURL(t.Odoo.URL),
		odoo.WithDB(t.Odoo.DB),
		odoo.WithCredentials(t.Odoo.User, t.Odoo.APIKey),
	)
}

// Router consumes inbound responses from a messaging service, resolves
// the owning tenant, drives the flow interpreter and delivers the
// resulting payload. Ordering per conversation is provided by the
// interpreter's keyed lock, so each message may run on its own goroutine.
type Router struct {
	service     Service
	interp      *flow.Interpreter
	tenants     *tenant.Registry
	odooFactory OdooFactory

	mu      sync.Mutex
	odooFor map[string]odoo.Client

	wg sync.WaitGroup
}

// NewRouter creates a Router over the given service, interpreter and
// tenant registry. A nil factory disables ERP collaborators.
func NewRouter(service Service, interp *flow.Interpreter, tenants *tenant.Registry, factory OdooFactory) *Router {
	return &Router{
		service:     service,
		interp:      interp,
		tenants:     tenants,
		odooFactory: factory,
		odooFor:     make(map[string]odoo.Client),
	}
}

// Start launches the consume loop. It returns after the service's
// response channel closes or the context is cancelled; Wait blocks until
// in-flight turns finish.
func (r *Router) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		slog.Info("Router started")
		receipts := r.service.Receipts()
		for {
			select {
			case <-ctx.Done():
				slog.Info("Router stopping due to context cancellation")
				return
			case resp, ok := <-r.service.Responses():
				if !ok {
					slog.Info("Router stopping: responses channel closed")
					return
				}
				r.wg.Add(1)
				go func(resp models.Response) {
					defer r.wg.Done()
					r.handle(ctx, resp)
				}(resp)
			case receipt, ok := <-receipts:
				if !ok {
					receipts = nil
					continue
				}
				slog.Debug("Router delivery receipt", "to", receipt.To, "status", receipt.Status)
			}
		}
	}()
}

// Wait blocks until the consume loop and all in-flight turns finish.
func (r *Router) Wait() {
	r.wg.Wait()
}

// handle processes one inbound message end to end.
func (r *Router) handle(ctx context.Context, resp models.Response) {
	t, err := r.resolveTenant(resp)
	if err != nil {
		slog.Error("Router tenant resolution failed", "error", err, "from", resp.From, "to", resp.To)
		return
	}

	payload, err := r.interp.HandleInbound(ctx, t, resp.From, resp.Body, r.Collaborators(t))
	if err != nil && !errors.Is(err, models.ErrUnknownAction) {
		slog.Warn("Router turn degraded", "error", err, "tenantID", t.ID, "from", resp.From)
	}
	if payload == nil {
		// Message absorbed (human agent owns the conversation).
		return
	}

	if err := r.service.SendMenu(ctx, resp.From, *payload); err != nil {
		slog.Error("Router delivery failed", "error", err, "tenantID", t.ID, "to", resp.From)
	}
}

// resolveTenant maps an inbound message to its tenant by the receiving
// line, falling back to the sole registered tenant for single-tenant
// deployments.
func (r *Router) resolveTenant(resp models.Response) (*models.Tenant, error) {
	if resp.To != "" {
		if t, err := r.tenants.ByLine(resp.To); err == nil {
			return t, nil
		}
	}
	ids := r.tenants.IDs()
	if len(ids) == 1 {
		return r.tenants.Get(ids[0])
	}
	return nil, models.ErrTenantNotFound
}

// Collaborators returns the external collaborators for a tenant's turn.
// It is also used as the API server's resolver so webhook-injected
// messages share the same cached ERP clients.
func (r *Router) Collaborators(t *models.Tenant) flow.Collaborators {
	collab := flow.Collaborators{}
	if t.Odoo.Enabled {
		collab.Odoo = r.odooClient(t)
	}
	return collab
}

// odooClient returns the cached ERP client for a tenant, building it on
// first use. A failed build logs and disables the collaborator for the
// turn so the flow degrades to its fallback texts.
func (r *Router) odooClient(t *models.Tenant) odoo.Client {
	if r.odooFactory == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.odooFor[t.ID]; ok {
		return client
	}
	client, err := r.odooFactory(t)
	if err != nil {
		slog.Error("Router failed to build Odoo client", "error", err, "tenantID", t.ID)
		return nil
	}
	r.odooFor[t.ID] = client
	return client
}
