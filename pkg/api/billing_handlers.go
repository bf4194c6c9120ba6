package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/billing"
	"github.com/taskhive/taskhive/pkg/httputil"
)

// BillingHandlers handles subscription, payment and invoice HTTP requests
type BillingHandlers struct {
	service *billing.Service
	checker authz.Checker
}

// NewBillingHandlers creates a new BillingHandlers
func NewBillingHandlers(service *billing.Service, checker authz.Checker) *BillingHandlers {
	return &BillingHandlers{service: service, checker: checker}
}

// RegisterRoutes registers billing routes
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenant_id}/subscriptions", h.CreateSubscription).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/subscriptions", h.ListSubscriptions).Methods("GET")
	router.HandleFunc("/subscriptions/{id}", h.GetSubscription).Methods("GET")
	router.HandleFunc("/subscriptions/{id}/cancel", h.CancelSubscription).Methods("POST")
	router.HandleFunc("/subscriptions/{id}/renew", h.RenewSubscription).Methods("POST")
	router.HandleFunc("/subscriptions/{id}/payments", h.SubmitPayment).Methods("POST")

	router.HandleFunc("/payments/pending", h.ListPendingPayments).Methods("GET")
	router.HandleFunc("/payments/{id}", h.GetPayment).Methods("GET")
	router.HandleFunc("/payments/{id}/verify", h.VerifyPayment).Methods("POST")

	router.HandleFunc("/tenants/{tenant_id}/invoices", h.ListInvoices).Methods("GET")
	router.HandleFunc("/invoices/{id}", h.GetInvoice).Methods("GET")
	router.HandleFunc("/invoices/{id}/pay", h.MarkInvoicePaid).Methods("POST")
	router.HandleFunc("/invoices/{id}/void", h.VoidInvoice).Methods("POST")
}

type createSubscriptionRequest struct {
	PlanID    int64 `json:"plan_id"`
	AutoRenew bool  `json:"auto_renew"`
}

type submitPaymentRequest struct {
	AmountCents int64                 `json:"amount_cents"`
	Method      billing.PaymentMethod `json:"method"`
	ProofRef    string                `json:"proof_ref"`
}

type verifyPaymentRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

// CreateSubscription handles POST /tenants/{tenant_id}/subscriptions
func (h *BillingHandlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapSubscriptionCreate, authz.TenantTarget(tenantID))
	if !ok {
		return
	}

	var req createSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.PlanID == 0 {
		httputil.WriteBadRequest(w, "plan_id is required")
		return
	}

	sub, err := h.service.CreateSubscription(r.Context(), actor.ID, tenantID, req.PlanID, req.AutoRenew)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, sub)
}

// ListSubscriptions handles GET /tenants/{tenant_id}/subscriptions
func (h *BillingHandlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapSubscriptionView, authz.TenantTarget(tenantID)); !ok {
		return
	}

	subs, err := h.service.ListSubscriptions(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, subs)
}

// GetSubscription handles GET /subscriptions/{id}
func (h *BillingHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapSubscriptionView, authz.TenantTarget(sub.TenantID)); !ok {
		return
	}

	httputil.WriteSuccess(w, sub)
}

// CancelSubscription handles POST /subscriptions/{id}/cancel
func (h *BillingHandlers) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapSubscriptionCancel, authz.TenantTarget(sub.TenantID))
	if !ok {
		return
	}

	cancelled, err := h.service.CancelSubscription(r.Context(), actor.ID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, cancelled)
}

// RenewSubscription handles POST /subscriptions/{id}/renew. The renewal
// response carries the invoice issued for the new period.
func (h *BillingHandlers) RenewSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapSubscriptionCreate, authz.TenantTarget(sub.TenantID))
	if !ok {
		return
	}

	renewed, invoice, err := h.service.RenewSubscription(r.Context(), actor.ID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"subscription": renewed,
		"invoice":      invoice,
	})
}

// SubmitPayment handles POST /subscriptions/{id}/payments
func (h *BillingHandlers) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapPaymentSubmit, authz.TenantTarget(sub.TenantID))
	if !ok {
		return
	}

	var req submitPaymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	payment, err := h.service.SubmitPayment(r.Context(), actor.ID, id, req.AmountCents, req.Method, req.ProofRef)
	if err != nil {
		if billing.IsConflict(err) || billing.IsNotFound(err) {
			writeDomainError(w, err)
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	httputil.WriteCreated(w, payment)
}

// ListPendingPayments handles GET /payments/pending
func (h *BillingHandlers) ListPendingPayments(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.checker, authz.CapPaymentVerify, authz.PlatformTarget()); !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}

	payments, err := h.service.ListPendingPayments(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, payments)
}

// GetPayment handles GET /payments/{id}
func (h *BillingHandlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapSubscriptionView, authz.TenantTarget(payment.TenantID)); !ok {
		return
	}

	httputil.WriteSuccess(w, payment)
}

// VerifyPayment handles POST /payments/{id}/verify
func (h *BillingHandlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapPaymentVerify, authz.PlatformTarget())
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	payment, err := h.service.VerifyPayment(r.Context(), actor.ID, id, req.Approve, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, payment)
}

// ListInvoices handles GET /tenants/{tenant_id}/invoices
func (h *BillingHandlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapInvoiceView, authz.TenantTarget(tenantID)); !ok {
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, invoices)
}

// GetInvoice handles GET /invoices/{id}
func (h *BillingHandlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := authorize(w, r, h.checker, authz.CapInvoiceView, authz.TenantTarget(invoice.TenantID)); !ok {
		return
	}

	httputil.WriteSuccess(w, invoice)
}

// MarkInvoicePaid handles POST /invoices/{id}/pay
func (h *BillingHandlers) MarkInvoicePaid(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapPaymentVerify, authz.PlatformTarget())
	if !ok {
		return
	}

	invoice, err := h.service.MarkInvoicePaid(r.Context(), actor.ID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, invoice)
}

// VoidInvoice handles POST /invoices/{id}/void
func (h *BillingHandlers) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	actor, ok := authorize(w, r, h.checker, authz.CapPaymentVerify, authz.PlatformTarget())
	if !ok {
		return
	}

	if err := h.service.VoidInvoice(r.Context(), actor.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
