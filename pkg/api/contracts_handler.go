package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clauseworks/contractd/pkg/contract"
)

// ContractHandler serves the contract lifecycle endpoints.
type ContractHandler struct {
	contracts *contract.Service
}

// NewContractHandler creates a handler backed by the given service.
func NewContractHandler(contracts *contract.Service) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// CreateContractRequest is the body for POST /api/v1/contracts.
type CreateContractRequest struct {
	Type                string           `json:"type"`
	Title               string           `json:"title"`
	Content             string           `json:"content"`
	Terms               []contract.Term  `json:"terms,omitempty"`
	Parties             []contract.Party `json:"parties"`
	StartDate           time.Time        `json:"start_date"`
	EndDate             *time.Time       `json:"end_date,omitempty"`
	Value               *decimal.Decimal `json:"value,omitempty"`
	Currency            string           `json:"currency,omitempty"`
	AutoRenewal         bool             `json:"auto_renewal"`
	RenewalPeriodMonths int              `json:"renewal_period_months,omitempty"`
	Metadata            map[string]any   `json:"metadata,omitempty"`
}

// UpdateContractRequest is the body for PATCH /api/v1/contracts/{id}.
type UpdateContractRequest struct {
	Title               *string           `json:"title,omitempty"`
	Content             *string           `json:"content,omitempty"`
	Terms               *[]contract.Term  `json:"terms,omitempty"`
	Parties             *[]contract.Party `json:"parties,omitempty"`
	StartDate           *time.Time        `json:"start_date,omitempty"`
	EndDate             *time.Time        `json:"end_date,omitempty"`
	Value               *decimal.Decimal  `json:"value,omitempty"`
	Currency            *string           `json:"currency,omitempty"`
	AutoRenewal         *bool             `json:"auto_renewal,omitempty"`
	RenewalPeriodMonths *int              `json:"renewal_period_months,omitempty"`
	Metadata            map[string]any    `json:"metadata,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type terminateRequest struct {
	Reason          string     `json:"reason,omitempty"`
	TerminationDate *time.Time `json:"termination_date,omitempty"`
}

func actorFrom(r *http.Request) (tenantID, actor string, ok bool) {
	p, err := GetPrincipal(r.Context())
	if err != nil {
		return "", "", false
	}
	return p.GetTenantID(), p.GetID(), true
}

// HandleCollection handles GET (list) and POST (create) on /api/v1/contracts.
func (h *ContractHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		WriteMethodNotAllowed(w)
	}
}

func (h *ContractHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	c, err := h.contracts.Create(r.Context(), tenantID, actor, contract.CreateInput{
		Type:                contract.Type(req.Type),
		Title:               req.Title,
		Content:             req.Content,
		Terms:               req.Terms,
		Parties:             req.Parties,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		Value:               req.Value,
		Currency:            req.Currency,
		AutoRenewal:         req.AutoRenewal,
		RenewalPeriodMonths: req.RenewalPeriodMonths,
		Metadata:            req.Metadata,
	})
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(c)
}

func (h *ContractHandler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}

	q := contract.ListQuery{
		Status:   contract.Status(r.URL.Query().Get("status")),
		Type:     contract.Type(r.URL.Query().Get("type")),
		ClientID: r.URL.Query().Get("client_id"),
	}
	if raw := r.URL.Query().Get("expiring_within_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			WriteBadRequest(w, "expiring_within_days must be a positive integer")
			return
		}
		q.ExpiringWithinDays = days
	}

	list, err := h.contracts.List(r.Context(), tenantID, q)
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"contracts": list,
		"count":     len(list),
	})
}

// HandleItem handles GET and PATCH on /api/v1/contracts/{id}.
func (h *ContractHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		c, err := h.contracts.Get(r.Context(), tenantID, id)
		if err != nil {
			WriteFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c)

	case http.MethodPatch:
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
		var req UpdateContractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteBadRequest(w, "Invalid request body")
			return
		}
		c, err := h.contracts.Update(r.Context(), tenantID, id, actor, contract.UpdatePatch{
			Title:               req.Title,
			Content:             req.Content,
			Terms:               req.Terms,
			Parties:             req.Parties,
			StartDate:           req.StartDate,
			EndDate:             req.EndDate,
			Value:               req.Value,
			Currency:            req.Currency,
			AutoRenewal:         req.AutoRenewal,
			RenewalPeriodMonths: req.RenewalPeriodMonths,
			Metadata:            req.Metadata,
		})
		if err != nil {
			WriteFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c)

	default:
		WriteMethodNotAllowed(w)
	}
}

// HandleTransition handles the POST lifecycle actions under
// /api/v1/contracts/{id}/{action}.
func (h *ContractHandler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	tenantID, actor, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}
	id := r.PathValue("id")
	action := r.PathValue("action")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var (
		c   *contract.Contract
		err error
	)
	switch action {
	case "send-for-signature":
		c, err = h.contracts.SendForSignature(r.Context(), tenantID, id, actor)
	case "activate":
		c, err = h.contracts.Activate(r.Context(), tenantID, id, actor)
	case "suspend":
		var req reasonRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		c, err = h.contracts.Suspend(r.Context(), tenantID, id, actor, req.Reason)
	case "reactivate":
		c, err = h.contracts.Reactivate(r.Context(), tenantID, id, actor)
	case "terminate":
		var req terminateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		c, err = h.contracts.Terminate(r.Context(), tenantID, id, actor, req.Reason, req.TerminationDate)
	case "cancel":
		var req reasonRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		c, err = h.contracts.Cancel(r.Context(), tenantID, id, actor, req.Reason)
	default:
		WriteNotFound(w, "Unknown contract action: "+action)
		return
	}
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(c)
}

// HandleActivity handles GET /api/v1/contracts/{id}/activity.
func (h *ContractHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	tenantID, _, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}
	id := r.PathValue("id")

	entries, err := h.contracts.Activity(r.Context(), tenantID, id)
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
