package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clauseworks/contractd/pkg/contract"
	"github.com/clauseworks/contractd/pkg/renewal"
)

// RenewalHandler serves the renewal rule and proposal endpoints.
type RenewalHandler struct {
	engine *renewal.Engine
	lock   *renewal.SweepLock
}

// NewRenewalHandler creates a handler backed by the renewal engine. The
// sweep lock may be nil when Redis is not configured.
func NewRenewalHandler(engine *renewal.Engine, lock *renewal.SweepLock) *RenewalHandler {
	return &RenewalHandler{engine: engine, lock: lock}
}

// RuleRequest is the body for creating or updating a renewal rule.
type RuleRequest struct {
	Name                string                       `json:"name"`
	Active              bool                         `json:"active"`
	ContractTypes       []string                     `json:"contract_types"`
	Trigger             string                       `json:"trigger"`
	TriggerDays         int                          `json:"trigger_days,omitempty"`
	RenewalType         string                       `json:"renewal_type"`
	AutoApprove         bool                         `json:"auto_approve"`
	RenewalPeriodMonths int                          `json:"renewal_period_months,omitempty"`
	PriceAdjustment     *renewal.PriceAdjustment     `json:"price_adjustment,omitempty"`
	Conditions          *renewal.Conditions          `json:"conditions,omitempty"`
	Notifications       renewal.NotificationSettings `json:"notifications"`
}

func (r RuleRequest) toInput() renewal.RuleInput {
	types := make([]contract.Type, 0, len(r.ContractTypes))
	for _, t := range r.ContractTypes {
		types = append(types, contract.Type(t))
	}
	return renewal.RuleInput{
		Name:                r.Name,
		Active:              r.Active,
		ContractTypes:       types,
		Trigger:             renewal.TriggerKind(r.Trigger),
		TriggerDays:         r.TriggerDays,
		RenewalType:         renewal.RenewalType(r.RenewalType),
		AutoApprove:         r.AutoApprove,
		RenewalPeriodMonths: r.RenewalPeriodMonths,
		PriceAdjustment:     r.PriceAdjustment,
		Conditions:          r.Conditions,
		Notifications:       r.Notifications,
	}
}

// HandleRules handles GET (list) and POST (create) on /api/v1/renewal-rules.
func (h *RenewalHandler) HandleRules(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rules, err := h.engine.ListRules(r.Context(), tenantID)
		if err != nil {
			WriteFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rules": rules,
			"count": len(rules),
		})

	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
		var req RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteBadRequest(w, "Invalid request body")
			return
		}
		rule, err := h.engine.CreateRule(r.Context(), tenantID, req.toInput())
		if err != nil {
			WriteFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rule)

	default:
		WriteMethodNotAllowed(w)
	}
}

// HandleRuleItem handles GET, PUT and DELETE on /api/v1/renewal-rules/{id}.
func (h *RenewalHandler) HandleRuleItem(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		rule, err := h.engine.GetRule(r.Context(), tenantID, id)
		if err != nil {
			WriteFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rule)

	case http.MethodPut:
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
		var req RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteBadRequest(w, "Invalid request body")
			return
		}
		rule, err := h.engine.UpdateRule(r.Context(), tenantID, id, req.toInput())
		if err != nil {
			WriteFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rule)

	case http.MethodDelete:
		if err := h.engine.DeleteRule(r.Context(), tenantID, id); err != nil {
			WriteFault(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		WriteMethodNotAllowed(w)
	}
}

// CreateProposalRequest is the body for POST /api/v1/renewal-proposals.
type CreateProposalRequest struct {
	ContractID string `json:"contract_id"`
	RuleID     string `json:"rule_id,omitempty"`
}

// HandleProposals handles GET (list) and POST (create) on
// /api/v1/renewal-proposals.
func (h *RenewalHandler) HandleProposals(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}

	switch r.Method {
	case http.MethodGet:
		f := renewal.ProposalFilter{
			ContractID: r.URL.Query().Get("contract_id"),
			RuleID:     r.URL.Query().Get("rule_id"),
			Status:     renewal.ProposalStatus(r.URL.Query().Get("status")),
		}
		proposals, err := h.engine.ListProposals(r.Context(), tenantID, f)
		if err != nil {
			WriteFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"proposals": proposals,
			"count":     len(proposals),
		})

	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
		var req CreateProposalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteBadRequest(w, "Invalid request body")
			return
		}
		if req.ContractID == "" {
			WriteBadRequest(w, "Missing required field: contract_id")
			return
		}
		p, err := h.engine.CreateProposal(r.Context(), tenantID, req.ContractID, actor, req.RuleID)
		if err != nil {
			WriteFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(p)

	default:
		WriteMethodNotAllowed(w)
	}
}

// HandleProposalItem handles GET /api/v1/renewal-proposals/{id}.
func (h *RenewalHandler) HandleProposalItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	tenantID, _, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}

	p, err := h.engine.GetProposal(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

// ProcessProposalRequest is the body for POST
// /api/v1/renewal-proposals/{id}/process.
type ProcessProposalRequest struct {
	Action        string           `json:"action"`
	Notes         string           `json:"notes,omitempty"`
	DeclineReason string           `json:"decline_reason,omitempty"`
	ModifyTerms   bool             `json:"modify_terms,omitempty"`
	NewValue      *decimal.Decimal `json:"new_value,omitempty"`
	NewEndDate    *time.Time       `json:"new_end_date,omitempty"`
}

// HandleProcessProposal applies an approve/decline decision to a pending
// proposal.
func (h *RenewalHandler) HandleProcessProposal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	tenantID, actor, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req ProcessProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	p, err := h.engine.ProcessProposal(r.Context(), tenantID, r.PathValue("id"), actor, renewal.Decision{
		Action:        renewal.DecisionAction(req.Action),
		Notes:         req.Notes,
		DeclineReason: req.DeclineReason,
		ModifyTerms:   req.ModifyTerms,
		NewValue:      req.NewValue,
		NewEndDate:    req.NewEndDate,
	})
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

// HandleSweep handles POST /api/v1/renewal-sweep, running the renewal
// sweep for the caller's tenant. When a Redis sweep lock is configured and
// another sweep holds the lease, the request returns 409.
func (h *RenewalHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	tenantID, _, ok := actorFrom(r)
	if !ok {
		WriteUnauthorized(w, "Missing principal")
		return
	}

	ctx := r.Context()
	if h.lock != nil {
		release, acquired, err := h.lock.Acquire(ctx, tenantID)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		if !acquired {
			WriteConflict(w, "A renewal sweep is already running for this tenant")
			return
		}
		defer release(ctx)
	}

	result, err := h.engine.Sweep(ctx, tenantID)
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
