package api

import (
	"encoding/json"
	"net/http"
)

// Routes bundles the handlers the server exposes.
type Routes struct {
	Contracts *ContractHandler
	Renewals  *RenewalHandler
}

// NewMux builds the HTTP routing table.
func NewMux(routes Routes) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readiness", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	mux.HandleFunc("/api/v1/contracts", routes.Contracts.HandleCollection)
	mux.HandleFunc("/api/v1/contracts/{id}", routes.Contracts.HandleItem)
	mux.HandleFunc("/api/v1/contracts/{id}/activity", routes.Contracts.HandleActivity)
	mux.HandleFunc("/api/v1/contracts/{id}/{action}", routes.Contracts.HandleTransition)

	mux.HandleFunc("/api/v1/renewal-rules", routes.Renewals.HandleRules)
	mux.HandleFunc("/api/v1/renewal-rules/{id}", routes.Renewals.HandleRuleItem)
	mux.HandleFunc("/api/v1/renewal-proposals", routes.Renewals.HandleProposals)
	mux.HandleFunc("/api/v1/renewal-proposals/{id}", routes.Renewals.HandleProposalItem)
	mux.HandleFunc("/api/v1/renewal-proposals/{id}/process", routes.Renewals.HandleProcessProposal)
	mux.HandleFunc("/api/v1/renewal-sweep", routes.Renewals.HandleSweep)

	return mux
}

// Chain applies middlewares right-to-left, so the first listed runs first.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
