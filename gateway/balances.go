package gateway

import (
	"net/http"

	"margind/storage"
)

type balanceRequest struct {
	Tokens uint64 `json:"tokens"`
}

// putBalance records the tokens held by a position custodian. Adapter
// reconciliation reads these balances when refreshing positions.
func (s *Server) putBalance(w http.ResponseWriter, r *http.Request) {
	custodian, err := parseAddressParam(r, "custodian")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req balanceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.store.PutBalance(custodian, req.Tokens); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"custodian": custodian,
		"tokens":    req.Tokens,
	})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	custodian, err := parseAddressParam(r, "custodian")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	tokens, found := s.store.Balance(custodian)
	if !found {
		writeEngineError(w, storage.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"custodian": custodian,
		"tokens":    tokens,
	})
}
