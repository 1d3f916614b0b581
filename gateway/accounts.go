package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"margind/core/types"
	"margind/native/margin"
	"margind/storage"
)

type createAccountRequest struct {
	Owner    types.Address              `json:"owner"`
	Seed     uint16                     `json:"seed"`
	Features margin.AccountFeatureFlags `json:"features"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Owner.IsZero() {
		writeBadRequest(w, errors.New("owner is required"))
		return
	}

	acct := margin.NewAccount(s.registry.Airspace, req.Owner, req.Seed, req.Features)
	if _, err := s.store.GetAccount(acct.Address); err == nil {
		writeEngineError(w, margin.ErrAlreadyJoinedAirspace)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeEngineError(w, err)
		return
	}
	if err := s.store.PutAccount(acct); err != nil {
		writeEngineError(w, err)
		return
	}

	s.log.Info("margin account created",
		"address", acct.Address.Short(),
		"owner", req.Owner.Short(),
		"seed", req.Seed,
	)
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddressParam(r, "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	acct, err := s.store.GetAccount(address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type stalePositionView struct {
	Token  types.Address `json:"token"`
	Reason string        `json:"reason"`
}

type valuationView struct {
	Equity              string              `json:"equity"`
	Liabilities         string              `json:"liabilities"`
	RequiredCollateral  string              `json:"requiredCollateral"`
	WeightedCollateral  string              `json:"weightedCollateral"`
	EffectiveCollateral string              `json:"effectiveCollateral"`
	AvailableCollateral string              `json:"availableCollateral"`
	StaleCollateral     []stalePositionView `json:"staleCollateral,omitempty"`
	PastDue             bool                `json:"pastDue"`
	Healthy             bool                `json:"healthy"`
	Timestamp           uint64              `json:"timestamp"`
}

func (s *Server) accountValuation(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddressParam(r, "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	acct, err := s.store.GetAccount(address)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	timestamp := uint64(s.now())
	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, errors.New("invalid timestamp"))
			return
		}
		timestamp = parsed
	}

	valuation, err := acct.Valuation(timestamp)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	view := valuationView{
		Equity:              valuation.Equity.String(),
		Liabilities:         valuation.Liabilities.String(),
		RequiredCollateral:  valuation.RequiredCollateral.String(),
		WeightedCollateral:  valuation.WeightedCollateral.String(),
		EffectiveCollateral: valuation.EffectiveCollateral.String(),
		AvailableCollateral: valuation.AvailableCollateral().String(),
		PastDue:             valuation.PastDue,
		Healthy:             valuation.VerifyHealthy() == nil,
		Timestamp:           timestamp,
	}
	for _, stale := range valuation.StaleCollateral {
		view.StaleCollateral = append(view.StaleCollateral, stalePositionView{
			Token:  stale.Token,
			Reason: stale.Reason.Error(),
		})
	}
	writeJSON(w, http.StatusOK, view)
}

type registerPositionRequest struct {
	Mint      types.Address `json:"mint"`
	Custodian types.Address `json:"custodian"`
	Adapter   types.Address `json:"adapter,omitempty"`
}

func (s *Server) registerPosition(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddressParam(r, "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req registerPositionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	var key margin.PositionKey
	acct, err := s.store.MutateAccount(address, func(acct *margin.Account) error {
		token, ok := s.registry.TokenConfig(acct.Airspace, req.Mint)
		if !ok {
			return margin.ErrPositionNotRegisterable
		}
		cfg := margin.PositionConfigFromToken(token, req.Custodian, req.Adapter)
		registered, err := acct.RegisterPosition(cfg, margin.Approvals{Authority: true})
		if err != nil {
			return err
		}
		key = registered
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.log.Info("position registered",
		"account", address.Short(),
		"mint", req.Mint.Short(),
		"slot", key.Index,
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":     key,
		"account": acct,
	})
}

func (s *Server) unregisterPosition(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddressParam(r, "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	mint, err := parseAddressParam(r, "mint")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	custodian, err := types.ParseAddress(r.URL.Query().Get("custodian"))
	if err != nil {
		writeBadRequest(w, errors.New("invalid custodian"))
		return
	}

	acct, err := s.store.MutateAccount(address, func(acct *margin.Account) error {
		return acct.UnregisterPosition(mint, custodian, margin.Approvals{Authority: true})
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type invokeRequest struct {
	Program types.Address `json:"program"`
	Signed  bool          `json:"signed"`
}

// invokeAdapter reconciles the account against a configured external
// adapter. The adapter acted out of process; the call snapshots balances,
// refreshes them from the ledger and records the deltas.
func (s *Server) invokeAdapter(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddressParam(r, "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req invokeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if s.invoker == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("adapter invocation is not configured"))
		return
	}

	now := s.now()
	var changes []margin.TokenBalanceChange
	_, err = s.store.MutateAccount(address, func(acct *margin.Account) error {
		call := margin.AdapterCall{
			Program: req.Program,
			Execute: func(*margin.Account) (*margin.AdapterResult, error) { return nil, nil },
		}
		result, err := s.invoker.Invoke(acct, call, req.Signed, now)
		if err != nil {
			return err
		}
		changes = result
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if changes == nil {
		changes = []margin.TokenBalanceChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"balanceChanges": changes})
}
