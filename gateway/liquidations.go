package gateway

import (
	"errors"
	"net/http"

	"margind/core/types"
	"margind/native/margin"
	"margind/storage"
)

type liquidateBeginRequest struct {
	Liquidator types.Address `json:"liquidator"`
}

func (s *Server) liquidateBegin(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddressParam(r, "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req liquidateBeginRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	permit, ok := s.registry.Permit(req.Liquidator)
	if !ok {
		writeEngineError(w, margin.ErrInsufficientPermissions)
		return
	}

	now := s.now()
	acct, err := s.store.MutateAccount(address, func(acct *margin.Account) error {
		return acct.LiquidateBegin(req.Liquidator, permit, now)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.store.PutLiquidation(storage.LiquidationRecord{
		Account:    address,
		Liquidator: req.Liquidator,
		StartTime:  now,
	}); err != nil {
		writeEngineError(w, err)
		return
	}

	s.engine.ObserveLiquidation("begin")
	s.log.Warn("liquidation started",
		"account", address.Short(),
		"liquidator", req.Liquidator.Short(),
	)
	writeJSON(w, http.StatusOK, acct)
}

type liquidateEndRequest struct {
	Caller types.Address `json:"caller"`
}

func (s *Server) liquidateEnd(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddressParam(r, "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req liquidateEndRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	acct, err := s.store.MutateAccount(address, func(acct *margin.Account) error {
		return acct.LiquidateEnd(req.Caller, s.now())
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.store.DeleteLiquidation(address); err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeEngineError(w, err)
		return
	}

	s.engine.ObserveLiquidation("end")
	s.log.Info("liquidation ended",
		"account", address.Short(),
		"caller", req.Caller.Short(),
	)
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) listLiquidations(w http.ResponseWriter, _ *http.Request) {
	records, err := s.store.ListLiquidations()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if records == nil {
		records = []storage.LiquidationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"liquidations": records})
}
