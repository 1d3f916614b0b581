package gateway

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"margind/core/types"
	"margind/native/marginpool"
)

func (s *Server) listPools(w http.ResponseWriter, _ *http.Request) {
	pools, err := s.store.ListPools()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	mint, err := parseAddressParam(r, "mint")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	pool, err := s.store.GetPool(mint)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) accruePool(w http.ResponseWriter, r *http.Request) {
	mint, err := parseAddressParam(r, "mint")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	now := s.now()
	accrued := false
	pool, err := s.store.MutatePool(mint, func(p *marginpool.Pool) error {
		accrued = p.AccrueInterest(now)
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.engine.ObserveAccrual(mint.String())
	s.engine.SetPoolState(mint.String(), pool.UtilizationRate().Float64(), pool.Borrowed.Float64())
	s.log.Info("pool interest accrued",
		"mint", mint.Short(),
		"accrued", accrued,
		"accruedUntil", pool.AccruedUntil,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"accrued": accrued,
		"pool":    pool,
	})
}

type poolAmountRequest struct {
	// Kind selects the unit of Amount, "tokens" (default) or "notes".
	Kind   string `json:"kind"`
	Amount uint64 `json:"amount"`
}

func (req poolAmountRequest) amount() (marginpool.Amount, error) {
	switch req.Kind {
	case "", "tokens":
		return marginpool.Tokens(req.Amount), nil
	case "notes":
		return marginpool.Notes(req.Amount), nil
	default:
		return marginpool.Amount{}, fmt.Errorf("unknown amount kind %q", req.Kind)
	}
}

func (s *Server) poolDeposit(w http.ResponseWriter, r *http.Request) {
	s.poolOperation(w, r, marginpool.ActionDeposit)
}

func (s *Server) poolWithdraw(w http.ResponseWriter, r *http.Request) {
	s.poolOperation(w, r, marginpool.ActionWithdraw)
}

func (s *Server) poolOperation(w http.ResponseWriter, r *http.Request, action marginpool.PoolAction) {
	mint, err := parseAddressParam(r, "mint")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req poolAmountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := req.amount()
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	now := s.now()
	var full marginpool.FullAmount
	pool, err := s.store.MutatePool(mint, func(p *marginpool.Pool) error {
		if err := p.AccrueBeforeOperation(now); err != nil {
			return err
		}
		converted, err := p.ConvertAmount(amount, action)
		if err != nil {
			return err
		}
		full = converted
		switch action {
		case marginpool.ActionDeposit:
			return p.Deposit(converted)
		case marginpool.ActionWithdraw:
			return p.Withdraw(converted)
		default:
			return marginpool.ErrInvalidAmount
		}
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.engine.SetPoolState(mint.String(), pool.UtilizationRate().Float64(), pool.Borrowed.Float64())
	s.log.Info("pool operation applied",
		"mint", mint.Short(),
		"action", action.String(),
		"tokens", full.Tokens,
		"notes", full.Notes,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"amount": full,
		"pool":   pool,
	})
}

func parseAddressParam(r *http.Request, name string) (types.Address, error) {
	raw := chi.URLParam(r, name)
	addr, err := types.ParseAddress(raw)
	if err != nil {
		return types.ZeroAddress, fmt.Errorf("invalid %s: %w", name, err)
	}
	return addr, nil
}
