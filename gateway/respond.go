package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"margind/native/margin"
	"margind/native/marginpool"
	"margind/storage"
)

const requestBodyLimit = 1 << 20 // 1 MiB

func decodeRequest(r *http.Request, into any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, requestBodyLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		payload = []byte(`{"error":"internal error"}`)
	}
	_, _ = w.Write(payload)
}

// writeEngineError maps engine sentinels onto HTTP statuses so clients can
// distinguish bad input, conflicts and state preconditions.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, margin.ErrUnknownPosition),
		errors.Is(err, margin.ErrPositionNotRegistered):
		writeJSONError(w, http.StatusNotFound, err)
	case errors.Is(err, margin.ErrUnauthorizedLiquidator),
		errors.Is(err, margin.ErrUnauthorizedInvocation),
		errors.Is(err, margin.ErrPermitNotOwned),
		errors.Is(err, margin.ErrInsufficientPermissions),
		errors.Is(err, margin.ErrInvalidPositionOwner):
		writeJSONError(w, http.StatusForbidden, err)
	case errors.Is(err, margin.ErrLiquidating),
		errors.Is(err, margin.ErrPositionAlreadyRegistered),
		errors.Is(err, margin.ErrAccountNotEmpty),
		errors.Is(err, margin.ErrCloseNonZeroPosition),
		errors.Is(err, margin.ErrCloseRequiredPosition),
		errors.Is(err, margin.ErrMaxPositions),
		errors.Is(err, margin.ErrAlreadyJoinedAirspace):
		writeJSONError(w, http.StatusConflict, err)
	case errors.Is(err, margin.ErrHealthy),
		errors.Is(err, margin.ErrUnhealthy),
		errors.Is(err, margin.ErrNotLiquidating),
		errors.Is(err, margin.ErrStalePositions),
		errors.Is(err, margin.ErrOutdatedPrice),
		errors.Is(err, margin.ErrOutdatedBalance),
		errors.Is(err, margin.ErrInvalidPrice),
		errors.Is(err, margin.ErrAccountConstraintViolation),
		errors.Is(err, margin.ErrPositionNotRegisterable),
		errors.Is(err, marginpool.ErrDisabled),
		errors.Is(err, marginpool.ErrInterestAccrualBehind),
		errors.Is(err, marginpool.ErrDepositsOnly),
		errors.Is(err, marginpool.ErrInsufficientLiquidity),
		errors.Is(err, marginpool.ErrDepositLimitReached),
		errors.Is(err, marginpool.ErrBorrowLimitReached):
		writeJSONError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, margin.ErrWrongAirspace),
		errors.Is(err, marginpool.ErrInvalidAmount):
		writeJSONError(w, http.StatusBadRequest, err)
	default:
		writeJSONError(w, http.StatusInternalServerError, err)
	}
}
