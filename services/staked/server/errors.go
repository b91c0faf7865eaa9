package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"nhbstake/native/common"
	"nhbstake/native/stake"
	"nhbstake/services/staked/ops"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps engine failures onto HTTP status codes by error class.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ops.ErrBadRequest):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, stake.ErrModulePaused), errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, common.ErrQuotaRequestsExceeded), errors.Is(err, common.ErrQuotaStakersExceeded):
		return http.StatusTooManyRequests, "throttled"
	}
	kind := stake.KindOf(err)
	switch kind {
	case stake.KindValidation:
		return http.StatusBadRequest, kind.String()
	case stake.KindAuthorization:
		return http.StatusForbidden, kind.String()
	case stake.KindState:
		return http.StatusConflict, kind.String()
	case stake.KindArithmetic:
		return http.StatusUnprocessableEntity, kind.String()
	default:
		return http.StatusInternalServerError, kind.String()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg, kind)
}
