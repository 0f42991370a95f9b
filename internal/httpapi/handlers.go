// Package httpapi serves protocol state, quotes and transaction builds
// over JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/amm"
	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/internal/service"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/plutus"
	"github.com/mgpai22/equibasket/txbuilder"
	"github.com/mgpai22/equibasket/units"
	"github.com/mgpai22/equibasket/vault"
)

const maxBodyBytes = 1 << 20

// Handler contains the HTTP handlers for the API endpoints.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewHandler creates a handler over svc.
func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.Named("http")}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a failure to a status code and a JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	body := map[string]string{"error": err.Error()}
	var be *txbuilder.BuildError
	if errors.As(err, &be) {
		body["action"] = be.Action
		body["stage"] = be.Stage
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	} else {
		h.logger.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, txbuilder.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, txbuilder.ErrExists), errors.Is(err, ledger.ErrStaleInput):
		return http.StatusConflict
	case errors.Is(err, txbuilder.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, txbuilder.ErrInvalidParams),
		errors.Is(err, txbuilder.ErrSlippage),
		errors.Is(err, txbuilder.ErrVaultHealthy),
		errors.Is(err, vault.ErrUnhealthy),
		errors.Is(err, vault.ErrAssetNotFound):
		return http.StatusUnprocessableEntity
	}
	var (
		ae *amm.Error
		we *datum.WeightError
		de *plutus.DecodeError
	)
	if errors.As(err, &ae) || errors.As(err, &we) || errors.As(err, &de) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// queryInt reads a required non-negative integer query parameter.
func queryInt(r *http.Request, name string) (*big.Int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, invalid("missing query parameter " + name)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, invalid("query parameter " + name + " is not an integer")
	}
	return v, nil
}

// slippage reads the optional slippage percent; absent means no minimum.
func slippage(r *http.Request) (units.Slippage, error) {
	s := r.URL.Query().Get("slippage")
	if s == "" {
		return units.Slippage{Type: units.SlippageNone}, nil
	}
	pct, err := decimal.NewFromString(s)
	if err != nil {
		return units.Slippage{}, invalid("slippage is not a number")
	}
	return units.Slippage{Type: units.SlippagePercent, Value: pct}, nil
}

type invalidError string

func (e invalidError) Error() string { return string(e) }

func (e invalidError) Is(target error) bool { return target == txbuilder.ErrInvalidParams }

func invalid(msg string) error { return invalidError(msg) }

// State returns every decodable protocol record.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	b := h.svc.Builder()
	ctx := r.Context()
	oracles, err := b.Oracles(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	baskets, err := b.Baskets(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	vaults, err := b.Vaults(ctx, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pools, err := b.Pools(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"oracles": oracles,
		"baskets": baskets,
		"vaults":  vaults,
		"pools":   pools,
	})
}

// Vaults lists vaults, optionally only those of ?owner=<pkh>.
func (h *Handler) Vaults(w http.ResponseWriter, r *http.Request) {
	var owner *datum.PubKeyHash
	if s := r.URL.Query().Get("owner"); s != "" {
		pkh, err := datum.ParsePubKeyHash(s)
		if err != nil {
			h.writeError(w, invalid(err.Error()))
			return
		}
		owner = &pkh
	}
	vaults, err := h.svc.Builder().Vaults(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaults)
}

// VaultHealth reports the collateral ratio of one vault.
func (h *Handler) VaultHealth(w http.ResponseWriter, r *http.Request) {
	ref, err := datum.ParseOutputRef(mux.Vars(r)["ref"])
	if err != nil {
		h.writeError(w, invalid(err.Error()))
		return
	}
	health, err := h.svc.Builder().VaultHealth(r.Context(), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// BasketPrice prices a basket at the latest oracle.
func (h *Handler) BasketPrice(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.Builder().QuoteBasketPrice(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// QuoteSwap handles GET /quote/swap?basket_id=&amount_in=&direction=&slippage=.
func (h *Handler) QuoteSwap(w http.ResponseWriter, r *http.Request) {
	amountIn, err := queryInt(r, "amount_in")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var basketIn bool
	switch dir := r.URL.Query().Get("direction"); dir {
	case "basket_for_ada", "":
		basketIn = true
	case "ada_for_basket":
	default:
		h.writeError(w, invalid("unknown direction "+strconv.Quote(dir)))
		return
	}
	tolerance, err := slippage(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	q, err := h.svc.Builder().QuoteSwap(r.Context(), r.URL.Query().Get("basket_id"), amountIn, basketIn, tolerance)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// QuoteLiquidity handles GET /quote/liquidity?basket_id=&basket_in=&ada_in=&slippage=.
func (h *Handler) QuoteLiquidity(w http.ResponseWriter, r *http.Request) {
	basketIn, err := queryInt(r, "basket_in")
	if err != nil {
		h.writeError(w, err)
		return
	}
	adaIn, err := queryInt(r, "ada_in")
	if err != nil {
		h.writeError(w, err)
		return
	}
	tolerance, err := slippage(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	q, err := h.svc.Builder().QuoteLiquidity(r.Context(), r.URL.Query().Get("basket_id"), basketIn, adaIn, tolerance)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Build handles POST /build/{action}. With ?submit=true the transaction is
// submitted, rebuilding on stale inputs.
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, invalid("failed to read request body"))
		return
	}

	if submit, _ := strconv.ParseBool(r.URL.Query().Get("submit")); submit {
		res, err := h.svc.BuildAndSubmit(r.Context(), action, body)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.logger.Info("Submitted transaction", zap.String("action", action), zap.Stringer("tx_id", res.TxID))
		writeJSON(w, http.StatusCreated, res)
		return
	}

	tx, err := h.svc.Build(r.Context(), action, body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Actions lists the build actions.
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.ActionNames())
}
