// Package http exposes read-only engine queries over HTTP:
//   - GET /health: node reachability for liveness/readiness probes
//   - GET /v1/positions/{owner}: an owner's positions with risk metrics
//   - GET /v1/vaults/{vault}/config: a vault's risk parameters
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/inbound"
)

// Handler implements HTTP handlers for the API.
type Handler struct {
	positions inbound.PositionQuery
	configs   inbound.VaultConfigQuery
	health    inbound.HealthChecker
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(positions inbound.PositionQuery, configs inbound.VaultConfigQuery, health inbound.HealthChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		positions: positions,
		configs:   configs,
		health:    health,
		logger:    logger.With("component", "http-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /v1/positions/{owner}", h.Positions)
	mux.HandleFunc("GET /v1/vaults/{vault}/config", h.VaultConfig)
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Check(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "service unhealthy")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type positionsResponse struct {
	Owner     common.Address    `json:"owner"`
	Positions []entity.Position `json:"positions"`
}

// Positions lists an owner's positions.
func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.addressParam(w, r, "owner")
	if !ok {
		return
	}

	positions, err := h.positions.FetchPositions(r.Context(), owner)
	if err != nil {
		h.respondUpstreamError(w, "fetching positions", err)
		return
	}
	if positions == nil {
		positions = []entity.Position{}
	}
	h.respondJSON(w, http.StatusOK, positionsResponse{Owner: owner, Positions: positions})
}

type vaultConfigResponse struct {
	Vault                common.Address `json:"vault"`
	CollateralToken      common.Address `json:"collateralToken"`
	DebtToken            common.Address `json:"debtToken"`
	MaxLTV               string         `json:"maxLtv"`
	LiquidationThreshold string         `json:"liquidationThreshold"`
	LiquidationPenalty   string         `json:"liquidationPenalty"`
}

// VaultConfig returns a vault's risk parameters.
func (h *Handler) VaultConfig(w http.ResponseWriter, r *http.Request) {
	vault, ok := h.addressParam(w, r, "vault")
	if !ok {
		return
	}

	cfg, err := h.configs.FetchConfig(r.Context(), vault)
	if err != nil {
		h.respondUpstreamError(w, "fetching vault config", err)
		return
	}
	h.respondJSON(w, http.StatusOK, vaultConfigResponse{
		Vault:                cfg.VaultAddress,
		CollateralToken:      cfg.CollateralToken,
		DebtToken:            cfg.DebtToken,
		MaxLTV:               cfg.MaxLTV.String(),
		LiquidationThreshold: cfg.LiquidationThreshold.String(),
		LiquidationPenalty:   cfg.LiquidationPenalty.String(),
	})
}

func (h *Handler) addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		h.respondError(w, http.StatusBadRequest, "invalid "+name+" address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// respondUpstreamError maps engine errors to status codes. Failures of the
// chain node are 502; anything else is 500.
func (h *Handler) respondUpstreamError(w http.ResponseWriter, action string, err error) {
	var (
		netErr *entity.NetworkError
		rpcErr *entity.RPCError
		decErr *entity.DecodingError
	)
	switch {
	case errors.As(err, &netErr), errors.As(err, &rpcErr), errors.As(err, &decErr):
		h.logger.Warn("upstream failure", "action", action, "error", err)
		h.respondError(w, http.StatusBadGateway, action+": "+err.Error())
	default:
		h.logger.Error("request failed", "action", action, "error", err)
		h.respondError(w, http.StatusInternalServerError, action+" failed")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
