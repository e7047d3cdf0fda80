// Package api exposes the relay over HTTP: the market-actor call surface,
// piece and gas-funds queries, offer submission, and admin configuration.
package api

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/filozone/onramp-relay/internal/codec"
	"github.com/filozone/onramp-relay/internal/dealclient"
	"github.com/filozone/onramp-relay/internal/gasfunds"
	"github.com/filozone/onramp-relay/internal/onramp"
	"github.com/filozone/onramp-relay/internal/oracle"
	"github.com/filozone/onramp-relay/internal/router"
)

// Handler wires the relay components onto a Gin engine.
type Handler struct {
	dc   *dealclient.DealClient
	orc  *oracle.Oracle
	ramp *onramp.OnRamp
	log  *zap.Logger
}

func NewHandler(dc *dealclient.DealClient, orc *oracle.Oracle, ramp *onramp.OnRamp, log *zap.Logger) *Handler {
	return &Handler{dc: dc, orc: orc, ramp: ramp, log: log}
}

// Register mounts all routes. adminAuth guards the mutating admin surface.
func (h *Handler) Register(r *gin.Engine, adminAuth gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "pending_dispatches": h.dc.PendingDispatches()})
	})

	v1 := r.Group("/v1")

	// ── Read surface ───────────────────────────────────────────────────────
	v1.GET("/piece/:commp", h.handlePiece)
	v1.GET("/piece/:commp/proof", h.handlePieceProof)
	v1.GET("/gasfunds/:provider", h.handleGasFundsBalance)
	v1.GET("/offers/:id", h.handleGetOffer)

	// ── Actor call surface ─────────────────────────────────────────────────
	v1.POST("/actor/call", h.handleActorCall)
	v1.POST("/oracle/execute", h.handleOracleExecute)

	// ── Client surface ─────────────────────────────────────────────────────
	v1.POST("/offers", h.handleOfferData)
	v1.POST("/gasfunds", h.handleAddGasFunds)

	// ── Admin surface ──────────────────────────────────────────────────────
	admin := v1.Group("/admin", adminAuth)
	admin.POST("/chains", h.handleSetChains)
	admin.POST("/sender-receiver", h.handleSetSenderReceiver)
	admin.POST("/oracle", h.handleSetOracle)
}

func parseCommP(s string) ([32]byte, error) {
	var commP [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return commP, err
	}
	if len(raw) != 32 {
		return commP, errors.New("piece commitment must be 32 bytes")
	}
	copy(commP[:], raw)
	return commP, nil
}

// ── Read surface ──────────────────────────────────────────────────────────────

func (h *Handler) handlePiece(c *gin.Context) {
	commP, err := parseCommP(c.Param("commp"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid piece commitment"})
		return
	}
	entry, ok := h.dc.PieceEntry(commP)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "piece not registered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deal_id": entry.DealID,
		"status":  entry.Status.String(),
	})
}

func (h *Handler) handlePieceProof(c *gin.Context) {
	commP, err := parseCommP(c.Param("commp"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid piece commitment"})
		return
	}
	proof, err := h.ramp.ProofForPiece(c.Request.Context(), commP[:])
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup proof"})
		return
	}
	if proof == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attestation for piece"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deal_id":  proof.DealID,
		"duration": proof.Duration,
		"status":   proof.Status,
	})
}

func (h *Handler) handleGasFundsBalance(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"provider": c.Param("provider"),
		"balance":  h.dc.GasFunds(c.Param("provider")).String(),
	})
}

func (h *Handler) handleGetOffer(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer id"})
		return
	}
	offer, err := h.ramp.GetOffer(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, onramp.ErrOfferNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "offer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup offer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       offer.ID,
		"commp":    hex.EncodeToString(offer.CommP),
		"size":     offer.Size,
		"location": offer.Location,
		"amount":   offer.Amount.String(),
		"token":    offer.Token.Hex(),
		"client":   offer.Client.Hex(),
	})
}

// ── Actor call surface ────────────────────────────────────────────────────────

type actorCallRequest struct {
	Caller string `json:"caller" binding:"required"`
	Method uint64 `json:"method"`
	Value  string `json:"value"`
	Params string `json:"params"` // base64
}

// handleActorCall maps an actor method invocation onto HTTP. The response
// always carries the numeric exit code alongside any return bytes.
func (h *Handler) handleActorCall(c *gin.Context) {
	var req actorCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	value := new(big.Int)
	if req.Value != "" {
		if _, ok := value.SetString(req.Value, 10); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid value"})
			return
		}
	}
	params, err := base64.StdEncoding.DecodeString(req.Params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params encoding"})
		return
	}

	ret, err := h.dc.HandleActorMethod(c.Request.Context(), common.HexToAddress(req.Caller), req.Method, value, params)
	code := dealclient.ExitCode(err)
	if err != nil {
		h.log.Warn("actor call failed",
			zap.Uint64("method", req.Method),
			zap.Int64("exit_code", int64(code)),
			zap.Error(err),
		)
		c.JSON(actorCallStatus(err), gin.H{"exit_code": code, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exit_code": code,
		"return":    base64.StdEncoding.EncodeToString(ret),
	})
}

func actorCallStatus(err error) int {
	switch {
	case errors.Is(err, dealclient.ErrUnauthorizedCaller):
		return http.StatusForbidden
	case errors.Is(err, codec.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrUnknownDestinationChain):
		return http.StatusNotFound
	case errors.Is(err, dealclient.ErrUnhandledMethod):
		return http.StatusNotImplemented
	case errors.Is(err, gasfunds.ErrValueMismatch), errors.Is(err, gasfunds.ErrNegativeAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type oracleExecuteRequest struct {
	MessageID   string `json:"message_id" binding:"required"`
	SourceChain string `json:"source_chain" binding:"required"`
	SourceAddr  string `json:"source_address" binding:"required"`
	Payload     string `json:"payload"` // base64
}

func (h *Handler) handleOracleExecute(c *gin.Context) {
	var req oracleExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload encoding"})
		return
	}

	err = h.orc.Execute(c.Request.Context(), &oracle.Message{
		MessageID:   req.MessageID,
		SourceChain: req.SourceChain,
		SourceAddr:  req.SourceAddr,
		Payload:     payload,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	case errors.Is(err, oracle.ErrDuplicateMessage):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, oracle.ErrUnsupportedOriginChain),
		errors.Is(err, oracle.ErrUntrustedSender),
		errors.Is(err, oracle.ErrNotConfigured):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, codec.ErrMalformedAttestation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ── Client surface ────────────────────────────────────────────────────────────

type offerRequest struct {
	Sender   string `json:"sender" binding:"required"`
	CommP    string `json:"commp" binding:"required"`
	Size     uint64 `json:"size" binding:"required"`
	Location string `json:"location" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

func (h *Handler) handleOfferData(c *gin.Context) {
	var req offerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	commP, err := hex.DecodeString(req.CommP)
	if err != nil || len(commP) != 32 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid piece commitment"})
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	id, err := h.ramp.OfferData(c.Request.Context(), common.HexToAddress(req.Sender), onramp.Offer{
		CommP:    commP,
		Size:     req.Size,
		Location: req.Location,
		Amount:   amount,
		Token:    common.HexToAddress(req.Token),
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type gasFundsRequest struct {
	Provider string `json:"provider" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Value    string `json:"value" binding:"required"`
}

func (h *Handler) handleAddGasFunds(c *gin.Context) {
	var req gasFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	amount, okA := new(big.Int).SetString(req.Amount, 10)
	value, okV := new(big.Int).SetString(req.Value, 10)
	if !okA || !okV {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	if err := h.dc.AddGasFunds(req.Provider, amount, value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider": req.Provider,
		"balance":  h.dc.GasFunds(req.Provider).String(),
	})
}

// ── Admin surface ─────────────────────────────────────────────────────────────

type setChainsRequest struct {
	IDs   []uint64 `json:"ids" binding:"required"`
	Names []string `json:"names" binding:"required"`
	Addrs []string `json:"addrs" binding:"required"`
}

func (h *Handler) handleSetChains(c *gin.Context) {
	var req setChainsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	addrs := make([]common.Address, len(req.Addrs))
	for i, a := range req.Addrs {
		addrs[i] = common.HexToAddress(a)
	}
	if err := h.dc.SetDestinationChains(req.IDs, req.Names, addrs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.log.Info("destination chains configured", zap.Uint64s("ids", req.IDs))
	c.JSON(http.StatusOK, gin.H{"chains": len(req.IDs)})
}

type setSenderReceiverRequest struct {
	Sender string `json:"sender" binding:"required"`
}

func (h *Handler) handleSetSenderReceiver(c *gin.Context) {
	var req setSenderReceiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.orc.SetSenderReceiver(req.Sender, h.ramp); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.log.Info("oracle sender configured", zap.String("sender", req.Sender))
	c.JSON(http.StatusOK, gin.H{"sender": req.Sender})
}

type setOracleRequest struct {
	Addr string `json:"addr" binding:"required"`
}

func (h *Handler) handleSetOracle(c *gin.Context) {
	var req setOracleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.ramp.SetOracle(req.Addr); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.log.Info("onramp oracle configured", zap.String("oracle", req.Addr))
	c.JSON(http.StatusOK, gin.H{"oracle": req.Addr})
}
