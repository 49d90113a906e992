package handlers

import (
	"errors"
	"net/http"

	"sendcash-backend/internal/models"
	"sendcash-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PaymentHandler payment store endpoints
type PaymentHandler struct {
	payments *services.PaymentService
	log      *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *services.PaymentService, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

// StorePaymentRequest POST /api/payment/store body
type StorePaymentRequest struct {
	TxHash       string `json:"txHash" binding:"required"`
	FromAddress  string `json:"fromAddress" binding:"required"`
	ToAddress    string `json:"toAddress" binding:"required"`
	FromUsername string `json:"fromUsername"`
	ToUsername   string `json:"toUsername"`
	TokenAddress string `json:"tokenAddress" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Fee          string `json:"fee"`
}

// ReceiptRequest POST /api/payment/receipt body
type ReceiptRequest struct {
	TxHash string `json:"txHash" binding:"required"`
}

// GetPaymentHandler GET /api/payment/:txHash
// Falls back to the chain receipt for hashes the store has not seen.
func (h *PaymentHandler) GetPaymentHandler(c *gin.Context) {
	ctx := c.Request.Context()
	txHash := c.Param("txHash")

	payment, err := h.payments.Get(ctx, txHash)
	if err == nil {
		c.JSON(http.StatusOK, payment)
		return
	}
	if !errors.Is(err, services.ErrNotFound) {
		respondWithServiceError(c, h.log, err)
		return
	}

	onChain, err := h.payments.LookupOnChain(ctx, txHash)
	if err != nil {
		respondWithServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, onChain)
}

// StorePaymentHandler POST /api/payment/store
// Client-reported payments are stored as confirmed.
func (h *PaymentHandler) StorePaymentHandler(c *gin.Context) {
	var req StorePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "validation_error", "txHash, fromAddress, toAddress, tokenAddress and amount are required", nil)
		return
	}

	_, err := h.payments.Store(c.Request.Context(), services.StorePaymentInput{
		TxHash:       req.TxHash,
		FromAddress:  req.FromAddress,
		ToAddress:    req.ToAddress,
		FromUsername: req.FromUsername,
		ToUsername:   req.ToUsername,
		TokenAddress: req.TokenAddress,
		Amount:       req.Amount,
		Fee:          req.Fee,
		Status:       models.PaymentStatusConfirmed,
	}, "api")
	if err != nil {
		respondWithServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SubmitPaymentHandler POST /api/payment/submit
// A client reports a transaction it just broadcast. The payment stays pending
// until the chain watcher or the scheduler sees it mined.
func (h *PaymentHandler) SubmitPaymentHandler(c *gin.Context) {
	var req StorePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "validation_error", "txHash, fromAddress, toAddress, tokenAddress and amount are required", nil)
		return
	}

	payment, err := h.payments.Store(c.Request.Context(), services.StorePaymentInput{
		TxHash:       req.TxHash,
		FromAddress:  req.FromAddress,
		ToAddress:    req.ToAddress,
		FromUsername: req.FromUsername,
		ToUsername:   req.ToUsername,
		TokenAddress: req.TokenAddress,
		Amount:       req.Amount,
		Fee:          req.Fee,
		Status:       models.PaymentStatusPending,
	}, "submit")
	if err != nil {
		respondWithServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "status": payment.Status})
}

// CreateReceiptHandler POST /api/payment/receipt
func (h *PaymentHandler) CreateReceiptHandler(c *gin.Context) {
	var req ReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "validation_error", "txHash is required", nil)
		return
	}

	receipt, err := h.payments.CreateReceipt(c.Request.Context(), req.TxHash)
	if err != nil {
		respondWithServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ListTransactionsHandler GET /api/transactions/:address
func (h *PaymentHandler) ListTransactionsHandler(c *gin.Context) {
	transactions, err := h.payments.ListByAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondWithServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}
