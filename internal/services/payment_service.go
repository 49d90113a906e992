package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"sendcash-backend/internal/clients"
	"sendcash-backend/internal/metrics"
	"sendcash-backend/internal/models"
	"sendcash-backend/internal/repository"
	"sendcash-backend/internal/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ListCapPerDirection bounds each side of an address history query
const ListCapPerDirection = 50

// StorePaymentInput raw payment fields as received from a client or the chain
type StorePaymentInput struct {
	TxHash       string
	FromAddress  string
	ToAddress    string
	FromUsername string
	ToUsername   string
	TokenAddress string
	Amount       string
	Fee          string
	Status       models.PaymentStatus
	CreatedAt    int64 // unix seconds; 0 means now
}

// ChainTxStatus on-chain receipt summary for payments not in the store
type ChainTxStatus struct {
	TxHash      string `json:"txHash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
}

// ReceiptView receipt plus the payment summary it points at
type ReceiptView struct {
	TxHash    string         `json:"txHash"`
	ShareLink string         `json:"shareLink"`
	Payment   ReceiptPayment `json:"payment"`
}

// ReceiptPayment payment summary embedded in a receipt
type ReceiptPayment struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

// PaymentService payment store operations
type PaymentService struct {
	payments   repository.PaymentRepository
	receipts   repository.ReceiptRepository
	usernames  *UsernameService
	chain      clients.ChainReader // nil disables the receipt fallback
	events     *fanOut
	receiptURL string
	log        *logrus.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	payments repository.PaymentRepository,
	receipts repository.ReceiptRepository,
	usernames *UsernameService,
	chain clients.ChainReader,
	receiptBaseURL string,
	log *logrus.Logger,
	sinks ...PaymentEventSink,
) *PaymentService {
	return &PaymentService{
		payments:   payments,
		receipts:   receipts,
		usernames:  usernames,
		chain:      chain,
		events:     &fanOut{sinks: sinks, log: log},
		receiptURL: strings.TrimRight(receiptBaseURL, "/"),
		log:        log,
	}
}

// Store validates and upserts a payment keyed by tx hash. A payment that is
// already confirmed or failed keeps its status.
func (s *PaymentService) Store(ctx context.Context, in StorePaymentInput, source string) (*models.Payment, error) {
	payment, err := s.normalize(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.payments.Upsert(ctx, payment); err != nil {
		return nil, persistenceError("upsert payment", err)
	}
	metrics.PaymentsStored.WithLabelValues(source).Inc()

	// the row may predate this write: keep its created_at and final status
	stored, err := s.payments.GetByTxHash(ctx, payment.TxHash)
	if err != nil {
		return nil, persistenceError("reload payment", err)
	}
	if stored.Status != payment.Status {
		s.log.WithFields(logrus.Fields{
			"tx_hash":  stored.TxHash,
			"stored":   stored.Status,
			"incoming": payment.Status,
		}).Debug("keeping final payment status")
	}

	s.log.WithFields(logrus.Fields{
		"tx_hash": stored.TxHash,
		"from":    stored.FromAddress,
		"to":      stored.ToAddress,
		"status":  stored.Status,
		"source":  source,
	}).Info("payment stored")

	s.events.publish(ctx, stored)
	return stored, nil
}

func (s *PaymentService) normalize(ctx context.Context, in StorePaymentInput) (*models.Payment, error) {
	if !utils.IsTxHash(in.TxHash) {
		return nil, validationError("invalid txHash")
	}
	if !utils.IsEvmAddress(in.FromAddress) {
		return nil, validationError("invalid fromAddress")
	}
	if !utils.IsEvmAddress(in.ToAddress) {
		return nil, validationError("invalid toAddress")
	}
	if !utils.IsEvmAddress(in.TokenAddress) {
		return nil, validationError("invalid tokenAddress")
	}

	status := in.Status
	if status == "" {
		status = models.PaymentStatusConfirmed
	}
	if !status.Valid() {
		return nil, validationError("invalid status %q", status)
	}

	fee := in.Fee
	if fee == "" {
		fee = "0"
	}
	payment := &models.Payment{
		TxHash:       utils.NormalizeTxHash(in.TxHash),
		FromAddress:  utils.NormalizeAddress(in.FromAddress),
		ToAddress:    utils.NormalizeAddress(in.ToAddress),
		TokenAddress: utils.NormalizeAddress(in.TokenAddress),
		Amount:       strings.TrimSpace(in.Amount),
		Fee:          strings.TrimSpace(fee),
		Status:       status,
		CreatedAt:    in.CreatedAt,
	}

	amount, err := payment.AmountInt()
	if err != nil {
		return nil, validationError("%v", err)
	}
	feeInt, err := payment.FeeInt()
	if err != nil {
		return nil, validationError("%v", err)
	}
	if _, err := NetAmount(amount, feeInt); err != nil {
		return nil, err
	}
	// canonical form so "007" and "7" do not produce different rows
	payment.Amount = amount.String()
	payment.Fee = feeInt.String()

	payment.FromUsername = s.usernameOrCached(ctx, in.FromUsername, payment.FromAddress)
	payment.ToUsername = s.usernameOrCached(ctx, in.ToUsername, payment.ToAddress)
	return payment, nil
}

func (s *PaymentService) usernameOrCached(ctx context.Context, username, address string) *string {
	name := utils.NormalizeUsername(username)
	if name == "" && s.usernames != nil {
		name = s.usernames.DisplayNameFor(ctx, address)
	}
	if name == "" {
		return nil
	}
	return &name
}

// Get returns ErrNotFound for unknown hashes
func (s *PaymentService) Get(ctx context.Context, txHash string) (*models.Payment, error) {
	if !utils.IsTxHash(txHash) {
		return nil, validationError("invalid txHash")
	}
	payment, err := s.payments.GetByTxHash(ctx, utils.NormalizeTxHash(txHash))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("get payment", err)
	}
	return payment, nil
}

// LookupOnChain receipt fallback for hashes the store has not seen
func (s *PaymentService) LookupOnChain(ctx context.Context, txHash string) (*ChainTxStatus, error) {
	if s.chain == nil {
		return nil, ErrNotFound
	}
	receipt, err := s.chain.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrNotFound
		}
		return nil, externalError("transaction receipt", err)
	}

	status := string(models.PaymentStatusFailed)
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = string(models.PaymentStatusConfirmed)
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return &ChainTxStatus{
		TxHash:      utils.NormalizeTxHash(txHash),
		Status:      status,
		BlockNumber: block,
	}, nil
}

// ReconcilePending settles a pending payment from its chain receipt. A mined
// transaction becomes confirmed or failed; an unknown one stays pending.
func (s *PaymentService) ReconcilePending(ctx context.Context, p *models.Payment) (models.PaymentStatus, error) {
	onChain, err := s.LookupOnChain(ctx, p.TxHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.PaymentStatusPending, nil
		}
		return models.PaymentStatusPending, err
	}

	in := StorePaymentInput{
		TxHash:       p.TxHash,
		FromAddress:  p.FromAddress,
		ToAddress:    p.ToAddress,
		FromUsername: deref(p.FromUsername),
		ToUsername:   deref(p.ToUsername),
		TokenAddress: p.TokenAddress,
		Amount:       p.Amount,
		Fee:          p.Fee,
		Status:       models.PaymentStatus(onChain.Status),
		CreatedAt:    p.CreatedAt,
	}
	stored, err := s.Store(ctx, in, "reconcile")
	if err != nil {
		return models.PaymentStatusPending, err
	}
	return stored.Status, nil
}

// ListByAddress merges sent and received payments (at most
// ListCapPerDirection each), newest first
func (s *PaymentService) ListByAddress(ctx context.Context, address string) ([]models.DirectedPayment, error) {
	if !utils.IsEvmAddress(address) {
		return nil, validationError("invalid address")
	}
	addr := utils.NormalizeAddress(address)

	sent, err := s.payments.ListSent(ctx, addr, ListCapPerDirection)
	if err != nil {
		return nil, persistenceError("list sent payments", err)
	}
	received, err := s.payments.ListReceived(ctx, addr, ListCapPerDirection)
	if err != nil {
		return nil, persistenceError("list received payments", err)
	}

	out := make([]models.DirectedPayment, 0, len(sent)+len(received))
	for _, p := range sent {
		out = append(out, models.DirectedPayment{Payment: *p, Direction: models.DirectionSent})
	}
	for _, p := range received {
		out = append(out, models.DirectedPayment{Payment: *p, Direction: models.DirectionReceived})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].TxHash > out[j].TxHash
	})
	return out, nil
}

// CreateReceipt returns the share link for a confirmed payment, creating it once
func (s *PaymentService) CreateReceipt(ctx context.Context, txHash string) (*ReceiptView, error) {
	payment, err := s.Get(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusConfirmed {
		return nil, validationError("payment %s is %s, receipts require a confirmed payment", payment.TxHash, payment.Status)
	}

	receipt, err := s.receipts.GetOrCreate(ctx, &models.Receipt{
		TxHash:    payment.TxHash,
		ShareLink: fmt.Sprintf("%s/%s", s.receiptURL, payment.TxHash),
	})
	if err != nil {
		return nil, persistenceError("create receipt", err)
	}

	return &ReceiptView{
		TxHash:    receipt.TxHash,
		ShareLink: receipt.ShareLink,
		Payment: ReceiptPayment{
			From:   payment.FromAddress,
			To:     payment.ToAddress,
			Amount: payment.Amount,
			Token:  payment.TokenAddress,
		},
	}, nil
}
