package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"sendcash-backend/internal/clients"
	"sendcash-backend/internal/config"
	"sendcash-backend/internal/metrics"
	"sendcash-backend/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

const (
	watcherMaxRetries   = 3
	watcherRetryBackoff = 500 * time.Millisecond
)

// WatcherOptions block window and polling cadence for the payment watcher
type WatcherOptions struct {
	Contract      string
	Interval      time.Duration
	BatchBlocks   uint64
	Confirmations uint64
	StartBlock    uint64 // 0 starts at the confirmed head
}

// paymentSentData non-indexed PaymentSent fields
type paymentSentData struct {
	Amount       *big.Int
	Fee          *big.Int
	FromUsername string
	ToUsername   string
}

// PaymentWatcherService polls SendCash PaymentSent logs and stores each one
// as a confirmed payment. Upserts are keyed by tx hash so rescanning a block
// range is harmless.
type PaymentWatcherService struct {
	chain    clients.ChainReader
	payments *PaymentService
	opts     WatcherOptions
	log      *logrus.Logger

	contract common.Address
	abi      abi.ABI
	topic0   common.Hash

	mu        sync.Mutex
	nextBlock uint64
	started   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPaymentWatcherService parses the SendCash ABI and validates the contract address
func NewPaymentWatcherService(chain clients.ChainReader, payments *PaymentService, opts WatcherOptions, log *logrus.Logger) (*PaymentWatcherService, error) {
	if !common.IsHexAddress(opts.Contract) {
		return nil, fmt.Errorf("invalid SendCash contract address %q", opts.Contract)
	}
	parsed, err := abi.JSON(strings.NewReader(config.SendCashABI))
	if err != nil {
		return nil, fmt.Errorf("parse SendCash ABI: %w", err)
	}
	event, ok := parsed.Events["PaymentSent"]
	if !ok {
		return nil, fmt.Errorf("PaymentSent event missing from ABI")
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.BatchBlocks == 0 {
		opts.BatchBlocks = 500
	}

	return &PaymentWatcherService{
		chain:     chain,
		payments:  payments,
		opts:      opts,
		log:       log,
		contract:  common.HexToAddress(opts.Contract),
		abi:       parsed,
		topic0:    event.ID,
		nextBlock: opts.StartBlock,
	}, nil
}

// Start polls until Stop or ctx is done
func (w *PaymentWatcherService) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.stopCh = make(chan struct{})

	w.log.WithFields(logrus.Fields{
		"contract":      w.contract.Hex(),
		"interval":      w.opts.Interval.String(),
		"confirmations": w.opts.Confirmations,
	}).Info("🚀 Payment watcher starting")

	w.wg.Add(1)
	go w.loop(ctx, w.stopCh)
}

// Stop waits for the current poll to finish
func (w *PaymentWatcherService) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("🛑 Payment watcher stopped")
}

func (w *PaymentWatcherService) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil {
			w.log.WithError(err).Warn("payment watcher poll failed")
		}
		select {
		case <-ticker.C:
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll scans from the last processed block up to head minus confirmations
// and returns how many payments were stored
func (w *PaymentWatcherService) Poll(ctx context.Context) (int, error) {
	var head uint64
	err := withRetry(ctx, watcherMaxRetries, watcherRetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = w.chain.BlockNumber(ctx)
		return err
	})
	if err != nil {
		metrics.WatcherErrors.WithLabelValues("block_number").Inc()
		return 0, externalError("block number", err)
	}
	if head < w.opts.Confirmations {
		return 0, nil
	}
	safeHead := head - w.opts.Confirmations

	w.mu.Lock()
	from := w.nextBlock
	w.mu.Unlock()
	if from == 0 {
		from = safeHead
	}
	if from > safeHead {
		return 0, nil
	}

	stored := 0
	for start := from; start <= safeHead; start += w.opts.BatchBlocks {
		end := start + w.opts.BatchBlocks - 1
		if end > safeHead {
			end = safeHead
		}

		n, err := w.scanRange(ctx, start, end)
		stored += n
		if err != nil {
			return stored, err
		}

		w.mu.Lock()
		w.nextBlock = end + 1
		w.mu.Unlock()
		metrics.WatcherLastBlock.Set(float64(end))
	}
	return stored, nil
}

func (w *PaymentWatcherService) scanRange(ctx context.Context, from, to uint64) (int, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{{w.topic0}},
	}

	var logs []types.Log
	err := withRetry(ctx, watcherMaxRetries, watcherRetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = w.chain.FilterLogs(ctx, query)
		if err != nil {
			w.log.WithFields(logrus.Fields{
				"from":  from,
				"to":    to,
				"error": err.Error(),
			}).Warn("filter logs failed")
		}
		return err
	})
	if err != nil {
		metrics.WatcherErrors.WithLabelValues("filter_logs").Inc()
		return 0, externalError("filter logs", err)
	}

	stored := 0
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		in, err := w.decode(ctx, lg)
		if err != nil {
			// one bad log must not stall the range
			metrics.WatcherErrors.WithLabelValues("decode").Inc()
			w.log.WithFields(logrus.Fields{
				"tx_hash": lg.TxHash.Hex(),
				"error":   err.Error(),
			}).Warn("skipping undecodable PaymentSent log")
			continue
		}
		if _, err := w.payments.Store(ctx, in, "watcher"); err != nil {
			if errors.Is(err, ErrValidation) {
				// a rescan would reject it again; only store failures hold the cursor
				metrics.WatcherErrors.WithLabelValues("store_invalid").Inc()
				w.log.WithFields(logrus.Fields{
					"tx_hash": lg.TxHash.Hex(),
					"block":   lg.BlockNumber,
					"error":   err.Error(),
				}).Warn("skipping invalid PaymentSent log")
				continue
			}
			metrics.WatcherErrors.WithLabelValues("store").Inc()
			return stored, err
		}
		stored++
	}

	if len(logs) > 0 {
		w.log.WithFields(logrus.Fields{
			"from":   from,
			"to":     to,
			"logs":   len(logs),
			"stored": stored,
		}).Info("payment watcher batch complete")
	}
	return stored, nil
}

// decode turns a PaymentSent log into a store input
func (w *PaymentWatcherService) decode(ctx context.Context, lg types.Log) (StorePaymentInput, error) {
	if len(lg.Topics) != 4 {
		return StorePaymentInput{}, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}

	var data paymentSentData
	if err := w.abi.UnpackIntoInterface(&data, "PaymentSent", lg.Data); err != nil {
		return StorePaymentInput{}, fmt.Errorf("unpack PaymentSent: %w", err)
	}
	if data.Amount == nil {
		return StorePaymentInput{}, fmt.Errorf("PaymentSent without amount")
	}
	fee := data.Fee
	if fee == nil {
		fee = new(big.Int)
	}

	var createdAt int64
	err := withRetry(ctx, watcherMaxRetries, watcherRetryBackoff, func(ctx context.Context) error {
		ts, err := w.chain.BlockTimestamp(ctx, lg.BlockNumber)
		if err != nil {
			return err
		}
		createdAt = int64(ts)
		return nil
	})
	if err != nil {
		// fall back to ingestion time rather than dropping the payment
		createdAt = time.Now().Unix()
	}

	return StorePaymentInput{
		TxHash:       lg.TxHash.Hex(),
		FromAddress:  common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		ToAddress:    common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		TokenAddress: common.BytesToAddress(lg.Topics[3].Bytes()).Hex(),
		FromUsername: data.FromUsername,
		ToUsername:   data.ToUsername,
		Amount:       data.Amount.String(),
		Fee:          fee.String(),
		Status:       models.PaymentStatusConfirmed,
		CreatedAt:    createdAt,
	}, nil
}

// NextBlock first block the next poll will scan
func (w *PaymentWatcherService) NextBlock() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextBlock
}
