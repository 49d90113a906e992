package services

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"sendcash-backend/internal/config"
	"sendcash-backend/internal/models"
	"sendcash-backend/internal/utils"

	"github.com/shopspring/decimal"
)

// unknown tokens are rendered as 18-decimal ERC20s
const defaultTokenDecimals = 18

// PaymentEvent the formatter's input: a payment as seen on chain or in the store
type PaymentEvent struct {
	TxHash       string
	From         string
	To           string
	FromUsername string // optional
	ToUsername   string // optional
	Token        string
	Amount       *big.Int
	Fee          *big.Int
}

// EventFromPayment converts a stored payment into a formatter event
func EventFromPayment(p *models.Payment) (PaymentEvent, error) {
	amount, err := p.AmountInt()
	if err != nil {
		return PaymentEvent{}, err
	}
	fee, err := p.FeeInt()
	if err != nil {
		return PaymentEvent{}, err
	}
	ev := PaymentEvent{
		TxHash: p.TxHash,
		From:   p.FromAddress,
		To:     p.ToAddress,
		Token:  p.TokenAddress,
		Amount: amount,
		Fee:    fee,
	}
	if p.FromUsername != nil {
		ev.FromUsername = *p.FromUsername
	}
	if p.ToUsername != nil {
		ev.ToUsername = *p.ToUsername
	}
	return ev, nil
}

// NotificationFormatter renders payment events into chat messages.
// Output depends only on the input and the static token table.
type NotificationFormatter struct {
	tokens        *config.TokenTable
	explorerTxURL string
}

// NewNotificationFormatter explorerTxURL is a printf template with one %s
func NewNotificationFormatter(tokens *config.TokenTable, explorerTxURL string) *NotificationFormatter {
	return &NotificationFormatter{tokens: tokens, explorerTxURL: explorerTxURL}
}

// NetAmount amount minus fee in the token's smallest unit
func NetAmount(amount, fee *big.Int) (*big.Int, error) {
	if amount == nil {
		return nil, validationError("amount is required")
	}
	if fee == nil {
		fee = new(big.Int)
	}
	if amount.Sign() < 0 || fee.Sign() < 0 {
		return nil, validationError("amount and fee must not be negative")
	}
	net := new(big.Int).Sub(amount, fee)
	if net.Sign() < 0 {
		return nil, validationError("fee %s exceeds amount %s", fee, amount)
	}
	return net, nil
}

// FormatAmount renders raw units as an exact decimal string with the token symbol
func (f *NotificationFormatter) FormatAmount(raw *big.Int, token string) string {
	symbol, decimals := f.token(token)
	return decimal.NewFromBigInt(raw, -int32(decimals)).String() + " " + symbol
}

// Format receipt notification for the receiver
func (f *NotificationFormatter) Format(ev PaymentEvent) (string, error) {
	net, err := NetAmount(ev.Amount, ev.Fee)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💸 You received %s from %s", f.FormatAmount(net, ev.Token), displayName(ev.FromUsername, ev.From))
	if ev.Fee != nil && ev.Fee.Sign() > 0 {
		fmt.Fprintf(&b, "\nFee: %s", f.FormatAmount(ev.Fee, ev.Token))
	}
	fmt.Fprintf(&b, "\n\n🔗 View transaction: %s", f.ExplorerLink(ev.TxHash))
	return b.String(), nil
}

// FormatPendingReminder reminder for the sender of a payment stuck in pending
func (f *NotificationFormatter) FormatPendingReminder(ev PaymentEvent, age time.Duration) (string, error) {
	if ev.Amount == nil {
		return "", validationError("amount is required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⏳ Your payment of %s to %s is still pending after %s.",
		f.FormatAmount(ev.Amount, ev.Token), displayName(ev.ToUsername, ev.To), humanizeAge(age))
	b.WriteString("\nIf it does not confirm soon, check the transaction and try again.")
	fmt.Fprintf(&b, "\n\n🔗 View transaction: %s", f.ExplorerLink(ev.TxHash))
	return b.String(), nil
}

// ExplorerLink block explorer URL for a transaction
func (f *NotificationFormatter) ExplorerLink(txHash string) string {
	return fmt.Sprintf(f.explorerTxURL, txHash)
}

func (f *NotificationFormatter) token(address string) (string, uint8) {
	if f.tokens != nil {
		if info, ok := f.tokens.Lookup(address); ok {
			return info.Symbol, info.Decimals
		}
	}
	return utils.ShortAddress(address), defaultTokenDecimals
}

func displayName(username, address string) string {
	if username != "" {
		return "@" + utils.NormalizeUsername(username)
	}
	return utils.ShortAddress(address)
}

func humanizeAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%d min", int(age.Minutes()))
	default:
		return fmt.Sprintf("%dh %dmin", int(age.Hours()), int(age.Minutes())%60)
	}
}

// FormatHistoryLine one-line summary of a payment from the viewer's side
func (f *NotificationFormatter) FormatHistoryLine(p models.DirectedPayment) string {
	amount, err := p.AmountInt()
	if err != nil {
		amount = new(big.Int)
	}
	when := time.Unix(p.CreatedAt, 0).UTC().Format("2006-01-02 15:04")
	if p.Direction == models.DirectionSent {
		return fmt.Sprintf("↗️ %s sent %s to %s [%s]", when, f.FormatAmount(amount, p.TokenAddress),
			displayName(deref(p.ToUsername), p.ToAddress), p.Status)
	}
	return fmt.Sprintf("↘️ %s received %s from %s [%s]", when, f.FormatAmount(amount, p.TokenAddress),
		displayName(deref(p.FromUsername), p.FromAddress), p.Status)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
