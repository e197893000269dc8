package dispatch

import (
	"fmt"
	"strings"

	"wallet-watch/agent/internal/models"
	"wallet-watch/shared/notifications"
	"wallet-watch/shared/types"
)

var esc = notifications.EscapeMarkdownV2

func header(c models.Classification) string {
	switch c {
	case models.ClassWhale:
		return "🐋 *Whale Alert*"
	case models.ClassExchangeFlow:
		return "🏦 *Exchange Flow*"
	default:
		return "💸 *Wallet Activity*"
	}
}

func directionLabel(d models.Direction) string {
	switch d {
	case models.DirectionSent:
		return "📤 Sent"
	case models.DirectionReceived:
		return "📥 Received"
	case models.DirectionSelf:
		return "🔁 Self transfer"
	default:
		return "⚙️ Contract interaction"
	}
}

// FormatTelegram renders an alert as a MarkdownV2 message.
func FormatTelegram(a *models.Alert) string {
	var b strings.Builder
	b.WriteString(header(a.Classification))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "*Wallet:* `%s`\n", types.ShortAddress(a.WalletAddress))
	fmt.Fprintf(&b, "*Chain:* %s\n", esc(a.Chain.String()))
	fmt.Fprintf(&b, "*Type:* %s\n", esc(directionLabel(a.Direction)))

	symbol := a.TokenSymbol
	if symbol == "" {
		symbol = types.ShortAddress(a.TokenAddress)
	}
	amount := strings.TrimSpace(formatNumber(a.Amount.Round(4).String()) + " " + symbol)
	fmt.Fprintf(&b, "*Amount:* %s\n", esc(amount))
	if a.USDValue.Valid {
		fmt.Fprintf(&b, "*Value:* %s\n", esc("$"+formatNumber(a.USDValue.Decimal.StringFixed(2))))
	}
	if a.FromAddress != "" {
		fmt.Fprintf(&b, "*From:* `%s`\n", types.ShortAddress(a.FromAddress))
	}
	if a.ToAddress != "" {
		fmt.Fprintf(&b, "*To:* `%s`\n", types.ShortAddress(a.ToAddress))
	}
	fmt.Fprintf(&b, "\n[View transaction](%s)", linkEscape(a.Chain.ExplorerTxURL(a.TxHash)))
	return b.String()
}

// formatNumber inserts thousands separators into a fixed-point string.
func formatNumber(fixed string) string {
	intPart, frac := fixed, ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, frac = fixed[:i], fixed[i:]
	}
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}

func linkEscape(u string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(u)
}
