package alert

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/raykavin/pricewatch/pkg/core"
)

var (
	printer = message.NewPrinter(language.English)

	markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
)

// FormatUSD renders a USD amount with thousands separators. Sub-cent prices
// keep enough digits to stay readable.
func FormatUSD(value float64) string {
	if value != 0 && math.Abs(value) < 0.01 {
		return printer.Sprintf("$%.8f", value)
	}
	return printer.Sprintf("$%.2f", value)
}

// EscapeMarkdown escapes the characters with a meaning in Telegram legacy
// Markdown
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// Message renders the Markdown notification sent when a watch fires
func Message(trigger core.Trigger) string {
	var direction string
	switch trigger.Direction() {
	case core.DirectionAbove:
		direction = "📈 above"
	case core.DirectionBelow:
		direction = "📉 below"
	default:
		direction = "🎯 exactly at"
	}

	var sb strings.Builder
	sb.WriteString("🎯 *PRICE ALERT!*\n\n")
	sb.WriteString(printer.Sprintf("*%s* has reached your target!\n\n", EscapeMarkdown(strings.ToUpper(trigger.Watch.AssetID))))
	sb.WriteString(printer.Sprintf("*Current Price:* %s\n", FormatUSD(trigger.Price)))
	sb.WriteString(printer.Sprintf("*Target Price:* %s\n", FormatUSD(trigger.Watch.TargetPrice)))
	sb.WriteString(printer.Sprintf("*Change:* %s by %.1f%%\n\n", direction, math.Abs(trigger.Difference())))
	sb.WriteString("🚀 *Time to take action!*")

	return sb.String()
}
