package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/types"
)

const (
	// MaxMessageLength keeps replies under Telegram's 4096 character cap
	MaxMessageLength = 4000
	// activityLength is where the activity summary stops adding assets
	activityLength = 3500
	// compactTrades is how many trades the short history variant lists
	compactTrades = 10

	tradeTimeLayout = "2006-01-02 15:04:05"
)

// WelcomeText greets the user on /start
const WelcomeText = "👋 Welcome! Choose a command below:"

// KeyboardCommands are offered on the reply keyboard, one per row
var KeyboardCommands = []string{"/wallet", "/total", "/open_order", "/show_last_trades", "/trades"}

// FormatError renders a failed command
func FormatError(err error) string {
	return fmt.Sprintf("⚠️ Error: %v", err)
}

func usd(d decimal.Decimal, places int32) string {
	return "$" + d.StringFixed(places)
}

// signed renders d with an explicit sign for non-negative values
func signed(d decimal.Decimal, places int32) string {
	r := d.Round(places)
	if r.IsNegative() {
		return r.StringFixed(places)
	}
	return "+" + r.StringFixed(places)
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}

// ChunkLines joins lines with newlines into messages of at most max characters.
// Lines longer than max are split.
func ChunkLines(lines []string, max int) []string {
	var chunks []string
	var current strings.Builder
	size := 0

	flush := func() {
		if size > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range lines {
		for runes(line) > max-1 {
			flush()
			cut := []rune(line)
			chunks = append(chunks, string(cut[:max-1])+"\n")
			line = string(cut[max-1:])
		}
		if size+runes(line)+1 > max {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
		size += runes(line) + 1
	}
	flush()
	return chunks
}

// FormatWallet lists held assets with cost basis and current value
func FormatWallet(positions []models.AssetPosition) []string {
	if len(positions) == 0 {
		return []string{"Your wallet is empty."}
	}

	lines := []string{"💰 Your Wallet:", ""}
	for _, p := range positions {
		lines = append(lines,
			p.Asset+":",
			"  Amount: "+p.Quantity.StringFixed(6),
			"  Avg. Purchase Price: "+usd(p.AvgCost, 4),
			"  Current Value: "+usd(p.MarketValue, 2),
			fmt.Sprintf("  Current %s Value: %s", p.Asset, usd(p.Price, 4)),
			"",
		)
	}
	return ChunkLines(lines, MaxMessageLength)
}

// FormatTotal renders the portfolio breakdown with each asset's share
func FormatTotal(list *types.TotalList) string {
	if list == nil || len(list.Items) == 0 {
		return "Your wallet is empty."
	}

	var b strings.Builder
	b.WriteString("💵 Portfolio Summary\n")
	fmt.Fprintf(&b, "Total Value: %s\n\n", usd(list.Total(), 2))
	for _, item := range list.Items {
		fmt.Fprintf(&b, "%s: %s (%s%%)\n", item.Symbol, usd(item.ValueUSD, 2), item.Percentage.StringFixed(1))
	}
	return b.String()
}

// FormatOpenOrders lists resting orders
func FormatOpenOrders(orders []models.OpenOrder) []string {
	if len(orders) == 0 {
		return []string{"You have no open orders."}
	}

	lines := []string{"📋 Your Open Orders:", ""}
	for _, o := range orders {
		lines = append(lines,
			"Symbol: "+o.Symbol,
			"Side: "+string(o.Side),
			"Price: "+o.Price.String(),
			"Quantity: "+o.Quantity.String(),
			"Status: "+o.Status,
			"--------------------",
		)
	}
	return ChunkLines(lines, MaxMessageLength)
}

func sideLabel(t models.Trade) string {
	if t.IsBuy() {
		return "🛒 BUY"
	}
	return "💰 SELL"
}

func summaryLines(s *models.TradeSummary) []string {
	lines := []string{
		fmt.Sprintf("📈 Total Trades: %d", s.TotalTrades),
		fmt.Sprintf("🛒 Buys: %d | 💰 Sells: %d", s.BuyTrades, s.SellTrades),
		"📦 Total Bought: " + s.BoughtQty.StringFixed(6),
		"📤 Total Sold: " + s.SoldQty.StringFixed(6),
		"📊 Net Position: " + s.NetPosition.StringFixed(6),
	}
	if s.AvgBuyPrice.IsPositive() {
		lines = append(lines, "🛒 Avg Buy Price: "+usd(s.AvgBuyPrice, 4))
	}
	if s.AvgSellPrice.IsPositive() {
		lines = append(lines, "💰 Avg Sell Price: "+usd(s.AvgSellPrice, 4))
	}
	return lines
}

// FormatTradeHistory renders one asset's history with its most recent trades.
// When the detailed form is too long it is replaced by a summary message and
// a compact list of the newest trades.
func FormatTradeHistory(symbol string, s *models.TradeSummary, recent int) []string {
	if s == nil || s.TotalTrades == 0 {
		return []string{"No trades found for " + symbol}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s Trade History\n\n", symbol)
	b.WriteString(strings.Join(summaryLines(s), "\n"))
	b.WriteString("\n\n" + strings.Repeat("=", 30) + "\n\n")

	shown := s.Recent(recent)
	for i, t := range shown {
		fmt.Fprintf(&b, "%2d. %s\n", i+1, sideLabel(t))
		fmt.Fprintf(&b, "    📅 %s\n", t.Time().Format(tradeTimeLayout))
		fmt.Fprintf(&b, "    📦 Qty: %s\n", t.Quantity.StringFixed(6))
		fmt.Fprintf(&b, "    💵 Price: %s\n", usd(t.Price, 4))
		fmt.Fprintf(&b, "    💰 Value: %s\n", usd(t.Notional(), 2))
		fmt.Fprintf(&b, "    🔄 Pair: %s\n", t.Source)
		fmt.Fprintf(&b, "    🏷️ ID: %d\n\n", t.ID)
	}
	if more := len(s.Trades) - len(shown); more > 0 {
		fmt.Fprintf(&b, "... and %d more trades\n", more)
	}

	detailed := b.String()
	if runes(detailed) <= MaxMessageLength {
		return []string{detailed}
	}

	summary := fmt.Sprintf("📊 %s Trade Summary\n\n%s\n", symbol, strings.Join(summaryLines(s), "\n"))

	var compact strings.Builder
	fmt.Fprintf(&compact, "🕒 Recent Trades for %s:\n\n", symbol)
	for i, t := range s.Recent(compactTrades) {
		fmt.Fprintf(&compact, "%d. %s | %s | %s @ %s\n",
			i+1, sideLabel(t), t.Time().Format("01-02 15:04"), t.Quantity.StringFixed(4), usd(t.Price, 4))
	}
	return []string{summary, compact.String()}
}

// FormatActivity summarizes trading across held assets, stopping once the
// message grows past the activity length.
func FormatActivity(summaries []*models.TradeSummary) string {
	var b strings.Builder
	b.WriteString("📊 All Trading Activity Summary\n\n")

	count := 0
	for _, s := range summaries {
		count++
		fmt.Fprintf(&b, "%s:\n", s.Asset)
		fmt.Fprintf(&b, "  📈 Trades: %d (%dB/%dS)\n", s.TotalTrades, s.BuyTrades, s.SellTrades)
		fmt.Fprintf(&b, "  📊 Net: %s\n", signed(s.NetPosition, 4))
		if s.AvgBuyPrice.IsPositive() {
			fmt.Fprintf(&b, "  🛒 Avg Buy: %s\n", usd(s.AvgBuyPrice, 4))
		}
		if s.AvgSellPrice.IsPositive() {
			fmt.Fprintf(&b, "  💰 Avg Sell: %s\n", usd(s.AvgSellPrice, 4))
		}
		b.WriteString("\n")

		if runes(b.String()) > activityLength {
			b.WriteString("... and more symbols\n")
			break
		}
	}

	if count == 0 {
		b.WriteString("No trading activity found.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "\n📊 Total symbols with trades: %d\n", count)
	b.WriteString("\n💡 Use /trades SYMBOL for detailed history")
	return b.String()
}

// FormatPnL renders a profit and loss report
func FormatPnL(r *service.PnLReport) string {
	if r == nil || r.Summary == nil || r.Summary.TotalTrades == 0 {
		symbol := ""
		if r != nil {
			symbol = r.Symbol
		}
		return "No trades found for " + symbol
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s P&L Analysis\n\n", r.Symbol)
	fmt.Fprintf(&b, "💰 Total Buy Cost: %s\n", usd(r.BuyCost, 2))
	fmt.Fprintf(&b, "💵 Total Sell Revenue: %s\n", usd(r.SellRevenue, 2))
	fmt.Fprintf(&b, "📈 Realized P&L: $%s\n", signed(r.RealizedPnL, 2))

	if !r.RealizedPnL.IsZero() {
		emoji := "📈"
		if r.RealizedPnL.IsNegative() {
			emoji = "📉"
		}
		fmt.Fprintf(&b, "%s P&L Percentage: %s%%\n", emoji, signed(r.RealizedPct, 2))
	}

	net := r.Summary.NetPosition
	switch {
	case r.HasCurrentValue:
		b.WriteString("\n🏦 Current Position:\n")
		fmt.Fprintf(&b, "📦 Quantity: %s\n", net.StringFixed(6))
		fmt.Fprintf(&b, "💰 Current Value: %s\n", usd(r.CurrentValue, 2))
		fmt.Fprintf(&b, "📊 Unrealized P&L: $%s\n", signed(r.UnrealizedPnL, 2))
		fmt.Fprintf(&b, "\n🎯 Total P&L: $%s", signed(r.TotalPnL, 2))
	case net.IsPositive():
		fmt.Fprintf(&b, "\n📦 Remaining Position: %s", net.StringFixed(6))
	}
	return b.String()
}

// watchLabel lists the watched base assets, e.g. "ETH, AVAX"
func watchLabel(watchList []string, quote string) string {
	bases := make([]string, 0, len(watchList))
	for _, pair := range watchList {
		base := strings.TrimSuffix(pair, quote)
		if base == "" {
			base = pair
		}
		bases = append(bases, base)
	}
	return strings.Join(bases, ", ")
}

func tradeDate(t models.Trade) string {
	return t.Time().Format(tradeTimeLayout) + " UTC"
}

// FormatLastTrades lists the newest trades across the watch list (Markdown)
func FormatLastTrades(trades []models.Trade, watchList []string, quote string, limit int) []string {
	label := watchLabel(watchList, quote)
	if len(trades) == 0 {
		return []string{fmt.Sprintf("You have no %s trades.", label)}
	}

	lines := []string{fmt.Sprintf("*Last %d orders (%s):*", limit, label)}
	for _, t := range trades {
		lines = append(lines, fmt.Sprintf("- %s %s %s @ %s on %s", t.Side, t.Quantity, t.Pair, t.Price, tradeDate(t)))
	}
	return ChunkLines(lines, MaxMessageLength)
}

// FormatSideTrades lists every fill of one side (Markdown)
func FormatSideTrades(side models.Side, trades []models.Trade) []string {
	if len(trades) == 0 {
		return []string{fmt.Sprintf("No %s orders found.", strings.ToLower(string(side)))}
	}

	lines := []string{fmt.Sprintf("*All %s orders:*", side)}
	for _, t := range trades {
		lines = append(lines, fmt.Sprintf("- %s: %s @ %s on %s", t.Pair, t.Quantity, t.Price, tradeDate(t)))
	}
	return ChunkLines(lines, MaxMessageLength)
}
