package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradedesk/internal/models"
	"tradedesk/pkg/utils"
)

const requestTimeout = 30 * time.Second

// addTradingCommands adds order and account commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newOrderCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newAccountCmd(app))
	rootCmd.AddCommand(newStatsCmd(app))
}

func newOrderCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place, cancel and list orders",
	}
	cmd.AddCommand(newOrderPlaceCmd(app))
	cmd.AddCommand(newOrderCancelCmd(app))
	cmd.AddCommand(newOrderListCmd(app))
	return cmd
}

func newOrderPlaceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place <buy|sell> <symbol> <quantity>",
		Short: "Place an order",
		Long: `Place an order with the paper trading engine.

Market orders execute after a short delay. Limit, stop and stop-limit
orders rest until their trigger condition holds.`,
		Example: `  tradedesk order place buy AAPL 10
  tradedesk order place sell BTC 0.5 --type limit --limit 45000
  tradedesk order place buy TSLA 3 --type stop --stop 250 --tif DAY --wait 10s`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			side := models.OrderSide(strings.ToLower(args[0]))
			if !side.Valid() {
				output.Error("Invalid side: %s", args[0])
				return fmt.Errorf("side must be buy or sell")
			}
			qty, err := strconv.ParseFloat(args[2], 64)
			if err != nil || qty <= 0 {
				output.Error("Invalid quantity: %s", args[2])
				return fmt.Errorf("invalid quantity")
			}

			orderType, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetFloat64("limit")
			stop, _ := cmd.Flags().GetFloat64("stop")
			tif, _ := cmd.Flags().GetString("tif")
			name, _ := cmd.Flags().GetString("name")
			wait, _ := cmd.Flags().GetDuration("wait")

			req := models.OrderRequest{
				Symbol:      strings.ToUpper(args[1]),
				Name:        name,
				Type:        models.OrderType(strings.ToLower(orderType)),
				Side:        side,
				Quantity:    qty,
				LimitPrice:  limit,
				StopPrice:   stop,
				TimeInForce: models.TimeInForce(strings.ToUpper(tif)),
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout+wait)
			defer cancel()

			client := app.Client(cmd)
			result, err := client.PlaceOrder(ctx, req)
			if err != nil {
				output.Error("Order failed: %v", err)
				return err
			}
			if !result.Success {
				if output.IsJSON() {
					_ = output.JSON(result)
				} else {
					output.Error("✗ Order rejected: %s", result.Error)
				}
				return fmt.Errorf("order rejected: %s", result.Error)
			}

			var order *models.Order
			if wait > 0 {
				o, err := waitForOrder(ctx, client, result.OrderID, wait)
				if err != nil {
					output.Warning("Could not follow order: %v", err)
				} else {
					order = &o
				}
			}

			if output.IsJSON() {
				if order != nil {
					return output.JSON(order)
				}
				return output.JSON(result)
			}

			output.Success("✓ Order placed")
			output.Printf("  Order ID: %s\n", result.OrderID)
			output.Printf("  Side:     %s\n", output.Side(string(side)))
			output.Printf("  Symbol:   %s\n", req.Symbol)
			output.Printf("  Quantity: %s\n", utils.FormatQuantity(qty))
			if order != nil {
				output.Printf("  Status:   %s\n", output.Status(string(order.Status)))
				if order.Status == models.OrderStatusFilled {
					output.Printf("  Price:    %s\n", utils.FormatPrice(order.AverageFillPrice))
					output.Printf("  Fees:     %s\n", utils.FormatCurrency(order.Fees))
				}
			} else {
				output.Println()
				output.Dim("Use 'tradedesk order list' to check order status")
			}
			return nil
		},
	}

	cmd.Flags().String("type", string(models.OrderTypeMarket), "Order type (market, limit, stop, stop-limit)")
	cmd.Flags().Float64("limit", 0, "Limit price")
	cmd.Flags().Float64("stop", 0, "Stop price")
	cmd.Flags().String("tif", "", "Time in force (GTC, DAY, IOC, FOK)")
	cmd.Flags().String("name", "", "Instrument display name")
	cmd.Flags().Duration("wait", 0, "Wait up to this long for the order to leave pending")

	return cmd
}

// waitForOrder polls until the order is terminal or wait elapses, and
// returns the last state seen.
func waitForOrder(ctx context.Context, client *Client, id string, wait time.Duration) (models.Order, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		o, err := client.GetOrder(ctx, id)
		if err != nil {
			return models.Order{}, err
		}
		if o.Status.IsTerminal() || time.Now().After(deadline) {
			return o, nil
		}
		select {
		case <-ctx.Done():
			return o, nil
		case <-ticker.C:
		}
	}
}

func newOrderCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			result, err := app.Client(cmd).CancelOrder(ctx, args[0])
			if err != nil {
				output.Error("Cancel failed: %v", err)
				return err
			}
			if output.IsJSON() {
				if err := output.JSON(result); err != nil {
					return err
				}
			}
			if !result.Success {
				if !output.IsJSON() {
					output.Error("✗ %s", result.Error)
				}
				return fmt.Errorf("cancel failed: %s", result.Error)
			}
			if !output.IsJSON() {
				output.Success("✓ Order %s cancelled", args[0])
			}
			return nil
		},
	}
}

func newOrderListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			status, _ := cmd.Flags().GetString("status")
			orders, err := app.Client(cmd).ListOrders(ctx, status)
			if err != nil {
				output.Error("Failed to list orders: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(orders)
			}
			if len(orders) == 0 {
				output.Dim("No orders")
				return nil
			}

			timeFormat := app.Config.UI.TimeFormat
			table := NewTable(output, "ID", "TIME", "SIDE", "SYMBOL", "QTY", "TYPE", "STATUS", "PRICE")
			for _, o := range orders {
				price := "-"
				switch {
				case o.Status == models.OrderStatusFilled:
					price = utils.FormatPrice(o.AverageFillPrice)
				case o.LimitPrice > 0:
					price = utils.FormatPrice(o.LimitPrice)
				case o.StopPrice > 0:
					price = utils.FormatPrice(o.StopPrice)
				}
				table.AddRow(
					ShortID(o.ID),
					FormatTime(o.CreatedAt, timeFormat),
					output.Side(string(o.Side)),
					o.Symbol,
					utils.FormatQuantity(o.Quantity),
					string(o.Type),
					output.Status(string(o.Status)),
					price,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("status", "", "Filter by status (pending, filled, cancelled, expired)")
	return cmd
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List executed trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			symbol, _ := cmd.Flags().GetString("symbol")
			limit, _ := cmd.Flags().GetInt("limit")
			trades, err := app.Client(cmd).Trades(ctx, TradeQuery{Symbol: strings.ToUpper(symbol), Limit: limit})
			if err != nil {
				output.Error("Failed to list trades: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades")
				return nil
			}

			layout := app.Config.UI.DateFormat + " " + app.Config.UI.TimeFormat
			table := NewTable(output, "ID", "EXECUTED", "SIDE", "SYMBOL", "QTY", "PRICE", "VALUE", "FEES")
			for _, t := range trades {
				table.AddRow(
					ShortID(t.ID),
					FormatTime(t.ExecutedAt, layout),
					output.Side(string(t.Side)),
					t.Symbol,
					utils.FormatQuantity(t.Quantity),
					utils.FormatPrice(t.Price),
					utils.FormatCurrency(t.Value),
					utils.FormatCurrency(t.Fees),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("symbol", "", "Only trades of this symbol")
	cmd.Flags().Int("limit", 0, "Maximum number of trades")
	return cmd
}

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Show open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			positions, err := app.Client(cmd).Positions(ctx)
			if err != nil {
				output.Error("Failed to get positions: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Dim("No open positions")
				return nil
			}

			var total float64
			table := NewTable(output, "SYMBOL", "QTY", "AVG", "LAST", "VALUE", "P&L", "P&L %")
			for _, p := range positions {
				total += p.UnrealizedPL
				table.AddRow(
					p.Symbol,
					utils.FormatQuantity(p.Quantity),
					utils.FormatPrice(p.AveragePrice),
					utils.FormatPrice(p.CurrentPrice),
					utils.FormatCurrency(p.MarketValue),
					output.PnL(p.UnrealizedPL),
					output.Percent(p.UnrealizedPLPercent),
				)
			}
			table.Render()
			output.Println()
			output.Printf("Unrealized P&L: %s\n", output.PnL(total))
			return nil
		},
	}
}

func newAccountCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show the account ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			acct, err := app.Client(cmd).Account(ctx)
			if err != nil {
				output.Error("Failed to get account: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(acct)
			}

			output.Bold("Account")
			output.Printf("  Balance:          %s\n", utils.FormatCurrency(acct.Balance))
			output.Printf("  Available:        %s\n", utils.FormatCurrency(acct.AvailableBalance))
			output.Printf("  Total Equity:     %s\n", utils.FormatCurrency(acct.TotalEquity))
			output.Printf("  Buying Power:     %s\n", utils.FormatCurrency(acct.BuyingPower))
			output.Printf("  Day Trading BP:   %s\n", utils.FormatCurrency(acct.DayTradingBuyingPower))
			output.Printf("  Unrealized P&L:   %s\n", output.PnL(acct.UnrealizedPL))
			output.Printf("  Realized P&L:     %s\n", output.PnL(acct.RealizedPL))
			output.Printf("  Total Fees:       %s\n", utils.FormatCurrency(acct.TotalFees))
			return nil
		},
	}
}

func newStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show trading statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			stats, err := app.Client(cmd).Stats(ctx)
			if err != nil {
				output.Error("Failed to get stats: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(stats)
			}

			output.Bold("Trading Statistics")
			output.Printf("  Trades:        %d (%d won, %d lost)\n", stats.TotalTrades, stats.WinningTrades, stats.LosingTrades)
			output.Printf("  Win Rate:      %.1f%%\n", stats.WinRate)
			output.Printf("  Average Win:   %s\n", utils.FormatCurrency(stats.AverageWin))
			output.Printf("  Average Loss:  %s\n", utils.FormatCurrency(stats.AverageLoss))
			output.Printf("  Profit Factor: %.2f\n", stats.ProfitFactor)
			output.Printf("  Total Return:  %s (%s)\n", output.PnL(stats.TotalReturn), output.Percent(stats.TotalReturnPercent))
			output.Printf("  Max Drawdown:  %s\n", utils.FormatCurrency(stats.MaxDrawdown))
			output.Printf("  Sharpe Ratio:  %.2f\n", stats.SharpeRatio)
			return nil
		},
	}
}
