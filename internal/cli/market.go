package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"tradedesk/internal/models"
	"tradedesk/pkg/utils"
)

// addMarketCommands adds market data, watchlist and health commands.
func addMarketCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newMarketCmd(app))
	rootCmd.AddCommand(newWatchlistCmd(app))
	rootCmd.AddCommand(newHealthCmd(app))
}

func newMarketCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Market data",
		Long:  "Query the market data service: quotes, provider health and the response cache.",
	}
	cmd.AddCommand(newQuotesCmd(app))
	cmd.AddCommand(newMarketHealthCmd(app))
	cmd.AddCommand(newCacheCmd(app))
	cmd.AddCommand(newInstrumentsCmd(app))
	return cmd
}

func newQuotesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quotes [symbol...]",
		Short: "Show market records",
		Long: `Show normalized market records.

With no symbols, shows the traditional assets followed by the configured
crypto symbols. The SOURCE column tells live data from cached and
synthetic records.`,
		Example: `  tradedesk market quotes
  tradedesk market quotes BTC ETH`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			symbols := make([]string, 0, len(args))
			for _, a := range args {
				symbols = append(symbols, strings.ToUpper(a))
			}

			data, err := app.Client(cmd).Market(ctx, symbols)
			if err != nil {
				output.Error("Failed to get market data: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(data)
			}

			table := NewTable(output, "SYMBOL", "NAME", "PRICE", "24H", "VOLUME", "MCAP", "SOURCE")
			for _, d := range data {
				table.AddRow(
					d.Symbol,
					TruncateString(d.Name, 20),
					utils.FormatPrice(d.Price),
					output.Percent(d.ChangePercent24h),
					utils.FormatCompact(d.Volume24h),
					utils.FormatCompact(d.MarketCap),
					sourceLabel(output, d.Source),
				)
			}
			table.Render()
			return nil
		},
	}
}

func sourceLabel(output *Output, src models.DataSource) string {
	switch src {
	case models.SourceLive:
		return output.Green(string(src))
	case models.SourceMock:
		return output.Yellow(string(src))
	default:
		return output.DimText(string(src))
	}
}

func newMarketHealthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the market data provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			h, err := app.Client(cmd).MarketHealth(ctx)
			if err != nil {
				output.Error("Health check failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(h)
			}
			output.Printf("Provider: %s (%s)\n", output.Status(h.Status), FormatDuration(h.Latency))
			return nil
		},
	}
}

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Show or clear the market data cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			client := app.Client(cmd)
			clearFirst, _ := cmd.Flags().GetBool("clear")
			if clearFirst {
				if err := client.ClearCache(ctx); err != nil {
					output.Error("Failed to clear cache: %v", err)
					return err
				}
			}

			stats, err := client.CacheStats(ctx)
			if err != nil {
				output.Error("Failed to get cache stats: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(stats)
			}
			if clearFirst {
				output.Success("✓ Cache cleared")
			}
			output.Printf("Entries: %d\n", stats.Size)
			for _, k := range stats.Keys {
				output.Printf("  %s\n", k)
			}
			if stats.Size > 0 {
				layout := app.Config.UI.DateFormat + " " + app.Config.UI.TimeFormat
				output.Dim("Oldest entry: %s", FormatTime(stats.OldestEntry, layout))
			}
			return nil
		},
	}
	cmd.Flags().Bool("clear", false, "Clear the cache first")
	return cmd
}

func newInstrumentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments",
		Short: "Show the poller's instrument prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			snap, err := app.Client(cmd).Instruments(ctx)
			if err != nil {
				output.Error("Failed to get instruments: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(snap)
			}

			table := NewTable(output, "SYMBOL", "NAME", "KIND", "PRICE", "CHANGE")
			for _, list := range [][]models.Instrument{snap.Stocks, snap.Crypto} {
				for _, i := range list {
					table.AddRow(
						i.Symbol,
						TruncateString(i.Name, 20),
						string(i.Kind),
						utils.FormatPrice(i.Price),
						FormatChange(i.Change, i.ChangePercent),
					)
				}
			}
			table.Render()
			return nil
		},
	}
}

func newWatchlistCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Show and edit the watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			items, err := app.Client(cmd).Watchlist(ctx)
			return renderWatchlist(NewOutput(cmd), items, err)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <symbol>",
		Short: "Add a symbol to the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			items, err := app.Client(cmd).AddToWatchlist(ctx, strings.ToUpper(args[0]))
			return renderWatchlist(NewOutput(cmd), items, err)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <symbol>",
		Short: "Remove a symbol from the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			items, err := app.Client(cmd).RemoveFromWatchlist(ctx, strings.ToUpper(args[0]))
			return renderWatchlist(NewOutput(cmd), items, err)
		},
	})

	return cmd
}

func renderWatchlist(output *Output, items []models.WatchlistItem, err error) error {
	if err != nil {
		output.Error("Watchlist: %v", err)
		return err
	}
	if output.IsJSON() {
		return output.JSON(items)
	}
	if len(items) == 0 {
		output.Dim("Watchlist is empty")
		return nil
	}
	table := NewTable(output, "SYMBOL", "NAME", "PRICE", "CHANGE")
	for _, w := range items {
		table.AddRow(w.Symbol, TruncateString(w.Name, 20), utils.FormatPrice(w.Price), output.Percent(w.ChangePercent))
	}
	table.Render()
	return nil
}

func newHealthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show desk health",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			report, err := app.Client(cmd).Health(ctx)
			if err != nil {
				output.Error("Health check failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(report)
			}

			output.Printf("Status: %s\n", output.Status(string(report.Status)))
			if len(report.Components) == 0 {
				return nil
			}
			table := NewTable(output, "COMPONENT", "STATUS", "LATENCY", "MESSAGE")
			for _, c := range report.Components {
				table.AddRow(c.Name, output.Status(string(c.Status)), FormatDuration(c.Latency), c.Message)
			}
			table.Render()
			return nil
		},
	}
}
