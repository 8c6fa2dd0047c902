package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tradedesk/internal/server"
)

func addServeCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the desk and its API",
		Long: `Run the paper trading engine, market data service, price poller,
simulators, journal and notifier, and serve them over HTTP.

Events from every service are streamed on /ws. Stop with Ctrl+C.`,
		Example: `  tradedesk serve
  tradedesk serve --addr :9090 --policy synthetic`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *app.Config
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if policy, _ := cmd.Flags().GetString("policy"); policy != "" {
				cfg.MarketData.Policy = policy
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := NewServices(&cfg, nil, app.Logger)
			if err != nil {
				return err
			}
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			output := NewOutput(cmd)
			if !output.IsJSON() {
				output.Success("✓ Desk running on %s", cfg.Server.Addr)
				output.Info("Events: ws://%s/ws", displayAddr(cfg.Server.Addr))
			}

			return server.New(cfg.Server, svc.Deps()).Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().String("policy", "", "Market data policy: auto, live or synthetic")

	return cmd
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
