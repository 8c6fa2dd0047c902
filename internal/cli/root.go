package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tradedesk/internal/config"
	"tradedesk/internal/logging"
	"tradedesk/internal/security"
	"tradedesk/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
}

// Client returns an API client for the --server flag.
func (a *App) Client(cmd *cobra.Command) *Client {
	addr, _ := cmd.Flags().GetString("server")
	return NewClient(addr, nil)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: logging.NewLogger()}

	rootCmd := &cobra.Command{
		Use:   "tradedesk",
		Short: "Simulated trading desk",
		Long: `tradedesk runs a simulated brokerage: a paper trading engine, a
rate-limited market data service, a price poller and companion simulators,
all exposed over an HTTP API with a WebSocket event stream.

Start the desk with 'tradedesk serve', then drive it from another shell
with 'tradedesk order', 'tradedesk positions' or 'tradedesk market'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.ConfigDir = dir
			app.Logger = logging.NewLoggerWithConfig(cfg.Logging)

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/tradedesk)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("server", defaultServerURL, "desk API address")

	addCoreCommands(rootCmd, app)
	addTradingCommands(rootCmd, app)
	addMarketCommands(rootCmd, app)
	addServeCommand(rootCmd, app)

	return rootCmd
}

func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("tradedesk v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the desk configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.ConfigDir})
			}
			output.Println(app.ConfigDir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Account")
	output.Printf("  Initial Capital:  %s\n", utils.FormatCurrency(cfg.Account.InitialCapital))
	output.Printf("  Buying Power:     %s\n", utils.FormatCurrency(cfg.Account.BuyingPower))
	output.Printf("  Seed History:     %v\n", cfg.Account.SeedHistory)
	output.Println()

	output.Bold("Trading")
	output.Printf("  Price Source:     %s\n", cfg.Trading.PriceSource)
	output.Printf("  Fill Probability: %.0f%%\n", cfg.Trading.FillProbability*100)
	output.Printf("  Commission:       %.2f%% (min %s, max %s)\n",
		cfg.Trading.CommissionRate*100, utils.FormatCurrency(cfg.Trading.FeeFloor), utils.FormatCurrency(cfg.Trading.FeeCap))
	output.Printf("  Check Interval:   %s\n", cfg.Trading.CheckInterval)
	output.Println()

	output.Bold("Market Data")
	output.Printf("  Policy:           %s\n", cfg.MarketData.Policy)
	output.Printf("  Provider:         %s\n", cfg.MarketData.BaseURL)
	output.Printf("  Cache TTL:        %s\n", cfg.MarketData.CacheTTL)
	output.Printf("  Min Interval:     %s\n", cfg.MarketData.MinInterval)
	output.Printf("  Poller:           %v (%s)\n", cfg.Poller.Enabled, cfg.Poller.Interval)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:          %s\n", cfg.Server.Addr)
	output.Printf("  Journal:          %v (%s)\n", cfg.Journal.Enabled, cfg.Journal.Path)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:          %v %s\n", cfg.Notifications.Webhook.Enabled, security.MaskURL(cfg.Notifications.Webhook.URL))
}
