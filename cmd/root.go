package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
	"rblxcloud/utils"
)

var (
	apiKey       string
	configPath   string
	proxyURL     string
	rate         string
	retries      int
	outputFormat string
	debug        bool
	quiet        bool
	logLevel     string
	logFile      string
	config       *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "rblxcloud",
	Short:   "Command line client for the Roblox Open Cloud APIs",
	Version: "v1.0.0",
	Long: `rblxcloud talks to Roblox Open Cloud: data stores, memory stores,
messaging, experiences, places, assets, users, groups, OAuth2 and webhooks.

Examples:
  rblxcloud datastore get 1234 PlayerData user_1
  rblxcloud ordered list 1234 Leaderboard --desc --limit 10
  rblxcloud place upload 1234 5678 game.rbxl --publish
  rblxcloud asset upload icon.png --type decal --name Icon --user 156
  rblxcloud webhook serve --addr :8080

Environment Variables:
  RBLXCLOUD_API_KEY          Open Cloud API key
  RBLXCLOUD_CONFIG           Path to an HCL configuration file
  RBLXCLOUD_PROXY            Proxy URL
  RBLXCLOUD_RATE             Requests per second cap
  RBLXCLOUD_OUTPUT           Output format (json, yaml)
  RBLXCLOUD_WEBHOOK_SECRET   Secret used to verify webhook signatures`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(cmd); err != nil {
			return fmt.Errorf("configuration error: %v", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}

		internal.LogDebug("Configuration loaded: base_url=%s, timeout=%d, retries=%d, rate=%g, output=%s",
			config.BaseURL, config.Timeout, config.MaxRetries, config.RequestsPerSecond, config.OutputFormat)
		return nil
	},
}

// loadConfiguration layers defaults, the config file, RBLXCLOUD_* variables
// and finally any flags given on the command line
func loadConfiguration(cmd *cobra.Command) error {
	config = internal.DefaultConfig()

	path := configPath
	if path == "" {
		path = os.Getenv(internal.EnvPrefix + "CONFIG")
	}
	if err := config.LoadFile(path); err != nil {
		return err
	}
	if err := config.LoadFromEnv(); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("api-key") {
		config.APIKey = apiKey
	}
	if flags.Changed("proxy") {
		config.ProxyURL = proxyURL
	}
	if flags.Changed("rate") {
		perSecond, err := utils.ParseRate(rate)
		if err != nil {
			return internal.InvalidRateError(rate, err)
		}
		config.RequestsPerSecond = perSecond
	}
	if flags.Changed("retries") {
		config.MaxRetries = retries
	}
	if flags.Changed("output") {
		config.OutputFormat = outputFormat
	}
	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if quiet {
		config.QuietMode = true
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	return config.ValidateConfig()
}

func clientOptions() []opencloud.Option {
	opts := []opencloud.Option{
		opencloud.WithBaseURL(config.BaseURL),
		opencloud.WithTimeout(time.Duration(config.Timeout) * time.Second),
		opencloud.WithRetry(config.MaxRetries, time.Duration(config.RetryIntervalMs)*time.Millisecond),
		opencloud.WithRateLimit(config.RequestsPerSecond),
		opencloud.WithLogger(internal.GetLogger().Logger()),
	}
	if config.ProxyURL != "" {
		opts = append(opts, opencloud.WithProxy(config.ProxyURL))
	}
	return opts
}

// newClient builds an API key client from the loaded configuration
func newClient() (*opencloud.Client, error) {
	if config.APIKey == "" {
		validationErr := internal.MissingCredentialError("api_key", "--api-key, RBLXCLOUD_API_KEY")
		internal.LogValidationError(validationErr)
		return nil, validationErr
	}
	return opencloud.NewClient(config.APIKey, clientOptions()...)
}

// parseID reads a numeric Roblox identifier argument
func parseID(field, value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, internal.InvalidIDError(field, value)
	}
	return id, nil
}

func parseIDs(field string, values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := parseID(field, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// status prints a progress message to stderr unless --quiet is set
func status(format string, args ...interface{}) {
	if config != nil && config.QuietMode {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			internal.LogInfo("Received signal %v, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func init() {
	config = internal.DefaultConfig()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&apiKey, "api-key", "", "Open Cloud API key (env: RBLXCLOUD_API_KEY)")
	flags.StringVar(&configPath, "config", "", "HCL configuration file (env: RBLXCLOUD_CONFIG)")
	flags.StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: RBLXCLOUD_PROXY)")
	flags.StringVar(&rate, "rate", "", "Request rate cap such as 10, 10/s or 300/m (env: RBLXCLOUD_RATE)")
	flags.IntVar(&retries, "retries", config.MaxRetries, "Retries for rate limited and server error responses (env: RBLXCLOUD_MAX_RETRIES)")
	flags.StringVarP(&outputFormat, "output", "o", config.OutputFormat, "Output format: json or yaml (env: RBLXCLOUD_OUTPUT)")
	flags.BoolVarP(&debug, "debug", "d", false, "Enable debug logging (env: RBLXCLOUD_DEBUG)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output (env: RBLXCLOUD_QUIET)")
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: RBLXCLOUD_LOG_LEVEL)")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: RBLXCLOUD_LOG_FILE)")

	rootCmd.AddCommand(
		keyCmd,
		datastoreCmd,
		orderedCmd,
		memorystoreCmd,
		messagingCmd,
		experienceCmd,
		placeCmd,
		assetCmd,
		toolboxCmd,
		userCmd,
		groupCmd,
		oauth2Cmd,
		webhookCmd,
	)
}

// Execute runs the root command until it finishes or a signal arrives
func Execute() error {
	ctx, cancel := signalContext()
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

var fileOps = utils.NewFileOperations()
