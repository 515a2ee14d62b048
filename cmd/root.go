package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"inferload/internal/banner"
	"inferload/internal/cli"
	"inferload/internal/config"
	"inferload/internal/mockllm"
	"inferload/internal/scenario"
	"inferload/internal/sink"
)

// version is stamped by the release build.
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "inferload",
	Short: "InferLoad - load testing for LLM inference endpoints",
	Long: `
InferLoad drives realistic load against OpenAI-compatible chat completion
endpoints: N concurrent simulated users with think time, MCP and agentic
prompt scenarios sized to the model's context window, retry with backoff,
and an independent health probe. Results land on the console, in a JSON
report and in the local run history.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		os.Exit(cli.Run(cfg))
	},
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig resolves the final run configuration (flags > env > file >
// defaults) and exits with the config code on any violation.
func loadConfig() config.TestConfig {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitConfig)
	}
	return cfg
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(mockllmCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./inferload.yaml, ./test_config.json or $HOME/.inferload.yaml)")

	f := rootCmd.Flags()
	f.StringP("endpoint", "e", "", "Base URL of the OpenAI-compatible endpoint")
	f.StringP("api-key", "k", "", "Bearer token for the endpoint")
	f.StringP("model", "m", "", "Model name to request")
	f.IntP("users", "u", 60, "Concurrent simulated users")
	f.IntP("duration", "d", 300, "Test duration in seconds")
	f.Int("max-context", 6000, "Model context window budget in tokens")
	f.Int("timeout", 60, "Per-request timeout in seconds")
	f.Int("max-retries", 2, "Retries per request for transient failures")
	f.Bool("verify-ssl", false, "Verify TLS certificates")
	f.Float64("mcp-ratio", 0.5, "Fraction of MCP-style scenarios (rest is agentic)")
	f.Int("rps", 0, "Global request rate cap, 0 disables")
	f.Int("grace", 30, "Shutdown grace in seconds for in-flight requests")
	f.String("engine", "std", "HTTP engine: std or fasthttp")
	f.Int64("seed", 0, "Deterministic scenario seed, 0 derives from time")
	f.String("scenarios", "", "YAML file with a custom scenario catalogue")
	f.String("metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
	f.StringP("out", "o", "", "Report file path (default load_test_results_<ts>.json)")
	f.String("history-dir", config.DefaultHistoryDir(), "Directory for the run history database")
	f.String("log-level", "info", "Log level: debug, info, warn, error")

	bind := map[string]string{
		"endpoint":     "endpoint",
		"api-key":      "api_key",
		"model":        "model_name",
		"users":        "concurrent_users",
		"duration":     "test_duration_seconds",
		"max-context":  "max_context_tokens",
		"timeout":      "request_timeout_seconds",
		"max-retries":  "max_retries",
		"verify-ssl":   "verify_ssl",
		"mcp-ratio":    "mcp_ratio",
		"rps":          "max_requests_per_second",
		"grace":        "shutdown_grace_seconds",
		"engine":       "http_engine",
		"seed":         "seed",
		"scenarios":    "scenario_file",
		"metrics-addr": "metrics_addr",
		"out":          "report_path",
		"history-dir":  "history_dir",
		"log-level":    "log_level",
	}
	for flag, key := range bind {
		if err := viper.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("inferload")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("INFERLOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(cli.ExitConfig)
		}
		// Fall back to the flat JSON config older deployments ship.
		if _, statErr := os.Stat("test_config.json"); statErr == nil {
			viper.SetConfigFile("test_config.json")
			if err := viper.ReadInConfig(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(cli.ExitConfig)
			}
		}
	}
}

// --- Subcommands ---

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the scenario catalogue",
	Run: func(cmd *cobra.Command, args []string) {
		catalog := scenario.Builtin()
		if file := viper.GetString("scenario_file"); file != "" {
			var err error
			catalog, err = scenario.LoadFile(file)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(cli.ExitConfig)
			}
		}

		fmt.Printf("%-28s %-10s %s\n", "SCENARIO", "CATEGORY", "CONTEXT FRACTION")
		for _, t := range catalog.All() {
			fmt.Printf("%-28s %-10s %.0f%%\n", t.QualifiedName(), t.Category, t.SizeFraction*100)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived runs",
	Run: func(cmd *cobra.Command, args []string) {
		h := openHistory()
		defer h.Close()

		items, err := h.List()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(cli.ExitFailure)
		}
		if len(items) == 0 {
			fmt.Println("no archived runs")
			return
		}

		fmt.Printf("%-20s %-36s %-24s %6s %8s %8s\n",
			"STARTED", "RUN ID", "MODEL", "REQS", "SUCCESS", "P95")
		for _, it := range items {
			fmt.Printf("%-20s %-36s %-24s %6d %7.1f%% %7.2fs\n",
				it.StartedAt.Local().Format("2006-01-02 15:04:05"),
				it.RunID, it.Model, it.TotalRequests, it.SuccessRate, it.P95Seconds)
		}
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the stored summary of a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHistory()
		defer h.Close()

		rep, err := h.Get(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(cli.ExitFailure)
		}
		sink.NewConsole(os.Stdout).Summary(rep)
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write a stored run back out as a JSON report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHistory()
		defer h.Close()

		rep, err := h.Get(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(cli.ExitFailure)
		}

		out, _ := cmd.Flags().GetString("out")
		path, err := sink.WriteJSON(rep, out)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(cli.ExitFailure)
		}
		fmt.Printf("exported %s\n", path)
	},
}

func openHistory() *sink.History {
	dir := viper.GetString("history_dir")
	if dir == "" {
		dir = config.DefaultHistoryDir()
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "history is disabled: no history directory")
		os.Exit(cli.ExitConfig)
	}
	h, err := sink.OpenHistory(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitFailure)
	}
	return h
}

var mockllmCmd = &cobra.Command{
	Use:   "mockllm",
	Short: "Run a local OpenAI-compatible mock endpoint",
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		latency, _ := cmd.Flags().GetDuration("latency")
		jitter, _ := cmd.Flags().GetDuration("jitter")
		failureRate, _ := cmd.Flags().GetFloat64("failure-rate")
		rateLimitRate, _ := cmd.Flags().GetFloat64("rate-limit-rate")

		mockllm.New(mockllm.Options{
			Port:          port,
			BaseLatency:   latency,
			Jitter:        jitter,
			FailureRate:   failureRate,
			RateLimitRate: rateLimitRate,
		}).Start()
		select {}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inferload %s\n", version)
	},
}

func init() {
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyExportCmd.Flags().StringP("out", "o", "", "Output path")

	mockllmCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	mockllmCmd.Flags().Duration("latency", 150*time.Millisecond, "Base reply latency")
	mockllmCmd.Flags().Duration("jitter", 100*time.Millisecond, "Extra random latency")
	mockllmCmd.Flags().Float64("failure-rate", 0, "Fraction of requests answered with HTTP 500")
	mockllmCmd.Flags().Float64("rate-limit-rate", 0, "Fraction of requests answered with HTTP 429")
}
