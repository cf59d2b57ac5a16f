package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/reglet-dev/krew-wasm/internal/infrastructure/system"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Environment variables are KREW_WASM_<KEY>.
const envPrefix = "KREW_WASM"

// VerboseEnv enables debug logging in both invocation modes.
const VerboseEnv = envPrefix + "_VERBOSE"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the native-mode entry point.
var rootCmd = &cobra.Command{
	Use:   system.BinaryName,
	Short: "Run kubectl plugins compiled to WebAssembly",
	Long: `krew-wasm installs kubectl plugins distributed as WebAssembly modules and
runs them in a sandbox. A plugin sees the user's home directory, its arguments
and environment, and may reach the API server of the current kubeconfig context
and nothing else.

Pulled modules are exposed as kubectl-<name> symlinks in the bin directory;
add it to $PATH so kubectl can find them.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogging(viper.GetBool("verbose"))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// executeNative runs the command line with args (argv without the program name).
func executeNative(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.krew-wasm/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output (env "+VerboseEnv+")")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig binds KREW_WASM_* environment variables.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file and applies KREW_WASM_STORE_ROOT and
// KREW_WASM_BIN_ROOT over it.
func loadConfig() (*system.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		var err error
		if path, err = system.DefaultConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := system.NewConfigLoader().Load(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("configuration loaded", "file", path)

	if root := viper.GetString("store_root"); root != "" {
		cfg.Store.Root = root
	}
	if bin := viper.GetString("bin_root"); bin != "" {
		cfg.Store.BinRoot = bin
	}
	return cfg, nil
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	// Using TextHandler for CLI friendliness
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
