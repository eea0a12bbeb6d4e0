package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/ibimetrics/internal/log"
	"github.com/chrissnell/ibimetrics/pkg/config"
	"github.com/spf13/cobra"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

var (
	cfgFile    string
	cfgBackend string
	debug      bool

	cfgData *config.ConfigData
)

var rootCmd = &cobra.Command{
	Use:     "ibimetrics",
	Short:   "Accuracy metrics for inter-beat-interval series",
	Version: version,
	Long: `ibimetrics compares a candidate inter-beat-interval series (radar or other
contactless sensor) against a reference series (ECG) and reports the RMSE of
the interval values and the Time Coverage Rate (TCR).

Series files are CSV with two columns: time in seconds and IBI value.
A header row is optional.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Init(debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		var err error
		cfgData, err = loadConfig(cfgFile, cfgBackend)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML configuration file (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&cfgBackend, "config-backend", "yaml", "Configuration backend type; only 'yaml' is supported")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Turn on debugging output")
}

func main() {
	err := rootCmd.Execute()
	log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	if cfgFile == "" {
		return config.DefaultConfig(), nil
	}
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", filename, err)
	}
	return cfgData, nil
}
