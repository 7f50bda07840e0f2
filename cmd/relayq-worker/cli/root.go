// Package cli implements the relayq-worker command: a worker process
// entrypoint, grounded on the teacher's cmd/cli/root.go
// (cobra + viper, the same --config/--log-level/RELAYQ_ env-var shape).
package cli

import (
	"context"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relayq/relayq/pkg/build"
	"github.com/relayq/relayq/pkg/telemetry"
)

var log = logging.Logger("cmd/relayq-worker")

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

var (
	cfgFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:     "relayq-worker",
		Short:   "Run a relayq worker process",
		Version: build.Version,
	}
)

func init() {
	cobra.OnInitialize(initLogging, initConfig, initTelemetry)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetEnvPrefix("RELAYQ")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		cobra.CheckErr(viper.ReadInConfig())
	} else {
		viper.SetConfigName("relayq-config")
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")
		_ = viper.ReadInConfig()
	}
}

func initTelemetry() {
	telCfg := telemetry.Config{
		ServiceName:    "relayq-worker",
		ServiceVersion: build.Version,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := telemetry.Initialize(ctx, telCfg); err != nil {
		log.Warnf("failed to initialize telemetry: %s", err)
	}
}

func initLogging() {
	if logLevel != "" {
		ll, err := logging.LevelFromString(logLevel)
		cobra.CheckErr(err)
		logging.SetAllLoggers(ll)
		return
	}
	logging.SetAllLoggers(logging.LevelError)
	logging.SetLogLevel("cmd/relayq-worker", "info")
	logging.SetLogLevel("relayq/worker", "info")
	logging.SetLogLevel("relayq/client", "info")
	logging.SetLogLevel("telemetry", "info")
}
