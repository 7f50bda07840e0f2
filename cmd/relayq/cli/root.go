// Package cli implements relayq, a thin administrative/inspection client
// over ScriptClient's config.get/set/unset calls — grounded on the
// teacher's cmd/cli/client/admin/config subcommand shape (get/reload/list),
// adapted from piri's HTTP admin API to relayq's script-envelope calls.
package cli

import (
	"context"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	relayqurl "github.com/relayq/relayq/lib"
	"github.com/relayq/relayq/lib/jobqueue/client"
	"github.com/relayq/relayq/pkg/build"
)

var log = logging.Logger("cmd/relayq")

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

var (
	cfgFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:     "relayq",
		Short:   "Administer and inspect a relayq deployment",
		Version: build.Version,
	}
)

func init() {
	cobra.OnInitialize(initLogging, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level")

	rootCmd.PersistentFlags().String("redis-url", "redis://127.0.0.1:6379/0", "Redis connection URL")
	cobra.CheckErr(viper.BindPFlag("redis_url", rootCmd.PersistentFlags().Lookup("redis-url")))

	rootCmd.PersistentFlags().String("script-file", "", "path to the relayq Lua script source")
	cobra.CheckErr(viper.BindPFlag("script_file", rootCmd.PersistentFlags().Lookup("script-file")))

	rootCmd.AddCommand(configCmd)
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

func initLogging() {
	if logLevel != "" {
		ll, err := logging.LevelFromString(logLevel)
		cobra.CheckErr(err)
		logging.SetAllLoggers(ll)
		return
	}
	logging.SetAllLoggers(logging.LevelWarn)
	logging.SetLogLevel("cmd/relayq", "info")
}

// newClient builds a ScriptClient from the persistent --redis-url/
// --script-file flags, shared by every subcommand that talks to the
// server.
func newClient(ctx context.Context) (*client.ScriptClient, error) {
	rawURL := viper.GetString("redis_url")
	if _, err := relayqurl.ParseAndNormalizeURL(rawURL); err != nil {
		return nil, err
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	scriptPath := viper.GetString("script_file")
	scriptSource, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, err
	}
	return client.New(ctx, rdb, string(scriptSource))
}
