package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	relayqurl "github.com/relayq/relayq/lib"
	"github.com/relayq/relayq/lib/jobqueue/client"
	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/logger"
	"github.com/relayq/relayq/lib/jobqueue/worker"
	"github.com/relayq/relayq/pkg/telemetry"
)

// Jobs is the process-wide job-class registry. relayq-worker ships with an
// empty registry: embedding applications that want this binary's worker
// variants fork this command (or vendor cli.ExecuteContext) and call
// Jobs.Register(...) in an init() before Execute runs, exactly as a
// reqless deployment passes --import paths naming its own job classes.
var Jobs = importer.NewRegistry()

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a worker process against one or more queues",
	Args:  cobra.NoArgs,
	RunE:  doRun,
}

func init() {
	runCmd.Flags().String("redis-url", "redis://127.0.0.1:6379/0", "Redis connection URL")
	cobra.CheckErr(viper.BindPFlag("redis_url", runCmd.Flags().Lookup("redis-url")))

	runCmd.Flags().String("script-file", "", "path to the relayq Lua script source")
	cobra.CheckErr(viper.BindPFlag("script_file", runCmd.Flags().Lookup("script-file")))

	runCmd.Flags().StringSlice("queues", nil, "static list of queue names to work")
	cobra.CheckErr(viper.BindPFlag("queues", runCmd.Flags().Lookup("queues")))

	runCmd.Flags().String("worker-name", "", "worker identity (default: hostname-pid)")
	cobra.CheckErr(viper.BindPFlag("worker_name", runCmd.Flags().Lookup("worker-name")))

	runCmd.Flags().String("kind", "serial", "worker variant: serial|main|forking|pooled")
	cobra.CheckErr(viper.BindPFlag("kind", runCmd.Flags().Lookup("kind")))

	runCmd.Flags().Duration("interval", worker.DefaultInterval, "idle-poll sleep between empty rounds")
	cobra.CheckErr(viper.BindPFlag("interval", runCmd.Flags().Lookup("interval")))

	runCmd.Flags().String("sandbox-dir", "", "root directory for per-job/per-slot sandboxes")
	cobra.CheckErr(viper.BindPFlag("sandbox_dir", runCmd.Flags().Lookup("sandbox-dir")))

	runCmd.Flags().Int("worker-count", 0, "ForkingWorker child count (0 = host CPU count)")
	cobra.CheckErr(viper.BindPFlag("worker_count", runCmd.Flags().Lookup("worker-count")))

	runCmd.Flags().Int("pool-size", 0, "PooledWorker concurrency (0 = default)")
	cobra.CheckErr(viper.BindPFlag("pool_size", runCmd.Flags().Lookup("pool-size")))

	runCmd.Flags().Bool("resume", false, "resume jobs this worker name still owns on startup")
	cobra.CheckErr(viper.BindPFlag("resume", runCmd.Flags().Lookup("resume")))
}

func doRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rawURL := viper.GetString("redis_url")
	if _, err := relayqurl.ParseAndNormalizeURL(rawURL); err != nil {
		return fmt.Errorf("invalid redis-url: %w", err)
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return fmt.Errorf("parsing redis-url: %w", err)
	}
	rdb := redis.NewClient(opts)

	scriptPath := viper.GetString("script_file")
	if scriptPath == "" {
		return fmt.Errorf("--script-file is required")
	}
	scriptSource, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("reading script-file: %w", err)
	}

	workerName := viper.GetString("worker_name")
	if workerName == "" {
		hostname, _ := os.Hostname()
		workerName = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	queues := viper.GetStringSlice("queues")
	if len(queues) == 0 {
		return fmt.Errorf("--queues must name at least one queue")
	}

	log := logger.Named("worker/" + workerName)

	cl, err := client.New(ctx, rdb, string(scriptSource), client.WithLog(log))
	if err != nil {
		return fmt.Errorf("creating script client: %w", err)
	}

	resume := worker.ResumeNone()
	if viper.GetBool("resume") {
		resume = worker.ResumeAll()
	}

	opts2 := []worker.Option{
		worker.WithLog(log),
		worker.WithInterval(viper.GetDuration("interval")),
		worker.WithResume(resume),
		worker.WithTelemetry(telemetry.Global()),
	}
	if sandboxDir := viper.GetString("sandbox_dir"); sandboxDir != "" {
		opts2 = append(opts2, worker.WithSandboxPath(sandboxDir))
	}

	sub := cl
	kind := strings.ToLower(viper.GetString("kind"))

	switch kind {
	case "serial":
		w, err := worker.NewSerialWorker(ctx, workerName, queues, cl, sub, Jobs, opts2...)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	case "main":
		w, err := worker.NewMainWorker(ctx, workerName, queues, cl, sub, Jobs, opts2...)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	case "forking":
		if n := viper.GetInt("worker_count"); n > 0 {
			opts2 = append(opts2, worker.WithWorkerCount(n))
		}
		w, err := worker.NewForkingWorker(ctx, workerName, queues, cl, sub, Jobs, opts2...)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	case "pooled":
		if n := viper.GetInt("pool_size"); n > 0 {
			opts2 = append(opts2, worker.WithPoolSize(n))
		}
		w, err := worker.NewPooledWorker(ctx, workerName, queues, cl, sub, Jobs, opts2...)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	default:
		return fmt.Errorf("unknown worker kind %q", kind)
	}
}
