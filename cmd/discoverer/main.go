package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/discoverer/pkg/config"
	"github.com/cuemby/discoverer/pkg/log"
	"github.com/cuemby/discoverer/pkg/metrics"
	"github.com/cuemby/discoverer/pkg/persistence"
	"github.com/cuemby/discoverer/pkg/service"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "discoverer",
	Short: "discoverer - network discovery and availability engine",
	Long: `discoverer schedules network discovery rules, fans out ICMP, TCP,
SNMP, and agent checks across a fixed worker pool, and serves host,
service, and proxy-group state over two IPC sockets.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"discoverer version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the discovery engine standalone",
	Long: `Run starts the scheduler, the fixed worker pool, and both IPC
sockets, and serves /metrics and /health/ready/live until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		discovererSock, _ := cmd.Flags().GetString("discoverer-socket")
		pgmSock, _ := cmd.Flags().GetString("proxygroup-socket")
		pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		store := persistence.NewMemStore()

		svc, err := service.New(service.Config{
			WorkerCount:          workers,
			Rules:                store,
			Collab:               store,
			Timeouts:             config.NewStaticTimeouts(),
			Macros:               config.NoopMacroResolver{},
			DiscovererSocketPath: discovererSock,
			ProxyGroupSocketPath: pgmSock,
			PollInterval:         pollInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to build service: %v", err)
		}

		metrics.SetVersion(Version)
		svc.Start()
		fmt.Println("discoverer engine started")

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Printf("metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("metrics endpoint: http://%s/metrics\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nshutting down...")
		svc.Stop()
		fmt.Println("shutdown complete")
		return nil
	},
}

func init() {
	runCmd.Flags().Int("workers", 4, "Fixed worker pool size")
	runCmd.Flags().String("discoverer-socket", "/var/run/discoverer/discoverer.sock", "Discoverer IPC socket path (QUEUE, USAGE_STATS, SNMP_CACHE_RELOAD, SHUTDOWN)")
	runCmd.Flags().String("proxygroup-socket", "/var/run/discoverer/proxygroupmanager.sock", "ProxyGroupManager IPC socket path")
	runCmd.Flags().Duration("poll-interval", 10*time.Second, "Scheduler tick sleep bound while serving IPC")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for /metrics and health endpoints")
}
