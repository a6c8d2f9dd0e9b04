package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"

	"github.com/maloquacious/shameless/internal/config"
	"github.com/maloquacious/shameless/internal/logger"
	"github.com/maloquacious/shameless/internal/shameless"
)

var (
	version   = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

var (
	configPath string
	envFile    string
	storeName  string
	logLevel   string
	indexName  string
	adminPort  int
	shutdownTO time.Duration
	exitAfter  time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "shameless",
		Short:         "Inspect and provision a sharded shameless store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "shameless.yaml", "topology and model declarations")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&storeName, "name", shameless.DefaultName, "table name prefix")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "List the physical tables owned by each partition",
		Args:  cobra.NoArgs,
		RunE:  runTables,
	}

	routeCmd := &cobra.Command{
		Use:   "route <model> <key>",
		Short: "Show the shard, partition and table a shard key routes to",
		Args:  cobra.ExactArgs(2),
		RunE:  runRoute,
	}
	routeCmd.Flags().StringVar(&indexName, "index", shameless.PrimaryIndex, "index whose shard key is given")

	locateCmd := &cobra.Command{
		Use:   "locate <table>",
		Short: "Show the model, index, shard and partition of a physical table",
		Args:  cobra.ExactArgs(1),
		RunE:  runLocate,
	}

	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Connect every partition and create all missing tables",
		Args:  cobra.NoArgs,
		RunE:  runProvision,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin server (JSON, loopback only)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&adminPort, "admin-port", 8383, "admin HTTP port")
	serveCmd.Flags().DurationVar(&shutdownTO, "shutdown-timeout", 15*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().DurationVar(&exitAfter, "exit-after", 0, "optional runtime; if set, server exits after this duration (testing)")

	rootCmd.AddCommand(tablesCmd, routeCmd, locateCmd, provisionCmd, versionCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openStore loads the environment and config file, then builds a store with
// every model declared in the config attached.
func openStore() (*shameless.Store, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(os.Stderr, logger.ParseLevel(logLevel))
	st, err := shameless.New(*cfg, shameless.WithName(storeName), shameless.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := attachModels(st, cfg.Models); err != nil {
		return nil, err
	}
	return st, nil
}

func runTables(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	head := color.New(color.FgBlue, color.Bold)
	return st.EachPartition(func(p *shameless.Partition, tables []string) error {
		head.Fprintf(w, "partition %d", p.Index())
		fmt.Fprintf(w, " %s\n", redact(p.URL()))
		for _, t := range tables {
			fmt.Fprintf(w, "  %s\n", t)
		}
		return nil
	})
}

func runRoute(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	r, err := route(st, args[0], indexName, args[1])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan)
	cyan.Fprint(w, "index      ")
	fmt.Fprintln(w, r.Index)
	cyan.Fprint(w, "shard      ")
	fmt.Fprintf(w, "%d (%s)\n", r.Shard, st.PaddedShard(r.Shard))
	cyan.Fprint(w, "partition  ")
	fmt.Fprintln(w, r.Partition)
	cyan.Fprint(w, "table      ")
	fmt.Fprintln(w, r.Table)
	return nil
}

func runLocate(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	loc, err := st.Locate(args[0])
	if err != nil {
		return err
	}
	index := loc.Index
	if index == "" {
		index = "(main table)"
	}
	w := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan)
	for _, kv := range [][2]string{
		{"model", loc.Model},
		{"index", index},
		{"shard", fmt.Sprintf("%d", loc.Shard)},
		{"partition", fmt.Sprintf("%d", loc.Partition)},
	} {
		cyan.Fprintf(w, "%-11s", kv[0])
		fmt.Fprintln(w, kv[1])
	}
	return nil
}

func runProvision(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := cmd.OutOrStdout()
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	var failed error
	st.EachPartition(func(p *shameless.Partition, tables []string) error {
		if _, err := p.Conn(ctx); err != nil {
			red.Fprintf(w, "✗ partition %d: %v\n", p.Index(), err)
			failed = errors.Join(failed, err)
			return nil
		}
		green.Fprintf(w, "✓ partition %d: %d tables\n", p.Index(), len(tables))
		return nil
	})
	if failed != nil {
		return fmt.Errorf("provisioning failed")
	}
	return nil
}
