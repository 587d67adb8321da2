package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kcartwright/jirafs/internal/cache"
	"github.com/kcartwright/jirafs/internal/config"
	"github.com/kcartwright/jirafs/internal/fsadapter"
	"github.com/kcartwright/jirafs/internal/jira"
	"github.com/kcartwright/jirafs/internal/logging"
	"github.com/kcartwright/jirafs/internal/metrics"
	"github.com/kcartwright/jirafs/internal/store"
	"github.com/kcartwright/jirafs/internal/sync"
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the Jira filesystem",
	Long:  `Mount the configured Jira workspaces at the given mountpoint.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromWithEnv(configPath, os.Getenv)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		cfg.Logging.Debug = true
	}
	logging.SetDebug(cfg.Logging.Debug)

	mountpoint := args[0]
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}

	m := metrics.New()

	st, err := store.Open(cfg.Cache.DBPath)
	if err != nil {
		return fmt.Errorf("open cache database: %w", err)
	}
	defer st.Close()

	c := cache.NewWithStore(
		time.Duration(cfg.Cache.TTLSecs)*time.Second,
		time.Duration(cfg.Cache.TTLSecs)*time.Second,
		st, m,
	)

	client, err := jira.NewClientWithMetrics(cfg.BaseURL, cfg.Email, cfg.APIToken, m)
	if err != nil {
		return fmt.Errorf("build jira client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if me, err := client.GetMyself(ctx); err != nil {
		logging.Warnf("jira identity probe failed: %v", err)
	} else {
		logging.Infof("jira identity display_name=%q account_id=%q", me.DisplayName, me.AccountID)
	}
	if projects, err := client.ListVisibleProjects(ctx); err != nil {
		logging.Warnf("jira visible projects probe failed: %v", err)
	} else {
		sample := projects
		if len(sample) > 10 {
			sample = sample[:10]
		}
		logging.Infof("jira visible projects count=%d sample=%v", len(projects), sample)
	}

	coordinator := sync.NewCoordinator(client, c, st, cfg.Workspaces, cfg.Sync.Budget, int64(cfg.Sync.IntervalSecs))
	coordinator.State.RequestInitialSync()

	stop := make(chan struct{})
	metrics.SpawnLogger(m, time.Duration(cfg.Metrics.IntervalSecs)*time.Second, coordinator.State.LastSyncEnd, logging.Info, stop)
	go coordinator.Run(ctx)

	names := make([]string, 0, len(cfg.Workspaces))
	for name := range cfg.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)

	root := &fsadapter.Root{
		Cache:      c,
		State:      coordinator.State,
		Workspaces: names,
		UID:        uint32(os.Getuid()),
		GID:        uint32(os.Getgid()),
	}

	server, err := fsadapter.Mount(mountpoint, root, cfg.Logging.Debug)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("unmounting")
		server.Unmount()
	}()

	fmt.Printf("jirafs mounted at %s; press Ctrl+C to unmount\n", mountpoint)
	server.Wait()

	close(stop)
	cancel()
	return nil
}
