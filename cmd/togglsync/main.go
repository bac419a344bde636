package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/christopherklint97/togglsync/internal/config"
	"github.com/christopherklint97/togglsync/internal/docstore"
	"github.com/christopherklint97/togglsync/internal/logging"
	"github.com/christopherklint97/togglsync/internal/notify"
	"github.com/christopherklint97/togglsync/internal/notion"
	"github.com/christopherklint97/togglsync/internal/report"
	"github.com/christopherklint97/togglsync/internal/resolve"
	"github.com/christopherklint97/togglsync/internal/scheduler"
	"github.com/christopherklint97/togglsync/internal/store"
	"github.com/christopherklint97/togglsync/internal/syncer"
	"github.com/christopherklint97/togglsync/internal/toggl"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "togglsync",
	Short:        "Mirror Toggl time entries into Notion",
	Long:         "togglsync copies Toggl Track time entries into a set of Notion databases, links them to projects, tags and calendar pages, and pushes entries created in Notion back to Toggl.",
	RunE:         runSync,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full sync (default)",
	RunE:  runSync,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which ranges the next sync would fetch",
	RunE:  runPlan,
}

var reverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Push entries created in the store back to Toggl",
	RunE:  runReverse,
}

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List Toggl workspaces",
	RunE:  runWorkspaces,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export Toggl entries as an iCalendar file",
	RunE:  runExport,
}

var heatmapCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Point the heatmap embed block at a new image URL",
	RunE:  runHeatmap,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync now and then on a fixed interval until stopped",
	RunE:  runWatch,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running watch",
	RunE:  runStop,
}

var initStoreCmd = &cobra.Command{
	Use:   "init-store",
	Short: "Create the local sqlite store and its containers",
	RunE:  runInitStore,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ~/.config/togglsync/config.toml)")
	rootCmd.PersistentFlags().String("env-file", "", "dotenv file to load (default .env if present)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")

	for _, c := range []*cobra.Command{rootCmd, syncCmd, watchCmd} {
		c.Flags().Bool("no-reverse", false, "skip pushing store-only entries to Toggl")
	}
	planCmd.Flags().String("now", "", "plan as of this time, e.g. \"yesterday\"")
	exportCmd.Flags().String("from", "30 days ago", "start of the range")
	exportCmd.Flags().String("to", "now", "end of the range")
	exportCmd.Flags().StringP("out", "o", "togglsync.ics", "output file, - for stdout")
	watchCmd.Flags().Duration("every", 0, "interval between runs (default from config, 1h)")
	heatmapCmd.Flags().String("url", "", "image URL to embed")
	heatmapCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(reverseCmd)
	rootCmd.AddCommand(workspacesCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(heatmapCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(initStoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is what every command needs: the config and a logger whose file is closed on exit.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, closer := logging.New(os.Stderr, logging.Options{
		Verbose:    verbose,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) Close() {
	a.closer.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func (a *app) togglClient() (*toggl.Client, error) {
	if a.cfg.Toggl.APIToken == "" {
		return nil, errors.New("toggl api token not configured (set TOGGL_TOKEN)")
	}
	return toggl.NewClient(a.cfg.Toggl.APIToken, a.cfg.Toggl.BaseURL, a.logger), nil
}

func (a *app) containers() syncer.Containers {
	c := a.cfg.Containers
	return syncer.Containers{
		Entries:  c.Entries,
		Projects: c.Projects,
		Clients:  c.Clients,
		Tags:     c.Tags,
		Calendar: resolve.CalendarContainers{
			Year:  c.Years,
			Month: c.Months,
			Week:  c.Weeks,
			Day:   c.Days,
			All:   c.All,
		},
	}
}

// openStore returns the configured document store and a function releasing it.
func (a *app) openStore(ctx context.Context) (docstore.Store, func(), error) {
	switch a.cfg.Store.Backend {
	case "sqlite":
		db, err := store.Open(a.cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening store: %w", err)
		}
		for container, schema := range a.containers().Schemas() {
			if err := db.DeclareContainer(ctx, container, schema); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return db, func() { db.Close() }, nil
	default:
		return notion.NewClient(a.cfg.Notion.Token, a.cfg.Notion.BaseURL, a.logger), func() {}, nil
	}
}

// session validates the config and builds a sync session on the configured store.
func (a *app) session(ctx context.Context) (*syncer.Session, func(), error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	client, err := a.togglClient()
	if err != nil {
		return nil, nil, err
	}
	st, release, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return syncer.NewSession(st, client, a.containers(), loc, a.logger), release, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return a.syncOnce(ctx, cmd)
}

// syncOnce runs a full sync on a fresh session and prints its summary.
func (a *app) syncOnce(ctx context.Context, cmd *cobra.Command) error {
	s, release, err := a.session(ctx)
	if err != nil {
		return err
	}
	defer release()

	runner := syncer.NewRunner(s)
	runner.WorkspaceID = a.cfg.Toggl.WorkspaceID
	noReverse, _ := cmd.Flags().GetBool("no-reverse")
	runner.SkipReverse = noReverse || a.cfg.Sync.SkipReverse

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(report.Run(result))
	notify.New(a.cfg.Notifications.Enabled, a.logger).Send("togglsync", report.Headline(result))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	every, _ := cmd.Flags().GetDuration("every")
	if every <= 0 {
		every = time.Duration(a.cfg.Sync.IntervalMinutes) * time.Minute
	}
	pidPath, err := config.PIDPath()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sched := scheduler.New(every, func(ctx context.Context) error {
		return a.syncOnce(ctx, cmd)
	}, pidPath, a.logger)
	return sched.Run(ctx)
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath, err := config.PIDPath()
	if err != nil {
		return err
	}
	pid, err := scheduler.ReadPID(pidPath)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending stop signal: %w", err)
	}

	fmt.Printf("Sent stop signal to togglsync (PID %d)\n", pid)
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	s, release, err := a.session(ctx)
	if err != nil {
		return err
	}
	defer release()

	if v, _ := cmd.Flags().GetString("now"); v != "" {
		now, err := parseWhen(v, time.Now().In(s.Location))
		if err != nil {
			return err
		}
		s.Now = func() time.Time { return now }
	}

	runner := syncer.NewRunner(s)
	runner.WorkspaceID = a.cfg.Toggl.WorkspaceID
	p, err := runner.Prepare(ctx)
	if err != nil {
		return err
	}
	fmt.Println(report.Plan(p))
	return nil
}

func runReverse(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	s, release, err := a.session(ctx)
	if err != nil {
		return err
	}
	defer release()

	runner := syncer.NewRunner(s)
	runner.WorkspaceID = a.cfg.Toggl.WorkspaceID
	p, err := runner.Prepare(ctx)
	if err != nil {
		return err
	}

	res, err := syncer.NewReverseSyncer(s).Reconcile(ctx, p.WorkspaceID)
	if err != nil {
		return err
	}
	fmt.Println(report.Reverse(res))
	return nil
}

func runWorkspaces(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.togglClient()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	workspaces, err := client.Workspaces(ctx)
	if err != nil {
		return fmt.Errorf("fetching workspaces: %w", err)
	}
	if len(workspaces) == 0 {
		fmt.Println("No workspaces found.")
		return nil
	}

	fmt.Printf("Found %d workspaces:\n\n", len(workspaces))
	for _, ws := range workspaces {
		projects, err := client.Projects(ctx, ws.ID)
		if err != nil {
			a.logger.Warn("could not list projects", "workspace", ws.ID, "error", err)
		}
		fmt.Printf("  %d  %-30s  %d projects\n", ws.ID, ws.Name, len(projects))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	client, err := a.togglClient()
	if err != nil {
		return err
	}

	now := time.Now().In(loc)
	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	out, _ := cmd.Flags().GetString("out")

	from, err := parseWhen(fromFlag, now)
	if err != nil {
		return err
	}
	to, err := parseWhen(toFlag, now)
	if err != nil {
		return err
	}
	if !from.Before(to) {
		return fmt.Errorf("--from (%s) must be before --to (%s)", from.Format(time.DateTime), to.Format(time.DateTime))
	}

	ctx, cancel := signalContext()
	defer cancel()

	return exportCalendar(ctx, a, client, loc, syncer.Range{Start: from, End: to}, out)
}

func runHeatmap(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	url, _ := cmd.Flags().GetString("url")
	if a.cfg.Notion.Token == "" || a.cfg.Notion.HeatmapBlockID == "" {
		return errors.New("heatmap needs NOTION_TOKEN and HEATMAP_BLOCK_ID")
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := notion.NewClient(a.cfg.Notion.Token, a.cfg.Notion.BaseURL, a.logger)
	if err := client.UpdateEmbedBlock(ctx, a.cfg.Notion.HeatmapBlockID, url); err != nil {
		return err
	}
	fmt.Printf("Heatmap block now embeds %s\n", url)
	return nil
}

func runInitStore(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	defaults := config.ContainerConfig{
		Entries: "entries", Projects: "projects", Clients: "clients", Tags: "tags",
		Years: "years", Months: "months", Weeks: "weeks", Days: "days", All: "all",
	}
	c := &a.cfg.Containers
	changed := false
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&c.Entries, defaults.Entries}, {&c.Projects, defaults.Projects}, {&c.Clients, defaults.Clients},
		{&c.Tags, defaults.Tags}, {&c.Years, defaults.Years}, {&c.Months, defaults.Months},
		{&c.Weeks, defaults.Weeks}, {&c.Days, defaults.Days}, {&c.All, defaults.All},
	} {
		if *f.dst == "" {
			*f.dst = f.def
			changed = true
		}
	}

	a.cfg.Store.Backend = "sqlite"
	ctx := context.Background()
	st, release, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer release()

	if changed {
		path, _ := cmd.Flags().GetString("config")
		if err := config.SaveContainers(path, *c); err != nil {
			return fmt.Errorf("saving container names: %w", err)
		}
	}

	db := st.(*store.DB)
	for container := range a.containers().Schemas() {
		n, err := db.Count(ctx, container)
		if err != nil {
			return err
		}
		fmt.Printf("  %-12s %d documents\n", container, n)
	}
	fmt.Println("Store ready. Set backend = \"sqlite\" under [store] or TOGGLSYNC_STORE=sqlite to sync into it.")
	return nil
}
