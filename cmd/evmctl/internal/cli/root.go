package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/example/projectcontrols/cmd/evmctl/internal/ui"
	"github.com/example/projectcontrols/internal/config"
	"github.com/example/projectcontrols/internal/logger"
	"github.com/example/projectcontrols/internal/service"
	"github.com/example/projectcontrols/internal/storage/sqlite"
	grpcTransport "github.com/example/projectcontrols/internal/transport/grpc"
)

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	dbPath     string
	addr       string
	actor      string
	verbose    bool
	noColor    bool
}

// NewRootCmd builds the evmctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "evmctl",
		Short: "Inspect and operate on versioned project control data",
		Long: `evmctl works directly against the project controls database, or against a
running server when --addr is given.

Every entity row is versioned and append-only. Change orders stage edits in
their own branch (co-001, co-002, ...) which is merged into main when the
change order executes.

EXAMPLES:
  # Create the schema
  evmctl migrate --db projectcontrols.db

  # Show the version history of a WBE inside a change order branch
  evmctl history wbe 6f1c... --branch co-003

  # Show what a branch would change in main
  evmctl diff co-003

  # Merge through a running server
  evmctl merge co-003 --addr localhost:50051 --actor alice`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("EVM_CONFIG"), "path to YAML config file")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	flags.StringVar(&opts.addr, "addr", "", "gRPC address of a running server")
	flags.StringVar(&opts.actor, "actor", os.Getenv("USER"), "actor recorded on writes")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newMigrateCmd(opts),
		newListCmd(opts),
		newHistoryCmd(opts),
		newBranchesCmd(opts),
		newDiffCmd(opts),
		newMergeCmd(opts),
		newArchiveCmd(opts),
		newChangeOrdersCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) printer(cmd *cobra.Command) *ui.Printer {
	return ui.New(cmd.OutOrStdout(), !o.noColor)
}

func (o *options) logger(cmd *cobra.Command) zerolog.Logger {
	if !o.verbose {
		return logger.Nop()
	}
	return logger.New(logger.Config{Level: "debug", Pretty: true, Output: cmd.ErrOrStderr()})
}

// local bundles the services of a directly opened database.
type local struct {
	store    *sqlite.SQLiteStorage
	versions *service.VersionService
	filter   *service.Filter
	branches *service.BranchService
	workflow *service.WorkflowService
}

func (l *local) Close() error {
	return l.store.Close()
}

func (o *options) openLocal(cmd *cobra.Command) (*local, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.SQLitePath = o.dbPath
	}

	store, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.SQLitePath, err)
	}
	detector, err := service.NewConflictDetector(cfg.Version.ConflictDetection)
	if err != nil {
		store.Close()
		return nil, err
	}

	svcOpts := []service.Option{
		service.WithLogger(o.logger(cmd)),
		service.WithMaxRetries(cfg.Version.MaxRetries),
		service.WithConflictDetector(detector),
	}
	versions := service.NewVersionService(store, svcOpts...)
	branches := service.NewBranchService(store, versions, svcOpts...)
	return &local{
		store:    store,
		versions: versions,
		filter:   service.NewFilter(store),
		branches: branches,
		workflow: service.NewWorkflowService(store, branches, svcOpts...),
	}, nil
}

func (o *options) dialRemote() (*grpcTransport.Client, func() error, error) {
	conn, err := grpc.NewClient(o.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", o.addr, err)
	}
	return grpcTransport.NewClient(conn), conn.Close, nil
}

func contextFor(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
