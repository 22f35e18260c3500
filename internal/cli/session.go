package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/boarding/internal/config"
	"github.com/roach88/boarding/internal/coordinator"
	"github.com/roach88/boarding/internal/directory"
	"github.com/roach88/boarding/internal/store"
)

// session is everything a command needs once config is loaded and the
// database is open.
type session struct {
	cfg    *config.Config
	store  *store.Store
	coord  *coordinator.Coordinator
	logger *slog.Logger
	out    *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// openSession loads config, applies flag overrides, opens the store,
// reconciles leases with the configured window and installs the resource
// directory when one is configured. Failures are
// reported through the formatter and come back as ExitErrors.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, out.FailWithCode(ErrCodeConfig, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}
	if opts.Directory != "" {
		cfg.Directory.Path = opts.Directory
	}

	logger := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())

	out.VerboseLog("opening database %s", cfg.Store.Path)
	st, err := store.Open(cfg.Store.Path,
		store.WithMaxAttempts(cfg.Store.MaxAttempts),
		store.WithRetryBackoff(cfg.Store.RetryBackoff),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, out.FailWithCode(ErrCodeStore, "failed to open database", err)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithWindowSize(cfg.Admission.WindowSize),
		coordinator.WithLeaseTimeout(cfg.Admission.LeaseTimeout),
		coordinator.WithMaxQueueSize(cfg.Admission.MaxQueueSize),
	}
	if opts.Clock != nil {
		coordOpts = append(coordOpts, coordinator.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		coordOpts = append(coordOpts, coordinator.WithIDGenerator(opts.IDs))
	}

	s := &session{
		cfg:    cfg,
		store:  st,
		coord:  coordinator.New(st, coordOpts...),
		logger: logger,
		out:    out,
	}

	// The database may have been written under another window size.
	if err := s.coord.ReconcileLeases(ctx); err != nil {
		s.close()
		return nil, out.FailWithCode(ErrCodeStore, "failed to reconcile leases", err)
	}

	if cfg.Directory.Path != "" {
		if err := s.syncDirectory(ctx, cfg.Directory.Path); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) syncDirectory(ctx context.Context, path string) error {
	resources, err := directory.Load(path)
	if err != nil {
		return s.out.FailWithCode(ErrCodeDirectory, "failed to load directory", err)
	}
	if err := s.coord.SyncDirectory(ctx, resources); err != nil {
		return s.out.FailWithCode(ErrCodeDirectory, "failed to sync directory", err)
	}
	s.out.VerboseLog("installed %d resource(s) from %s", len(resources), path)
	return nil
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// newLogger builds the slog logger for a command. --verbose forces debug.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// commandContext returns cmd's context, falling back to Background when the
// command runs outside Execute (tests calling RunE directly).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withSession runs fn against an open session and closes it afterwards.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}
