package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harvestd/harvestd/internal/batch"
	"github.com/harvestd/harvestd/internal/config"
	"github.com/harvestd/harvestd/internal/log"
	"github.com/harvestd/harvestd/internal/model"
	"github.com/harvestd/harvestd/internal/ratelimit"
	"github.com/harvestd/harvestd/internal/session"
	"github.com/harvestd/harvestd/internal/source"
)

// DefaultSourceName is used when --source is not specified.
const DefaultSourceName = "default"

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [item-names...]",
		Short: "Run or resume a batch harvesting session",
		Long: `Run starts a new batch session over the given item names, or resumes
an existing session by ID.

Every completed or failed item is persisted immediately, so a run that is
interrupted (Ctrl-C) or stopped can be resumed later with --session; only
the items that never finished are processed again.

All workers share one rate limiter: requests are spaced by a jittered
delay, failures inflate the spacing exponentially, and the presented
identity profile rotates on schedule and immediately on a detected
soft block.

Examples:
  # Harvest three items from the "api" source
  harvestd run --source api alice bob carol

  # Resume an interrupted session
  harvestd run --session 3f1c97c2-4a7e-4f2b-9d0a-8f6e1c2b3a4d

  # Slow down pacing and write a Markdown report
  harvestd run --base-delay 5s --markdown -o report.md alice bob

Configuration file (.harvestd) example:
  sources:
    api:
      urlTemplate: "https://api.example.com/v1/records/{name}"
      headers:
        Accept: "application/json"
  identities:
    - name: firefox-linux
      userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
      acceptLanguage: "en-US,en;q=0.5"`,
		Args: cobra.ArbitraryArgs,
		RunE: runRunCmd,
	}

	// Session flags
	cmd.Flags().StringP("session", "s", "", "Session ID to resume (or to name a new session)")
	cmd.Flags().String("type", "harvest", "Session type label")
	cmd.Flags().String("source", DefaultSourceName, "Named source from the config file")
	cmd.Flags().StringP("url-template", "u", "", "Fetch URL template; {name} is replaced with the item name")

	// Pacing flags
	cmd.Flags().Duration("base-delay", config.DefaultBaseDelay, "Minimum spacing between requests")
	cmd.Flags().Duration("jitter", config.DefaultJitterRange, "Random spread added to the base delay")
	cmd.Flags().Duration("max-delay", config.DefaultMaxDelay, "Upper bound for backoff-inflated delays")
	cmd.Flags().Float64("rps", config.DefaultRPSCeiling, "Absolute requests-per-second ceiling")

	// Worker flags
	cmd.Flags().IntP("workers", "w", config.DefaultMaxWorkers, "Concurrent workers (pacing stays global)")
	cmd.Flags().IntP("retries", "r", config.DefaultMaxRetries, "Per-item retry budget")

	// Item list file
	cmd.Flags().StringP("list", "l", "",
		"File with one item name per line (merged with positional names)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .harvestd in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	sessionID, err := cmd.Flags().GetString("session")
	if err != nil {
		return err
	}
	if sessionID == "" && len(cfg.Items) == 0 {
		return config.ErrNoItems
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging with secret sanitization
	verbose := getVerboseFlag(cmd)
	logger := log.NewSecureLogger(os.Stderr, verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := session.Open(cfg.DBDir, session.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	// Pacing overrides must be resolved before the limiter exists: a
	// resumed session's persisted value wins over the config file's
	// per-source override, and an explicit --base-delay wins over both.
	sourceName, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	sessionMillis := 0
	if sessionID != "" {
		snap, err := store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if snap != nil {
			sessionMillis = snap.Config.BaseDelayMillis
			sourceName = snap.Config.Source
		}
	}
	sc := cfg.SourceConfigs.GetSourceConfig(sourceName)
	cfg.BaseDelay = cfg.EffectiveBaseDelay(cmd.Flags().Changed("base-delay"), sessionMillis, sc)
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	limiter := buildLimiter(cfg, logger)
	mgr := batch.NewManager(store, limiter, batch.WithManagerLogger(logger))

	sess, sourceName, err := resolveSession(ctx, cmd, mgr, cfg, sessionID)
	if err != nil {
		return err
	}

	// First signal asks the running session to stop after in-flight items;
	// a second signal cancels outright.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Warn("received shutdown signal, stopping after in-flight items")
		fmt.Fprintln(os.Stderr, "\nStopping... in-flight items will finish. Press Ctrl-C again to abort.")
		mgr.Stop(sess.ID())
		<-sigCh
		cancel()
	}()

	return runSession(ctx, cfg, mgr, sess, sourceName, limiter, logger)
}

// resolveSession resumes the named session or creates a new one.
func resolveSession(ctx context.Context, cmd *cobra.Command, mgr *batch.Manager, cfg *config.Config, sessionID string) (*session.Session, string, error) {
	sourceName, err := cmd.Flags().GetString("source")
	if err != nil {
		return nil, "", err
	}
	sessionType, err := cmd.Flags().GetString("type")
	if err != nil {
		return nil, "", err
	}
	urlTemplate, err := cmd.Flags().GetString("url-template")
	if err != nil {
		return nil, "", err
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, "", err
	}
	retries, err := cmd.Flags().GetInt("retries")
	if err != nil {
		return nil, "", err
	}

	if sessionID != "" {
		sess, err := mgr.GetSession(ctx, sessionID)
		if err == nil {
			// Resuming: the persisted config wins over flags so the session
			// behaves exactly as it did originally.
			return sess, sess.Config().Source, nil
		}
		if !errors.Is(err, batch.ErrSessionNotFound) {
			return nil, "", err
		}
		if len(cfg.Items) == 0 {
			return nil, "", fmt.Errorf("session %s not found and no items given to create it", sessionID)
		}
		// Fall through: a new session with the requested ID.
	}

	sc := cfg.SourceConfigs.GetSourceConfig(sourceName)
	if urlTemplate == "" {
		urlTemplate = sc.URLTemplate
	}
	if urlTemplate == "" {
		return nil, "", fmt.Errorf("no URL template for source %q: use --url-template or configure it in %s", sourceName, config.DefaultConfigFile)
	}
	if sc.MaxRetries > 0 && !cmd.Flags().Changed("retries") {
		retries = sc.MaxRetries
	}

	sessionCfg := model.SessionConfig{
		Source:     sourceName,
		MaxRetries: retries,
		MaxWorkers: workers,
		// Persist the effective pacing so resumed runs reproduce it.
		BaseDelayMillis: int(cfg.BaseDelay.Milliseconds()),
		Options: map[string]string{
			"url_template": urlTemplate,
		},
	}

	sess, err := mgr.CreateSession(ctx, sessionID, sessionType, sessionCfg)
	if err != nil {
		return nil, "", err
	}
	return sess, sourceName, nil
}

// runSession drives the session to completion and reports the outcome.
func runSession(ctx context.Context, cfg *config.Config, mgr *batch.Manager, sess *session.Session, sourceName string, limiter *ratelimit.Limiter, logger *slog.Logger) error {
	sc := cfg.SourceConfigs.GetSourceConfig(sourceName)

	src := source.NewStaticSource(cfg.Items, sess.Config().MaxRetries)
	proc := source.NewHTTPProcessor(limiter,
		source.WithRPSCeiling(cfg.RPSCeiling),
		source.WithMaxBodyBytes(cfg.MaxBodySize),
		source.WithMinBodyBytes(cfg.MinBodySize),
		source.WithExtraHeaders(sc.Headers),
		source.WithHTTPLogger(logger),
	)

	fmt.Printf("Session %s: processing up to %d item(s) with %d worker(s)...\n",
		sess.ID(), max(sess.ItemCount(), len(cfg.Items)), sess.Config().MaxWorkers)
	startTime := time.Now()

	runErr := mgr.Run(ctx, sess, src, proc)

	elapsed := time.Since(startTime)
	sum := sess.Summary()
	fmt.Printf("Session %s %s in %s: %d completed, %d failed, %d pending\n",
		sess.ID(), sum.Status, elapsed.Round(time.Millisecond),
		sum.Progress.CompletedItems, sum.Progress.FailedItems, sum.Progress.PendingItems)

	stats := limiter.Stats()
	logger.Info("limiter state after run",
		"identity", stats.Identity,
		"rotations", stats.Rotations,
		"consecutive_failures", stats.ConsecutiveFailures,
	)

	if err := outputReport(cfg, sess.Snapshot()); err != nil {
		logger.Error("report failed", "session_id", sess.ID(), "error", err)
	}

	return runErr
}

// buildLimiter creates the shared rate limiter from the effective config.
func buildLimiter(cfg *config.Config, logger *slog.Logger) *ratelimit.Limiter {
	opts := []ratelimit.Option{
		ratelimit.WithLimiterLogger(logger),
	}
	if ids := identitiesFromConfig(cfg.SourceConfigs); len(ids) > 0 {
		opts = append(opts, ratelimit.WithIdentities(ids))
	}

	return ratelimit.New(ratelimit.Params{
		BaseDelay:   cfg.BaseDelay,
		JitterRange: cfg.JitterRange,
		MaxDelay:    cfg.MaxDelay,
		BackoffCap:  cfg.BackoffCap,
	}, opts...)
}

// identitiesFromConfig converts config-file identity profiles to the
// limiter's identity type. Returns nil when none are configured, which
// keeps the built-in rotation pool.
func identitiesFromConfig(cf *config.File) []ratelimit.Identity {
	if cf == nil || len(cf.Identities) == 0 {
		return nil
	}

	ids := make([]ratelimit.Identity, 0, len(cf.Identities))
	for _, ic := range cf.Identities {
		ids = append(ids, ratelimit.Identity{
			Name:           ic.Name,
			UserAgent:      ic.UserAgent,
			AcceptLanguage: ic.AcceptLanguage,
			Headers:        ic.Headers,
		})
	}
	return ids
}
