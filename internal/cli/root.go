// Package cli implements the openindex command line interface. Commands
// are thin: they load configuration, wire the stores and services, and
// delegate to the driving ports.
package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/openindex-dev/openindex/internal/adapters/driven/storage/sqlite"
	"github.com/openindex-dev/openindex/internal/breaker"
	"github.com/openindex-dev/openindex/internal/cache"
	"github.com/openindex-dev/openindex/internal/config"
	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/connectors/bitbucket"
	"github.com/openindex-dev/openindex/internal/connectors/dropbox"
	"github.com/openindex-dev/openindex/internal/connectors/github"
	"github.com/openindex-dev/openindex/internal/connectors/gitlab"
	"github.com/openindex-dev/openindex/internal/connectors/googledrive"
	"github.com/openindex-dev/openindex/internal/connectors/localfile"
	"github.com/openindex-dev/openindex/internal/connectors/notion"
	"github.com/openindex-dev/openindex/internal/connectors/weburl"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/services"
	"github.com/openindex-dev/openindex/internal/index/realtime"
	"github.com/openindex-dev/openindex/internal/logger"
	"github.com/openindex-dev/openindex/internal/monitor"
)

var (
	configDir   string
	verboseFlag bool
	userFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "openindex",
	Short: "Index and search documents from connected providers",
	Long: `openindex syncs documents from code hosts, drives, Notion, local
directories and web pages into a local search index.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default $HOME/.openindex)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "default", "user id owning the accounts")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app holds the wired services behind the commands.
type app struct {
	cfg      *config.Config
	store    *sqlite.Store
	registry *connectors.Registry
	metrics  *monitor.Monitor
	index    *realtime.Index

	orchestrator *services.SyncOrchestrator
	accounts     *services.AccountService
	search       *services.SearchService
}

// openApp loads config and wires the full service graph. Callers must
// Close it.
func openApp() (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		logger.SetVerbose(true)
	}

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	registry := buildRegistry(cfg)
	metrics := monitor.New()
	index := realtime.New(store.FullTextIndex())
	docCache := cache.New[domain.Document](cacheConfig(cfg))

	orchestrator := services.NewSyncOrchestrator(
		store.AccountStore(), store.DocumentStore(), store.EmbeddingQueue(),
		registry, index, docCache,
		services.WithMonitor(metrics),
		services.WithSyncTimeout(time.Duration(cfg.Sync.TimeoutSeconds)*time.Second),
		services.WithRetryConfig(services.RetryConfig{MaxAttempts: cfg.Sync.RetryMaxAttempts}),
		services.WithBreakerConfig(breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			OpenTimeout:      time.Duration(cfg.Breaker.OpenTimeoutSeconds) * time.Second,
		}),
	)

	return &app{
		cfg:          cfg,
		store:        store,
		registry:     registry,
		metrics:      metrics,
		index:        index,
		orchestrator: orchestrator,
		accounts:     services.NewAccountService(store.AccountStore(), registry),
		search:       services.NewSearchService(index, metrics),
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() error {
	return a.store.Close()
}

// buildRegistry registers every provider, passing each its OAuth app
// settings from config.
func buildRegistry(cfg *config.Config) *connectors.Registry {
	r := connectors.NewRegistry()

	gh := cfg.Provider("github")
	r.Register(domain.ProviderGitHub, github.NewFactory(github.WithOAuthClient(gh.ClientID, gh.ClientSecret)))

	gl := cfg.Provider("gitlab")
	r.Register(domain.ProviderGitLab, gitlab.NewFactory(gitlab.WithOAuthClient(gl.ClientID, gl.ClientSecret)))

	bb := cfg.Provider("bitbucket")
	r.Register(domain.ProviderBitbucket, bitbucket.NewFactory(bitbucket.WithOAuthClient(bb.ClientID, bb.ClientSecret)))

	gd := cfg.Provider("googledrive")
	r.Register(domain.ProviderGoogleDrive, googledrive.NewFactory(googledrive.WithOAuthClient(gd.ClientID, gd.ClientSecret)))

	db := cfg.Provider("dropbox")
	r.Register(domain.ProviderDropbox, dropbox.NewFactory(dropbox.WithOAuthClient(db.ClientID, db.ClientSecret)))

	nt := cfg.Provider("notion")
	r.Register(domain.ProviderNotion, notion.NewFactory(notion.WithOAuthClient(nt.ClientID, nt.ClientSecret)))

	r.Register(domain.ProviderLocalFile, localfile.NewFactory())
	r.Register(domain.ProviderWebURL, weburl.NewFactory())
	return r
}

func cacheConfig(cfg *config.Config) cache.Config {
	c := cache.DefaultConfig()
	if cfg.Cache.L1MaxEntries > 0 {
		c.L1MaxEntries = cfg.Cache.L1MaxEntries
	}
	if cfg.Cache.L2MaxEntries > 0 {
		c.L2MaxEntries = cfg.Cache.L2MaxEntries
	}
	if cfg.Cache.CompressionThreshold > 0 {
		c.CompressionThreshold = cfg.Cache.CompressionThreshold
	}
	if cfg.Cache.TTLSeconds > 0 {
		c.TTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second
	}
	return c
}
