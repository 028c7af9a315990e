// Package main provides the entry point for the posting agent. The agent
// keeps an X (Twitter) OAuth credential alive, generates content on a
// schedule, and exposes a small management HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/postwing/postwing/internal/api"
	"github.com/postwing/postwing/internal/auth"
	"github.com/postwing/postwing/internal/auth/twitter"
	"github.com/postwing/postwing/internal/buildinfo"
	"github.com/postwing/postwing/internal/cmd"
	"github.com/postwing/postwing/internal/config"
	"github.com/postwing/postwing/internal/llm"
	"github.com/postwing/postwing/internal/logging"
	"github.com/postwing/postwing/internal/scheduler"
	twitterapi "github.com/postwing/postwing/internal/twitter"
	"github.com/postwing/postwing/internal/watcher"
	log "github.com/sirupsen/logrus"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	fmt.Printf("postwing Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var login bool
	var revoke bool
	var noBrowser bool
	var oauthCallbackPort int
	var configPath string

	flag.BoolVar(&login, "login", false, "Run the X OAuth authorization flow and exit")
	flag.BoolVar(&revoke, "revoke", false, "Revoke the stored tokens and exit")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.IntVar(&oauthCallbackPort, "oauth-callback-port", 0, "Override OAuth callback port")
	flag.StringVar(&configPath, "config", "config.yaml", "Configure File Path")
	flag.Parse()

	// Environment overrides (e.g. TWITTER_CLIENT_SECRET) may live in .env.
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	applyEnvOverrides(cfg)

	logging.SetLogLevel(cfg)
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}

	if err = cfg.Twitter.ValidateClientIdentity(); err != nil {
		log.Fatalf("%v", err)
	}

	store := auth.NewTokenStore(cfg.ConfigFilePath)
	if err = store.LoadFromConfig(&cfg.Twitter); err != nil {
		log.Fatalf("failed to load stored credential: %v", err)
	}

	authSvc := twitter.NewTwitterAuth(cfg)
	manager := auth.NewManager(store, authSvc, authSvc, cfg.Twitter.RefreshLead())

	ctx := context.Background()

	switch {
	case login:
		opts := cmd.LoginOptions{NoBrowser: noBrowser, CallbackPort: oauthCallbackPort}
		if err = cmd.DoTwitterLogin(ctx, cfg, store, opts); err != nil {
			log.Fatalf("authorization failed: %v", err)
		}
		return
	case revoke:
		if err = cmd.DoRevoke(ctx, manager); err != nil {
			log.Fatalf("revocation failed: %v", err)
		}
		return
	}

	runAgent(cfg, manager)
}

// runAgent starts the long-running service: scheduler, config watcher, and
// the management HTTP API, then blocks until a shutdown signal arrives.
func runAgent(cfg *config.Config, manager *auth.Manager) {
	if !manager.ValidateCredentials() {
		log.Warn("no usable stored credential; run with -login before the agent can post")
	}
	if cfg.OpenAI.APIKey == "" {
		log.Warn("no LLM api_key configured; post generation is disabled")
	}

	generator := llm.NewClient(cfg)
	client := twitterapi.NewClient(cfg, manager)

	if manager.ValidateCredentials() {
		go func() {
			checkCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if client.TestConnection(checkCtx) {
				log.Info("twitter API connection verified")
			}
		}()
	}

	sched := scheduler.New(generator, client, cfg.Scheduler.TweetTimes)
	sched.Start()

	// Hot reload applies operator-owned fields only. Token fields are
	// rewritten by the agent itself and must not bounce back as changes.
	configWatcher := watcher.New(cfg.ConfigFilePath, func(updated *config.Config) {
		logging.SetLogLevel(updated)
		sched.UpdateSchedule(updated.Scheduler.TweetTimes)
		if updated.OpenAI.PromptTemplate != "" {
			generator.SetPromptTemplate(updated.OpenAI.PromptTemplate)
		}
	})
	if err := configWatcher.Start(); err != nil {
		log.Warnf("config hot reload disabled: %v", err)
		configWatcher = nil
	}

	server := api.NewServer(cfg, api.NewHandlers(manager, client, generator, sched))
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			log.Errorf("%v", err)
		}
	}

	sched.Stop()
	if configWatcher != nil {
		configWatcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown failed: %v", err)
	}
	log.Info("agent stopped")
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config document.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("TWITTER_CLIENT_ID"); v != "" {
		cfg.Twitter.ClientID = v
	}
	if v := os.Getenv("TWITTER_CLIENT_SECRET"); v != "" {
		cfg.Twitter.ClientSecret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
}
