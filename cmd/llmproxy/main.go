// Package main is the entry point for the llmproxy server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/llmproxy-dev/llmproxy/internal/accounting"
	"github.com/llmproxy-dev/llmproxy/internal/api"
	"github.com/llmproxy-dev/llmproxy/internal/config"
	"github.com/llmproxy-dev/llmproxy/internal/connector"
	"github.com/llmproxy-dev/llmproxy/internal/dispatcher"
	"github.com/llmproxy-dev/llmproxy/internal/logging"
	"github.com/llmproxy-dev/llmproxy/internal/ratelimit"
	"github.com/llmproxy-dev/llmproxy/internal/session"
	_ "github.com/llmproxy-dev/llmproxy/internal/translator/anthropic"
	_ "github.com/llmproxy-dev/llmproxy/internal/translator/gemini"
	_ "github.com/llmproxy-dev/llmproxy/internal/translator/openai"
	"github.com/llmproxy-dev/llmproxy/internal/watcher"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logging.Setup()

	var configPath string
	var geminiLogin bool
	flag.StringVar(&configPath, "config", "config.yaml", "configuration file path")
	flag.BoolVar(&geminiLogin, "gemini-cli-login", false, "run the Gemini CLI OAuth bootstrap flow and exit")
	flag.Parse()

	log.Infof("llmproxy %s (%s) built %s", Version, Commit, BuildDate)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("startup: loading config: %v", err)
	}
	logging.SetLevel(cfg)
	if cfg.AccountingLog != "" {
		if err := logging.ConfigureOutput(cfg.AccountingLog); err != nil {
			log.Warnf("startup: could not configure log output: %v", err)
		}
	}

	if geminiLogin {
		if err := runGeminiCLILogin(cfg); err != nil {
			log.Fatalf("gemini-cli login failed: %v", err)
		}
		return
	}

	if !cfg.DisableAuth && len(cfg.APIKeys) == 0 {
		key := uuid.NewString()
		api.GenerateAndLogKey(key)
		cfg.APIKeys = []string{key}
	}

	connectors := buildConnectors(cfg)
	keySource := dispatcher.NewStaticKeySource(credentialMap(cfg))
	rateLimits := ratelimit.NewRegistry()
	disp := dispatcher.New(connectors, rateLimits, keySource, cfg.DefaultBackend)

	persister := buildPersister(cfg)
	store := session.NewStore(session.Defaults{
		BackendType:     cfg.DefaultBackend,
		InteractiveMode: cfg.InteractiveMode && !cfg.DisableInteractiveMode,
		FailoverRoutes:  cfg.SessionRoutes(),
	}, persister)

	catalog := api.NewModelCatalog()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	catalog.StartPeriodicRefresh(ctx, connectors, 5*time.Minute)

	sink, closeSink := buildAccountingSink(cfg)

	server := api.NewServer(cfg, store, disp, catalog, keySource, sink)

	w, err := watcher.New(configPath, func(newCfg *config.Config) {
		server.UpdateConfig(newCfg)
		logging.SetLevel(newCfg)
	})
	if err != nil {
		log.Warnf("startup: config watcher disabled: %v", err)
	} else if err := w.Start(ctx); err != nil {
		log.Warnf("startup: config watcher failed to start: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("api server stopped: %v", err)
		}
	case sig := <-sigCh:
		log.Infof("received signal %s, shutting down", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Errorf("graceful shutdown failed: %v", err)
			os.Exit(1)
		}
	}

	if w != nil {
		_ = w.Stop()
	}
	if closeSink != nil {
		closeSink()
	}
}

func buildConnectors(cfg *config.Config) *connector.Set {
	set := connector.NewSet()

	if cfg.OpenRouterAPIBase != "" || len(cfg.OpenRouterAPIKeys) > 0 {
		set.Register(connector.NewOpenRouterConnector(defaultStr(cfg.OpenRouterAPIBase, "https://openrouter.ai/api/v1")))
	}
	if cfg.GeminiAPIBase != "" || len(cfg.GlAPIKey) > 0 {
		set.Register(connector.NewGeminiConnector(defaultStr(cfg.GeminiAPIBase, "https://generativelanguage.googleapis.com")))
	}
	if cfg.OpenAICompatAPIBase != "" {
		set.Register(connector.NewOpenAICompatConnector(cfg.OpenAICompatAPIBase))
	}
	if cfg.GeminiCLIAuthPath != "" {
		if store, err := loadGeminiCLIStoreIfPresent(cfg); err == nil && store != nil {
			set.Register(connector.NewGeminiCLIConnector(store, cfg.GeminiCLIQuotaPath, cfg.GeminiCLIDailyLimit))
		}
	}
	return set
}

func loadGeminiCLIStoreIfPresent(cfg *config.Config) (*connector.OAuthTokenStore, error) {
	if _, err := os.Stat(cfg.GeminiCLIAuthPath); err != nil {
		return nil, err
	}
	closedCh := make(chan string)
	close(closedCh)
	return connector.LoadOrBootstrap(cfg.GeminiCLIAuthPath, geminiOAuthConfig(), closedCh)
}

func credentialMap(cfg *config.Config) map[string][]string {
	m := make(map[string][]string)
	if len(cfg.OpenRouterAPIKeys) > 0 {
		m["openrouter"] = cfg.OpenRouterAPIKeys
	}
	if len(cfg.GlAPIKey) > 0 {
		m["gemini"] = cfg.GlAPIKey
	}
	return m
}

func buildPersister(cfg *config.Config) session.Persister {
	if cfg.SessionDBPath == "" {
		return session.NoopPersister{}
	}
	p, err := session.OpenBoltPersister(cfg.SessionDBPath, func(err error) {
		log.Errorf("session persistence: %v", err)
	})
	if err != nil {
		log.Warnf("startup: session persistence disabled: %v", err)
		return session.NoopPersister{}
	}
	return p
}

// buildAccountingSink returns the accounting sink plus a close func (nil if
// there is nothing to close). Returning accounting.Sink directly, rather
// than a concrete *accounting.ChannelSink that might be a nil pointer,
// avoids handing the API server a non-nil interface wrapping a nil value.
func buildAccountingSink(cfg *config.Config) (accounting.Sink, func()) {
	if cfg.AccountingLog == "" {
		return accounting.NoopSink{}, nil
	}
	f, err := os.OpenFile(cfg.AccountingLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warnf("startup: accounting log disabled: %v", err)
		return accounting.NoopSink{}, nil
	}
	sink := accounting.NewChannelSink(256, func(r accounting.Record) {
		fmt.Fprintf(f, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.Timestamp.Format(time.RFC3339), r.SessionID, r.Backend, r.Model,
			r.PromptTokens, r.CompletionTokens, r.TotalTokens)
	})
	return sink, func() {
		sink.Close()
		_ = f.Close()
	}
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func geminiOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "681255809395-oo8ft2oprdrnp9e3aqf6avd6shbc4ksv.apps.googleusercontent.com",
		ClientSecret: "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",
		RedirectURL:  "http://localhost:8085/oauth2callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/cloud-platform",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}
}

// runGeminiCLILogin captures the OAuth redirect on a local HTTP server and
// drives LoadOrBootstrap to completion.
func runGeminiCLILogin(cfg *config.Config) error {
	codeCh := make(chan string, 1)
	srv := &http.Server{Addr: "localhost:8085"}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		fmt.Fprint(w, "login received, you may close this tab")
		codeCh <- code
	})
	srv.Handler = mux

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("gemini-cli login: callback server: %v", err)
		}
	}()

	path := cfg.GeminiCLIAuthPath
	if path == "" {
		path = "gemini-cli-auth.json"
	}
	_, err := connector.LoadOrBootstrap(path, geminiOAuthConfig(), codeCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if err != nil {
		return err
	}
	log.Infof("gemini-cli login: token saved to %s", path)
	return nil
}
