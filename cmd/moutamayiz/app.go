package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"moutamayiz/internal/backend/realtime"
	"moutamayiz/internal/backend/rest"
	"moutamayiz/internal/cache"
	"moutamayiz/internal/dispatch"
	"moutamayiz/internal/notify"
	"moutamayiz/internal/prefetch"
	"moutamayiz/internal/profile"
	"moutamayiz/internal/session"
	"moutamayiz/internal/unread"
	"moutamayiz/pkg/assist"
	geminiprovider "moutamayiz/pkg/assist/providers/gemini"
	openaiprovider "moutamayiz/pkg/assist/providers/openai"
	"moutamayiz/pkg/moutamayiz"
)

const (
	envConfigFile           = "MOUTAMAYIZ_CONFIG_FILE"
	defaultConfigFilePath   = "config/app.json"
	alternateConfigFilePath = "bin/config/app.json"

	defaultRequestTimeout  = 10 * time.Second
	defaultTeardownTimeout = 10 * time.Second
	defaultPrioritySection = "philosophy_t1_philosophy_article"
)

type appConfig struct {
	logLevel slog.Level

	backendURL     string
	backendKey     string
	realtimeURL    string
	requestTimeout time.Duration

	userID          string
	email           string
	adminEmails     []string
	teardownTimeout time.Duration

	topics          []moutamayiz.Topic
	prioritySection string

	assistProfiles map[string]fileAssistProfile
}

type fileConfig struct {
	LogLevel string `json:"log_level"`

	Backend fileBackendConfig `json:"backend"`
	Session fileSessionConfig `json:"session"`

	Topics          []fileTopic `json:"topics"`
	PrioritySection string      `json:"priority_section"`

	Assist fileAssistConfig `json:"assist"`
}

type fileBackendConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	RealtimeURL    string `json:"realtime_url"`
	RequestTimeout string `json:"request_timeout"`
}

type fileSessionConfig struct {
	UserID          string   `json:"user_id"`
	Email           string   `json:"email"`
	AdminEmails     []string `json:"admin_emails"`
	TeardownTimeout string   `json:"teardown_timeout"`
}

type fileTopic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileAssistConfig struct {
	Profiles map[string]fileAssistProfile `json:"profiles"`
}

type fileAssistProfile struct {
	Provider string   `json:"provider"`
	APIKey   string   `json:"api_key"`
	APIKeys  []string `json:"api_keys"`
	BaseURL  string   `json:"base_url"`
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	slog.SetDefault(logger)

	registry, err := buildAssistRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build assist registry: %w", err)
	}
	if registry != nil {
		logger.Info("assist providers configured", "profiles", len(cfg.assistProfiles))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	querier, err := rest.New(cfg.backendURL, cfg.backendKey, rest.WithTimeout(cfg.requestTimeout))
	if err != nil {
		return fmt.Errorf("new rest client: %w", err)
	}

	pushClient, err := realtime.Dial(ctx, cfg.realtimeURL, cfg.backendKey, realtime.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.teardownTimeout)
		defer cancel()
		if err := pushClient.Close(closeCtx); err != nil {
			logger.Warn("close realtime client", "error", err)
		}
	}()

	manager, err := buildSessionManager(logger, cfg, querier, pushClient)
	if err != nil {
		return err
	}

	if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run session manager: %w", err)
	}

	return nil
}

func buildSessionManager(
	logger *slog.Logger,
	cfg appConfig,
	querier moutamayiz.Querier,
	pushClient moutamayiz.Realtime,
) (*session.Manager, error) {
	store := cache.New()

	resolver, err := profile.New(querier, cfg.adminEmails, profile.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("new profile resolver: %w", err)
	}

	tracker, err := unread.New(querier, unread.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("new unread tracker: %w", err)
	}

	prefetcher, err := prefetch.New(querier, store, cfg.topics, cfg.prioritySection, prefetch.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("new prefetcher: %w", err)
	}

	// Headless runs have no foreground surface, so every delivery takes the
	// system-notification path.
	deliverer, err := notify.New(
		&logPresenter{logger: logger},
		func() bool { return true },
		notify.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("new deliverer: %w", err)
	}

	dispatcher, err := dispatch.New(
		pushClient,
		querier,
		store,
		tracker,
		deliverer,
		cfg.topics,
		dispatch.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("new dispatcher: %w", err)
	}

	auth := &staticAuthWatcher{}
	if cfg.userID != "" {
		auth.session = &moutamayiz.AuthSession{UserID: cfg.userID, Email: cfg.email}
	}

	manager, err := session.New(
		auth,
		resolver,
		store,
		prefetcher,
		tracker,
		dispatcher,
		session.WithLogger(logger),
		session.WithTeardownTimeout(cfg.teardownTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("new session manager: %w", err)
	}

	return manager, nil
}

func buildAssistRegistry(cfg appConfig) (*assist.Registry, error) {
	if len(cfg.assistProfiles) == 0 {
		return nil, nil
	}

	providers := make(map[string]assist.Provider, len(cfg.assistProfiles))
	for name, spec := range cfg.assistProfiles {
		switch spec.Provider {
		case "gemini":
			provider, err := geminiprovider.New(geminiprovider.ProviderConfig{
				APIKeys: spec.APIKeys,
				BaseURL: spec.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("profile %s: %w", name, err)
			}
			providers[name] = provider
		case "openai":
			provider, err := openaiprovider.New(openaiprovider.ProviderConfig{
				APIKey:  spec.APIKey,
				BaseURL: spec.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("profile %s: %w", name, err)
			}
			providers[name] = provider
		default:
			return nil, fmt.Errorf("profile %s: unsupported provider %q", name, spec.Provider)
		}
	}

	return assist.NewRegistry(providers)
}

func loadConfig() (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		requestTimeout:  defaultRequestTimeout,
		teardownTimeout: defaultTeardownTimeout,
		prioritySection: defaultPrioritySection,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	cfg.backendURL = strings.TrimSpace(parsed.Backend.URL)
	cfg.backendKey = strings.TrimSpace(parsed.Backend.APIKey)
	cfg.realtimeURL = strings.TrimSpace(parsed.Backend.RealtimeURL)
	if rawTimeout := strings.TrimSpace(parsed.Backend.RequestTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return fmt.Errorf("parse backend.request_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("parse backend.request_timeout: must be > 0")
		}
		cfg.requestTimeout = timeout
	}

	cfg.userID = strings.TrimSpace(parsed.Session.UserID)
	cfg.email = strings.TrimSpace(parsed.Session.Email)
	cfg.adminEmails = append([]string(nil), parsed.Session.AdminEmails...)
	if rawTimeout := strings.TrimSpace(parsed.Session.TeardownTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return fmt.Errorf("parse session.teardown_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("parse session.teardown_timeout: must be > 0")
		}
		cfg.teardownTimeout = timeout
	}

	cfg.topics = make([]moutamayiz.Topic, 0, len(parsed.Topics))
	for index, topic := range parsed.Topics {
		id := strings.TrimSpace(topic.ID)
		if id == "" {
			return fmt.Errorf("parse topics[%d].id: required", index)
		}
		cfg.topics = append(cfg.topics, moutamayiz.Topic{
			ID:   id,
			Name: strings.TrimSpace(topic.Name),
		})
	}

	if section := strings.TrimSpace(parsed.PrioritySection); section != "" {
		cfg.prioritySection = section
	}

	cfg.assistProfiles = make(map[string]fileAssistProfile, len(parsed.Assist.Profiles))
	for name, spec := range parsed.Assist.Profiles {
		trimmedName := strings.TrimSpace(name)
		if trimmedName == "" {
			return fmt.Errorf("parse assist.profiles: empty profile name")
		}
		spec.Provider = strings.TrimSpace(spec.Provider)
		cfg.assistProfiles[trimmedName] = spec
	}

	return nil
}

func validateAppConfig(cfg *appConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if cfg.backendURL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if cfg.backendKey == "" {
		return fmt.Errorf("backend.api_key is required")
	}
	if cfg.realtimeURL == "" {
		return fmt.Errorf("backend.realtime_url is required")
	}
	if len(cfg.topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	for name, spec := range cfg.assistProfiles {
		switch spec.Provider {
		case "gemini", "openai":
		default:
			return fmt.Errorf("assist.profiles.%s.provider: unsupported provider %q", name, spec.Provider)
		}
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", raw)
	}
}

// staticAuthWatcher reports one fixed identity from the config file. It fires
// the callback once on watch start and never again; interactive shells
// replace it with a real auth client.
type staticAuthWatcher struct {
	session *moutamayiz.AuthSession
}

func (w *staticAuthWatcher) OnAuthChange(
	_ context.Context,
	fn func(*moutamayiz.AuthSession),
) (moutamayiz.Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("watch auth: nil callback")
	}
	if w.session != nil {
		cloned := *w.session
		fn(&cloned)
	}

	return noopSubscription{}, nil
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe(context.Context) error { return nil }

// logPresenter writes deliveries to the log. Desktop and browser shells
// supply real notification surfaces.
type logPresenter struct {
	logger *slog.Logger
}

func (p *logPresenter) SystemNotify(_ context.Context, title, body string) error {
	p.logger.Info("system notification", "title", title, "body", body)
	return nil
}

func (p *logPresenter) Toast(_ context.Context, title string) error {
	p.logger.Info("toast", "title", title)
	return nil
}

func (p *logPresenter) Chime(context.Context) {
	p.logger.Debug("notification chime")
}
