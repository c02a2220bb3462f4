package app

import (
	"context"
	"fmt"
	"io"

	"github.com/oshokin/dyst/internal/api/download"
	"github.com/oshokin/dyst/internal/api/github"
	"github.com/oshokin/dyst/internal/classifier"
	"github.com/oshokin/dyst/internal/config"
	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
	"github.com/oshokin/dyst/internal/repository/index"
	"github.com/oshokin/dyst/internal/service/engine"
	"github.com/oshokin/dyst/internal/service/extractor"
	"github.com/oshokin/dyst/internal/service/procwatch"
	"github.com/oshokin/dyst/internal/service/publisher"
	"github.com/oshokin/dyst/internal/service/selector"
	"github.com/oshokin/dyst/internal/service/selfupdate"
	"github.com/oshokin/dyst/internal/version"
)

// Options controls how the application is assembled.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file; the XDG default when empty.
	ConfigPath string
	// LogLevel overrides the configured log level when not empty.
	LogLevel string
	// Progress receives download progress bars; nil disables them.
	Progress io.Writer
}

// App holds the services of one invocation.
type App struct {
	// Config is the validated configuration.
	Config *config.Config
	// Engine drives the package lifecycle.
	Engine *engine.Engine
	// GitHub resolves releases and searches repositories.
	GitHub *github.Client
	// SelfUpdater replaces the dyst executable.
	SelfUpdater *selfupdate.Updater
	// Host is the platform assets are selected for.
	Host selector.Host

	store *index.Store
}

// Open loads the configuration, applies the log level and opens the package index.
// The caller must Close the returned application.
func Open(ctx context.Context, opts *Options) (*App, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if err = applyLogLevel(settings, opts.LogLevel); err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Loaded settings",
		"package_store", settings.PackageStore,
		"binaries_path", settings.BinariesPath,
		"index_path", settings.IndexPath)

	gitHub, err := github.NewClient(
		github.WithToken(settings.GitHubToken),
		github.WithBaseURL(settings.GitHubAPIURL),
		github.WithTimeout(settings.Timeout),
	)
	if err != nil {
		return nil, err
	}

	store, err := index.Open(ctx, settings.IndexPath)
	if err != nil {
		return nil, err
	}

	downloadOptions := []download.Option{
		download.WithRetries(settings.Retries),
		download.WithHeaderTimeout(settings.Timeout),
		download.WithScratchDir(settings.ScratchDir),
	}

	if opts.Progress != nil {
		downloadOptions = append(downloadOptions, download.WithProgress(progressBars(opts.Progress)))
	}

	var (
		host       = selector.DetectHost()
		downloader = download.NewClient(downloadOptions...)
		unpacker   = extractor.New(settings.ScratchDir)
		detector   = classifier.New()
	)

	app := &App{
		Config: settings,
		GitHub: gitHub,
		Host:   host,
		store:  store,
		Engine: engine.New(&engine.Dependencies{
			Layout:     settings.Layout(),
			Host:       host,
			Index:      store,
			Resolver:   gitHub,
			Downloader: downloader,
			Extractor:  unpacker,
			Publisher:  publisher.New(settings.BinariesPath, detector),
			Probe:      procwatch.New(),
		}),
		SelfUpdater: selfupdate.New(&selfupdate.Dependencies{
			Resolver:   gitHub,
			Downloader: downloader,
			Extractor:  unpacker,
			Classifier: detector,
		}),
	}

	return app, nil
}

// Close releases the package index.
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}

	return a.store.Close()
}

// SelfUpdate replaces the running executable with the newest dyst release.
func (a *App) SelfUpdate(ctx context.Context) (*selfupdate.Result, error) {
	repo, err := packages.ParseRepository(a.Config.SelfRepository)
	if err != nil {
		return nil, err
	}

	return a.SelfUpdater.Run(ctx, &selfupdate.Options{
		Repository:     repo,
		Host:           a.Host,
		CurrentVersion: version.Short(),
		ScratchDir:     a.Config.ScratchDir,
	})
}

func applyLogLevel(settings *config.Config, override string) error {
	name := settings.LogLevel
	if override != "" {
		name = override
	}

	level, ok := logger.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("unknown log level %q", name)
	}

	logger.SetLevel(level)

	return nil
}
