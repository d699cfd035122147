package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"turnover.magictradebot.com/config"
	"turnover.magictradebot.com/models"
	"turnover.magictradebot.com/pkg/browser"
	"turnover.magictradebot.com/pkg/cmc"
	"turnover.magictradebot.com/pkg/collector"
	"turnover.magictradebot.com/pkg/db"
	"turnover.magictradebot.com/pkg/extractor"
	"turnover.magictradebot.com/pkg/global"
	"turnover.magictradebot.com/pkg/pipeline"
	"turnover.magictradebot.com/pkg/procguard"
	"turnover.magictradebot.com/pkg/retry"
	"turnover.magictradebot.com/pkg/store"
	"turnover.magictradebot.com/pkg/stream"
	"turnover.magictradebot.com/pkg/utils"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	// 🔒 Panic protection
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("🔥 Panic recovered: %v\n", r)
			code = 2
		}
	}()

	var (
		configPath  string
		envFile     string
		writeConfig string
	)
	flag.StringVar(&configPath, "config", "appsettings.yaml", "settings file")
	flag.StringVar(&envFile, "env", ".env", "optional dotenv file")
	flag.StringVar(&writeConfig, "write-default-config", "", "write the default settings to this path and exit")
	flag.Parse()

	if writeConfig != "" {
		if err := config.SaveConfig(writeConfig, config.Default()); err != nil {
			fmt.Printf("❌ Failed to write config: %v\n", err)
			return 1
		}
		fmt.Printf("📝 Default config written to %s\n", writeConfig)
		return 0
	}

	// ⚙️ Load configuration
	configErr := config.LoadConfig(configPath)
	config.ApplyEnv(envFile)
	settings := config.Settings

	// 🧾 Initialize logger
	loggerResult, _ := config.InitLogger(settings.Debug, settings.LogFile)
	defer loggerResult.Close()
	log := loggerResult.Logger

	if configErr != nil {
		log.WithError(configErr).Warn("⚠️ No settings file loaded, running with defaults")
	} else {
		log.WithField("path", configPath).Info("⚙️ Configuration loaded")
	}
	if err := settings.Validate(); err != nil {
		log.Errorf("❌ Invalid configuration: %v", err)
		return 1
	}

	// 🛡️ Single instance
	guard := procguard.New(log)
	if settings.Guard.Enabled && settings.Guard.ProcessName != "" {
		running, err := guard.AlreadyRunning(settings.Guard.ProcessName)
		if err != nil {
			log.WithError(err).Warn("⚠️ Process check failed, continuing")
		} else if running {
			log.Warn("🛑 Another collector is already running, exiting")
			return 0
		}
	}

	// 🛑 Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	round, cleanup, err := buildRound(ctx, settings, log)
	if err != nil {
		log.Errorf("❌ Startup failed: %v", err)
		return 1
	}
	defer cleanup()

	log.WithFields(logrus.Fields{
		"instance": settings.Instance,
		"parallel": settings.Scraper.Parallel,
		"threads":  settings.Scraper.Threads,
		"renderer": settings.Scraper.Renderer,
		"table":    settings.Table.Path,
	}).Info("📈 Collector started")

	rx := retry.NewExecutor(log)
	err = retry.Do(ctx, rx, "round", policy(settings.Retry.Run), round.Run)

	if settings.Guard.Enabled {
		guard.KillMatching(settings.Guard.CleanupPattern)
	}

	switch {
	case err == nil:
		log.Info("👋 Collector finished")
		return 0
	case errors.Is(err, context.Canceled):
		log.Info("🛑 Shutdown signal received")
		return 130
	case retry.IsFatal(err):
		log.WithError(err).Error("💀 Round failed after every attempt")
		return 1
	default:
		log.WithError(err).Error("❌ Round produced no result")
		return 1
	}
}

// buildRound wires every component of a round from settings. cleanup releases the
// optional side outputs.
func buildRound(ctx context.Context, s config.AppSettings, log *logrus.Logger) (*pipeline.Round, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.Table.Path), 0o755); err != nil {
		return nil, cleanup, fmt.Errorf("create table directory: %w", err)
	}
	if err := os.MkdirAll(s.Scraper.TempDir, 0o755); err != nil {
		return nil, cleanup, fmt.Errorf("create temp directory: %w", err)
	}

	catalog, err := buildCatalog(s)
	if err != nil {
		return nil, cleanup, err
	}

	pageTimeout := time.Duration(s.Scraper.PageLoadSeconds) * time.Second
	var provider browser.Provider
	switch strings.ToLower(s.Scraper.Renderer) {
	case "http":
		provider = browser.NewHTTPProvider(browser.HTTPOptions{
			TempRoot:    s.Scraper.TempDir,
			UserAgent:   s.Listing.UserAgent,
			PageTimeout: pageTimeout,
		}, log)
	default:
		provider = browser.NewChromeProvider(browser.ChromeOptions{
			TempRoot:    s.Scraper.TempDir,
			ExecPath:    s.Scraper.ChromePath,
			UserAgent:   s.Listing.UserAgent,
			Headless:    s.Scraper.Headless,
			PageTimeout: pageTimeout,
			BlockedURLs: browser.DefaultBlockedURLs,
		}, log)
	}

	rx := retry.NewExecutor(log)
	worker := collector.NewWorker(collector.WorkerOptions{
		PageBaseURL:      s.Scraper.PageBaseURL,
		Metrics:          s.Metrics(),
		Catalog:          catalog,
		NavigationPolicy: policy(s.Retry.Navigation),
		ContextPolicy:    policy(s.Retry.Context),
		Instance:         s.Instance,
	}, provider, extractor.New(log), rx, log)
	if s.Scraper.NavigationRPS > 0 {
		worker.WithLimiter(rate.NewLimiter(rate.Limit(s.Scraper.NavigationRPS), 1))
	}

	round := &pipeline.Round{
		Lister:    cmc.NewClient(s.Listing.URL, s.Listing.UserAgent, time.Duration(s.Listing.TimeoutSeconds)*time.Second),
		Corrector: cmc.NewCorrector(s.Corrections, log),
		Batcher:   collector.NewOrchestrator(worker, log),
		Store:     store.NewTable(s.Table.Path, s.Metrics(), log),
		Options: collector.RoundOptions{
			Parallel:   s.Scraper.Parallel,
			Threads:    s.Scraper.Threads,
			JitterBase: time.Duration(s.Scraper.JitterBaseMillis) * time.Millisecond,
		},
		Test: pipeline.TestMode{
			Enabled: s.Scraper.TestMode,
			Symbols: s.Scraper.TestSymbols,
			Others:  s.Scraper.OtherSymbolNum,
		},
		Instance: s.Instance,
		Log:      log,
	}

	// 🗃️ Optional database mirror
	if s.Database.Enabled {
		mirror, err := db.Open(s.Database.Provider, s.Database.ConnectionString, log)
		if err != nil {
			log.WithError(err).Warn("⚠️ Database mirror disabled")
		} else if err := mirror.AutoMigrate(); err != nil {
			log.WithError(err).Warn("⚠️ AutoMigrate failed, database mirror disabled")
			_ = mirror.Close()
		} else {
			round.Mirror = mirror
			closers = append(closers, func() { _ = mirror.Close() })
			log.Info("✅ Database mirror ready")
		}
	}

	// ✅ Validate and initialize streaming
	streamCfg := s.Streaming
	if err := global.ValidateStreamingConfig(streamCfg, log); err != nil {
		return nil, cleanup, err
	}
	if streamCfg.Enabled {
		if err := global.InitStreamingClients(ctx, streamCfg); err != nil {
			log.WithError(err).Warn("⚠️ Streaming disabled")
		} else {
			closers = append(closers, global.ShutdownStreamingClients)
			var kafkaWriter utils.MessageWriter
			if global.KafkaWriter != nil {
				kafkaWriter = global.KafkaWriter
			}
			round.Publisher = stream.NewPublisher(streamCfg, global.RedisClient, kafkaWriter, log)
		}
	}

	return round, cleanup, nil
}

// buildCatalog starts from the built-in cascades and replaces any metric the settings
// define locators for.
func buildCatalog(s config.AppSettings) (extractor.Catalog, error) {
	catalog := extractor.DefaultCatalog()
	for name, specs := range s.Locators {
		metric, _ := models.ParseMetric(name)
		locs := make([]extractor.Locator, 0, len(specs))
		for i, l := range specs {
			loc, err := extractor.NewLocator(l.Priority, l.CSS, l.XPath, l.Shape)
			if err != nil {
				return nil, fmt.Errorf("locators.%s[%d]: %w", name, i, err)
			}
			locs = append(locs, loc)
		}
		catalog.Override(metric, locs)
	}
	return catalog, nil
}

func policy(p config.PolicySettings) retry.Policy {
	return retry.Policy{
		MaxAttempts: p.MaxAttempts,
		Delay:       time.Duration(p.DelaySeconds * float64(time.Second)),
		Escalate:    p.Escalate,
	}
}
