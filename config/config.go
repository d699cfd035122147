package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"turnover.magictradebot.com/models"
)

// LoadConfig reads the yaml settings file into Settings, on top of Default().
func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	settings := Default()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	Settings = settings
	return nil
}

type ListingSettings struct {
	URL            string `yaml:"url"`
	UserAgent      string `yaml:"userAgent"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type ScraperSettings struct {
	Parallel         bool     `yaml:"parallel"`
	Threads          int      `yaml:"threads"`
	JitterBaseMillis int      `yaml:"jitterBaseMillis"`
	Renderer         string   `yaml:"renderer"` // "chrome", "http"
	PageBaseURL      string   `yaml:"pageBaseURL"`
	TempDir          string   `yaml:"tempDir"`
	ChromePath       string   `yaml:"chromePath"`
	Headless         bool     `yaml:"headless"`
	NavigationRPS    float64  `yaml:"navigationRPS"` // 0 = unlimited
	PageLoadSeconds  int      `yaml:"pageLoadSeconds"`
	TestMode         bool     `yaml:"testMode"`
	TestSymbols      []string `yaml:"testSymbols"`
	OtherSymbolNum   int      `yaml:"otherSymbolNum"`
}

type PolicySettings struct {
	MaxAttempts  int     `yaml:"maxAttempts"`
	DelaySeconds float64 `yaml:"delaySeconds"`
	Escalate     bool    `yaml:"escalate"`
}

type RetrySettings struct {
	Run        PolicySettings `yaml:"run"`
	Navigation PolicySettings `yaml:"navigation"`
	Context    PolicySettings `yaml:"context"`
}

type TableSettings struct {
	Path    string   `yaml:"path"`
	Metrics []string `yaml:"metrics"`
}

// LocatorSettings describes one fallback strategy. Exactly one of CSS or XPath is set.
type LocatorSettings struct {
	Priority int    `yaml:"priority"`
	CSS      string `yaml:"css,omitempty"`
	XPath    string `yaml:"xpath,omitempty"`
	Shape    string `yaml:"shape"` // "amount", "fraction"
}

type GuardSettings struct {
	Enabled        bool   `yaml:"enabled"`
	ProcessName    string `yaml:"processName"`
	CleanupPattern string `yaml:"cleanupPattern"`
}

type AppSettings struct {
	Debug    bool   `yaml:"debug"`
	LogFile  string `yaml:"logFile"`
	Instance string `yaml:"instance"`

	Listing     ListingSettings              `yaml:"listing"`
	Scraper     ScraperSettings              `yaml:"scraper"`
	Retry       RetrySettings                `yaml:"retry"`
	Table       TableSettings                `yaml:"table"`
	Corrections map[string]string            `yaml:"corrections"`
	Locators    map[string][]LocatorSettings `yaml:"locators,omitempty"`
	Guard       GuardSettings                `yaml:"guard"`
	Streaming   StreamingConfig              `yaml:"Streaming"`

	Database struct {
		Enabled          bool   `yaml:"enabled"`
		Provider         string `yaml:"provider"`
		ConnectionString string `yaml:"connectionString"`
	} `yaml:"database"`
}

type StreamingConfig struct {
	Enabled  bool   `yaml:"Enabled"`
	Provider string `yaml:"Provider"`

	Redis struct {
		Address  string `yaml:"Address"`
		Password string `yaml:"Password"`
		DB       int    `yaml:"DB"`
		Stream   string `yaml:"Stream"`
	} `yaml:"Redis"`

	Kafka struct {
		Brokers []string `yaml:"Brokers"`
		Topic   string   `yaml:"Topic"`
	} `yaml:"Kafka"`
}

var Settings = Default()

// Default returns the settings the collector runs with when no file overrides them.
func Default() AppSettings {
	s := AppSettings{
		LogFile:  "application.log",
		Instance: "default",
		Listing: ListingSettings{
			URL: "https://api.coinmarketcap.com/data-api/v3/exchange/market-pairs/latest?" +
				"slug=binance&category=perpetual&start=1&quoteCurrencyId=825&limit=200",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
				"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
			TimeoutSeconds: 10,
		},
		Scraper: ScraperSettings{
			Parallel:         true,
			Threads:          5,
			JitterBaseMillis: 500,
			Renderer:         "chrome",
			PageBaseURL:      "https://coinmarketcap.com",
			TempDir:          "data/temp",
			Headless:         true,
			PageLoadSeconds:  60,
			TestSymbols:      []string{"SXP"},
			OtherSymbolNum:   1,
		},
		Retry: RetrySettings{
			Run:        PolicySettings{MaxAttempts: 2, DelaySeconds: 300, Escalate: true},
			Navigation: PolicySettings{MaxAttempts: 3, DelaySeconds: 2},
			Context:    PolicySettings{MaxAttempts: 3, DelaySeconds: 1},
		},
		Table: TableSettings{
			Path:    "data/cmc_cap_vol_tor.csv",
			Metrics: []string{string(models.MarketCap), string(models.Volume24h), string(models.TurnoverRate)},
		},
		Corrections: map[string]string{
			"KNC": "kyber-network-crystal-v2",
		},
		Guard: GuardSettings{
			Enabled:        true,
			CleanupPattern: "chrom",
		},
	}
	s.Database.Provider = "sqlite"
	s.Database.ConnectionString = "data/turnover.db"
	return s
}

// Validate rejects settings the collector cannot run with.
func (s AppSettings) Validate() error {
	if s.Scraper.Parallel && s.Scraper.Threads < 1 {
		return fmt.Errorf("scraper.threads must be >= 1 in parallel mode, got %d", s.Scraper.Threads)
	}
	if s.Scraper.JitterBaseMillis < 0 {
		return fmt.Errorf("scraper.jitterBaseMillis must not be negative")
	}
	switch strings.ToLower(s.Scraper.Renderer) {
	case "chrome", "http":
	default:
		return fmt.Errorf("unknown scraper.renderer: %s", s.Scraper.Renderer)
	}
	if s.Table.Path == "" {
		return fmt.Errorf("table.path is required")
	}
	if len(s.Table.Metrics) == 0 {
		return fmt.Errorf("table.metrics must name at least one metric")
	}
	for _, m := range s.Table.Metrics {
		if _, ok := models.ParseMetric(m); !ok {
			return fmt.Errorf("unknown metric in table.metrics: %s", m)
		}
	}
	for name, p := range map[string]PolicySettings{
		"run":        s.Retry.Run,
		"navigation": s.Retry.Navigation,
		"context":    s.Retry.Context,
	} {
		if p.MaxAttempts < 1 {
			return fmt.Errorf("retry.%s.maxAttempts must be >= 1", name)
		}
		if p.DelaySeconds < 0 {
			return fmt.Errorf("retry.%s.delaySeconds must not be negative", name)
		}
	}
	for metric, locs := range s.Locators {
		if _, ok := models.ParseMetric(metric); !ok {
			return fmt.Errorf("unknown metric in locators: %s", metric)
		}
		for i, l := range locs {
			if (l.CSS == "") == (l.XPath == "") {
				return fmt.Errorf("locators.%s[%d]: exactly one of css or xpath must be set", metric, i)
			}
		}
	}
	return nil
}

// Metrics returns the configured table metrics in configured order.
func (s AppSettings) Metrics() []models.Metric {
	out := make([]models.Metric, 0, len(s.Table.Metrics))
	for _, m := range s.Table.Metrics {
		if metric, ok := models.ParseMetric(m); ok {
			out = append(out, metric)
		}
	}
	return out
}
