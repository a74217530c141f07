package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Trading  TradingConfig  `yaml:"trading"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Sim      SimConfig      `yaml:"sim"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// TradingConfig controla el tracker y el profit optimizer.
type TradingConfig struct {
	Symbol          string  `yaml:"symbol"`
	PollIntervalMs  int     `yaml:"poll_interval_ms"`
	LossThreshold   float64 `yaml:"loss_threshold"` // USD; cruce dispara recovery
	HistorySize     int     `yaml:"history_size"`
	ReportEverySecs int     `yaml:"report_every_seconds"` // 0 = sin reporte periódico
	ReportTable     bool    `yaml:"report_table"`
}

// RecoveryConfig controla el recovery planner.
type RecoveryConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxAttempts   int `yaml:"max_attempts"`
}

// BridgeConfig apunta al bridge HTTP/websocket del terminal MT5.
type BridgeConfig struct {
	BaseURL   string `yaml:"base_url"`
	StreamURL string `yaml:"stream_url"` // vacío = solo HTTP polling
}

// SimConfig controla el mercado simulado del modo paper.
type SimConfig struct {
	BasePrice  float64 `yaml:"base_price"`
	SpreadPips float64 `yaml:"spread_pips"`
	WalkPips   float64 `yaml:"walk_pips"`
	Slippage   float64 `yaml:"slippage"`
	RejectRate float64 `yaml:"reject_rate"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Trading.PollIntervalMs) * time.Millisecond
}

// ReportInterval devuelve el intervalo de reporte; 0 deshabilita el reporte.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Trading.ReportEverySecs) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOLDBOT_SYMBOL"); v != "" {
		cfg.Trading.Symbol = v
	}
	if v := os.Getenv("GOLDBOT_BRIDGE_URL"); v != "" {
		cfg.Bridge.BaseURL = v
	}
	if v := os.Getenv("GOLDBOT_STREAM_URL"); v != "" {
		cfg.Bridge.StreamURL = v
	}
	if v := os.Getenv("GOLDBOT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("GOLDBOT_LOSS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.LossThreshold = f
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Trading.Symbol == "" {
		cfg.Trading.Symbol = "XAUUSD"
	}
	if cfg.Trading.PollIntervalMs <= 0 {
		cfg.Trading.PollIntervalMs = 1000
	}
	if cfg.Trading.LossThreshold <= 0 {
		cfg.Trading.LossThreshold = 100
	}
	if cfg.Trading.HistorySize <= 0 {
		cfg.Trading.HistorySize = 1000
	}
	if cfg.Recovery.MaxConcurrent <= 0 {
		cfg.Recovery.MaxConcurrent = 3
	}
	if cfg.Recovery.MaxAttempts <= 0 {
		cfg.Recovery.MaxAttempts = 3
	}
	if cfg.Bridge.BaseURL == "" {
		cfg.Bridge.BaseURL = "http://127.0.0.1:8787"
	}
	if cfg.Sim.BasePrice <= 0 {
		cfg.Sim.BasePrice = 2000
	}
	if cfg.Sim.SpreadPips <= 0 {
		cfg.Sim.SpreadPips = 3
	}
	if cfg.Sim.WalkPips <= 0 {
		cfg.Sim.WalkPips = 2
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "goldbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
