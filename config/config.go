package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del engine. Se carga una vez al
// arrancar y no se modifica durante la ejecución.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Sanitizer   SanitizerConfig   `yaml:"sanitizer"`
	Costs       CostsConfig       `yaml:"costs"`
	Risk        RiskConfig        `yaml:"risk"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Reasons     ReasonsConfig     `yaml:"reasons"`
	DecisionLog DecisionLogConfig `yaml:"decision_log"`
	Publisher   PublisherConfig   `yaml:"publisher"`
	Storage     StorageConfig     `yaml:"storage"`
	Status      StatusConfig      `yaml:"status"`
	Feed        FeedConfig        `yaml:"feed"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Log         LogConfig         `yaml:"log"`
}

// EngineConfig controla sizing y salidas de posiciones.
type EngineConfig struct {
	InitialCapital            float64 `yaml:"initial_capital"`
	PositionFraction          float64 `yaml:"position_fraction"` // fracción del capital por trade a confianza 1
	MaxPositionsPerInstrument int     `yaml:"max_positions_per_instrument"`
	TakeProfitPct             float64 `yaml:"take_profit_pct"`
	StopLossPct               float64 `yaml:"stop_loss_pct"`
	MaxHoldMinutes            int     `yaml:"max_hold_minutes"` // 0 desactiva el time stop
	OrderType                 string  `yaml:"order_type"`       // market | limit
	HistorySize               int     `yaml:"history_size"`     // 0 = lookback de la estrategia
}

// SanitizerConfig define los umbrales de calidad de datos.
type SanitizerConfig struct {
	MaxLatencyMs      int                `yaml:"max_latency_ms"`
	MaxSpread         float64            `yaml:"max_spread"` // (ask-bid)/mid
	FreshnessWindowMs int                `yaml:"freshness_window_ms"`
	PriceCeiling      float64            `yaml:"price_ceiling"`
	TickSizes         map[string]float64 `yaml:"tick_sizes"` // opcional, por instrumento
}

// CostsConfig es el fee schedule y el modelo de slippage.
type CostsConfig struct {
	Venue             string  `yaml:"venue"`     // binance | kraken | okx
	MakerFee          float64 `yaml:"maker_fee"` // > 0 sobreescribe el schedule del venue
	TakerFee          float64 `yaml:"taker_fee"`
	BaseSlippageBps   float64 `yaml:"base_slippage_bps"`
	ImpactCoefficient float64 `yaml:"impact_coefficient"`
	ReferenceVolume   float64 `yaml:"reference_volume"`
	MinFee            float64 `yaml:"min_fee"`
}

// RiskConfig contiene los límites del Risk Guard.
type RiskConfig struct {
	MaxDrawdown         float64 `yaml:"max_drawdown"`  // techo duro → FREEZE
	WarnFraction        float64 `yaml:"warn_fraction"` // fracción del techo que dispara WARN
	MaxPositionFraction float64 `yaml:"max_position_fraction"`
	MinNotional         float64 `yaml:"min_notional"`
	MaxConcentration    float64 `yaml:"max_concentration"`
	MaxTradesPerWindow  int     `yaml:"max_trades_per_window"` // 0 desactiva el rate limit
	WindowHours         int     `yaml:"window_hours"`
	MaxPositionLoss     float64 `yaml:"max_position_loss"` // pérdida no realizada por posición, fracción del capital
}

// StrategyConfig selecciona la estrategia y sus parámetros.
type StrategyConfig struct {
	Name             string  `yaml:"name"` // liquidation_hunter | mean_reversion
	Window           int     `yaml:"window"`
	TriggerRatio     float64 `yaml:"trigger_ratio"`
	ArmRatio         float64 `yaml:"arm_ratio"`
	MinClusterVolume float64 `yaml:"min_cluster_volume"`
	CooldownTicks    int     `yaml:"cooldown_ticks"`
	FastPeriod       int     `yaml:"fast_period"`
	SlowPeriod       int     `yaml:"slow_period"`
	MinTrendStrength float64 `yaml:"min_trend_strength"`
	BaseConfidence   float64 `yaml:"base_confidence"`
	MinConfidence    float64 `yaml:"min_confidence"`
	ZScoreEntry      float64 `yaml:"zscore_entry"`
}

// ReasonsConfig controla la retención del Reason Tracker.
type ReasonsConfig struct {
	Retention int `yaml:"retention"`
}

// DecisionLogConfig controla el log de decisiones.
type DecisionLogConfig struct {
	Path   string `yaml:"path"`
	NoSync bool   `yaml:"no_sync"` // true desactiva el fsync por entrada
}

// PublisherConfig dimensiona las colas del bus de eventos.
type PublisherConfig struct {
	QueueSize         int `yaml:"queue_size"`
	RateWindowSeconds int `yaml:"rate_window_seconds"`
}

// StorageConfig controla dónde se persisten los runs.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// StatusConfig controla el endpoint HTTP de /metrics y /status.
type StatusConfig struct {
	Addr string `yaml:"addr"` // vacío desactiva el servidor
}

// FeedConfig controla la fuente de ticks en modo paper.
type FeedConfig struct {
	Path          string  `yaml:"path"`
	Format        string  `yaml:"format"`          // jsonl | csv
	RatePerSecond float64 `yaml:"rate_per_second"` // 0 = sin pacing
	Burst         int     `yaml:"burst"`
	QueueSize     int     `yaml:"queue_size"`
}

// BacktestConfig controla los datos sintéticos y el walk-forward.
type BacktestConfig struct {
	Seed          int64   `yaml:"seed"`
	Ticks         int     `yaml:"ticks"`
	Days          int     `yaml:"days"`
	Instrument    string  `yaml:"instrument"`
	StartPrice    float64 `yaml:"start_price"`
	TrainFraction float64 `yaml:"train_fraction"`
	ValidFraction float64 `yaml:"validate_fraction"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// Un path vacío devuelve la configuración por defecto.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Default devuelve la configuración por defecto, sin leer archivos.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// MaxLatency devuelve el techo de latencia como time.Duration.
func (c *Config) MaxLatency() time.Duration {
	return time.Duration(c.Sanitizer.MaxLatencyMs) * time.Millisecond
}

// FreshnessWindow devuelve la ventana de frescura como time.Duration.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Sanitizer.FreshnessWindowMs) * time.Millisecond
}

// MaxHold devuelve el tiempo máximo de una posición abierta.
func (c *Config) MaxHold() time.Duration {
	return time.Duration(c.Engine.MaxHoldMinutes) * time.Minute
}

// RiskWindow devuelve la ventana del rate limit de trades.
func (c *Config) RiskWindow() time.Duration {
	return time.Duration(c.Risk.WindowHours) * time.Hour
}

// Validate rechaza combinaciones que dejarían al engine en un estado sin sentido.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.InitialCapital <= 0 {
		errs = append(errs, errors.New("engine.initial_capital must be > 0"))
	}
	if c.Engine.PositionFraction <= 0 || c.Engine.PositionFraction > 1 {
		errs = append(errs, errors.New("engine.position_fraction must be in (0,1]"))
	}
	if c.Engine.OrderType != "market" && c.Engine.OrderType != "limit" {
		errs = append(errs, fmt.Errorf("engine.order_type %q: want market|limit", c.Engine.OrderType))
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown > 1 {
		errs = append(errs, errors.New("risk.max_drawdown must be in (0,1]"))
	}
	if c.Risk.WarnFraction <= 0 || c.Risk.WarnFraction > 1 {
		errs = append(errs, errors.New("risk.warn_fraction must be in (0,1]"))
	}
	if c.Risk.MaxConcentration <= 0 || c.Risk.MaxConcentration > 1 {
		errs = append(errs, errors.New("risk.max_concentration must be in (0,1]"))
	}
	if c.Sanitizer.MaxSpread <= 0 {
		errs = append(errs, errors.New("sanitizer.max_spread must be > 0"))
	}
	if c.Strategy.FastPeriod >= c.Strategy.SlowPeriod {
		errs = append(errs, errors.New("strategy.fast_period must be < slow_period"))
	}
	if f := c.Backtest.TrainFraction + c.Backtest.ValidFraction; f <= 0 || f >= 1 {
		errs = append(errs, errors.New("backtest train+validate fractions must be in (0,1)"))
	}
	if c.Feed.Format != "jsonl" && c.Feed.Format != "csv" {
		errs = append(errs, fmt.Errorf("feed.format %q: want jsonl|csv", c.Feed.Format))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TRADECORE_DECISION_LOG"); v != "" {
		cfg.DecisionLog.Path = v
	}
	if v := os.Getenv("TRADECORE_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("TRADECORE_STATUS_ADDR"); v != "" {
		cfg.Status.Addr = v
	}
	if v := os.Getenv("TRADECORE_VENUE"); v != "" {
		cfg.Costs.Venue = v
	}
	if v := os.Getenv("TRADECORE_INITIAL_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.InitialCapital = f
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	e := &cfg.Engine
	if e.InitialCapital <= 0 {
		e.InitialCapital = 10_000
	}
	if e.PositionFraction <= 0 {
		e.PositionFraction = 0.1
	}
	if e.MaxPositionsPerInstrument <= 0 {
		e.MaxPositionsPerInstrument = 1
	}
	if e.TakeProfitPct <= 0 {
		e.TakeProfitPct = 0.02
	}
	if e.StopLossPct <= 0 {
		e.StopLossPct = 0.01
	}
	if e.MaxHoldMinutes < 0 {
		e.MaxHoldMinutes = 0
	}
	if e.OrderType == "" {
		e.OrderType = "market"
	}

	s := &cfg.Sanitizer
	if s.MaxLatencyMs <= 0 {
		s.MaxLatencyMs = 2_000
	}
	if s.MaxSpread <= 0 {
		s.MaxSpread = 0.005
	}
	if s.FreshnessWindowMs <= 0 {
		s.FreshnessWindowMs = 5_000
	}
	if s.PriceCeiling <= 0 {
		s.PriceCeiling = 10_000_000
	}

	c := &cfg.Costs
	if c.Venue == "" {
		c.Venue = "binance"
	}
	if c.BaseSlippageBps <= 0 {
		c.BaseSlippageBps = 1
	}
	if c.ImpactCoefficient <= 0 {
		c.ImpactCoefficient = 10
	}
	if c.ReferenceVolume <= 0 {
		c.ReferenceVolume = 1_000_000
	}

	r := &cfg.Risk
	if r.MaxDrawdown <= 0 {
		r.MaxDrawdown = 0.15
	}
	if r.WarnFraction <= 0 {
		r.WarnFraction = 0.8
	}
	if r.MaxPositionFraction <= 0 {
		r.MaxPositionFraction = 0.2
	}
	if r.MinNotional <= 0 {
		r.MinNotional = 10
	}
	if r.MaxConcentration <= 0 {
		r.MaxConcentration = 0.5
	}
	if r.WindowHours <= 0 {
		r.WindowHours = 24
	}
	if r.MaxPositionLoss <= 0 {
		r.MaxPositionLoss = 0.03
	}

	st := &cfg.Strategy
	if st.Name == "" {
		st.Name = "liquidation_hunter"
	}
	if st.Window <= 0 {
		st.Window = 20
	}
	if st.TriggerRatio <= 0 {
		st.TriggerRatio = 0.3
	}
	if st.ArmRatio <= 0 {
		st.ArmRatio = 0.15
	}
	if st.CooldownTicks <= 0 {
		st.CooldownTicks = 30
	}
	if st.FastPeriod <= 0 {
		st.FastPeriod = 10
	}
	if st.SlowPeriod <= 0 {
		st.SlowPeriod = 30
	}
	if st.MinTrendStrength <= 0 {
		st.MinTrendStrength = 0.002
	}
	if st.BaseConfidence <= 0 {
		st.BaseConfidence = 0.5
	}
	if st.MinConfidence <= 0 {
		st.MinConfidence = 0.4
	}
	if st.ZScoreEntry <= 0 {
		st.ZScoreEntry = 2
	}

	if cfg.Reasons.Retention <= 0 {
		cfg.Reasons.Retention = 10_000
	}
	if cfg.DecisionLog.Path == "" {
		cfg.DecisionLog.Path = "decisions.jsonl"
	}
	if cfg.Publisher.QueueSize <= 0 {
		cfg.Publisher.QueueSize = 1024
	}
	if cfg.Publisher.RateWindowSeconds <= 0 {
		cfg.Publisher.RateWindowSeconds = 60
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tradecore.db"
	}
	if cfg.Status.Addr == "" {
		cfg.Status.Addr = ":9090"
	}

	f := &cfg.Feed
	if f.Format == "" {
		f.Format = "jsonl"
	}
	if f.Burst <= 0 {
		f.Burst = 1
	}
	if f.QueueSize <= 0 {
		f.QueueSize = 256
	}

	b := &cfg.Backtest
	if b.Seed == 0 {
		b.Seed = 42
	}
	if b.Ticks <= 0 {
		b.Ticks = 86_400
	}
	if b.Days <= 0 {
		b.Days = 60
	}
	if b.Instrument == "" {
		b.Instrument = "BTC-USDT"
	}
	if b.StartPrice <= 0 {
		b.StartPrice = 30_000
	}
	if b.TrainFraction <= 0 {
		b.TrainFraction = 0.6
	}
	if b.ValidFraction <= 0 {
		b.ValidFraction = 0.2
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
