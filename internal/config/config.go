// Package config provides configuration management for the Evo Trader service.
package config

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	DataProvider DataProviderConfig `mapstructure:"data_provider" validate:"required"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Backtest     BacktestConfig     `mapstructure:"backtest" validate:"required"`
	Evolution    EvolutionConfig    `mapstructure:"evolution" validate:"required"`
	Intake       IntakeConfig       `mapstructure:"intake" validate:"required"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"required,gt=0"`
}

// DataProviderConfig represents the historical data provider
type DataProviderConfig struct {
	BaseURL               string  `mapstructure:"base_url" validate:"required,url"`
	StreamURL             string  `mapstructure:"stream_url"`
	APIKey                string  `mapstructure:"api_key"`
	TimeoutSeconds        int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RetryAttempts         int     `mapstructure:"retry_attempts" validate:"gte=0"`
	RateLimitPerSecond    float64 `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	CacheTTLSeconds       int     `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
	MaxRequestsPerCycle   int     `mapstructure:"max_requests_per_cycle" validate:"required,gt=0"`
}

// MemoryConfig represents the optional pattern-memory (MCN) service
type MemoryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	FailureLimit   int    `mapstructure:"failure_limit"`
}

// BacktestConfig represents execution-simulator settings
type BacktestConfig struct {
	InitialCapital       float64 `mapstructure:"initial_capital" validate:"required,gt=0"`
	SlippagePct          float64 `mapstructure:"slippage_pct" validate:"gte=0,lte=0.05"`
	RiskFreeRate         float64 `mapstructure:"risk_free_rate" validate:"gte=0,lte=1"`
	MonteCarloIterations int     `mapstructure:"monte_carlo_iterations" validate:"required,gt=0"`
	MonteCarloSeed       int64   `mapstructure:"monte_carlo_seed"`
	WalkForwardInDays    int     `mapstructure:"walk_forward_in_days" validate:"required,gt=0"`
	WalkForwardOutDays   int     `mapstructure:"walk_forward_out_days" validate:"required,gt=0"`
	WalkForwardStepDays  int     `mapstructure:"walk_forward_step_days" validate:"required,gt=0"`
	WalkForwardMinPeriods int    `mapstructure:"walk_forward_min_periods" validate:"required,gt=0"`
}

// EvolutionConfig represents the evolution scheduler cycle
type EvolutionConfig struct {
	IntervalSeconds      int     `mapstructure:"interval_seconds" validate:"required,gt=0"`
	BatchSize            int     `mapstructure:"batch_size" validate:"required,gt=0"`
	Workers              int     `mapstructure:"workers" validate:"required,gt=0"`
	MaxPopulation        int     `mapstructure:"max_population" validate:"required,gt=0"`
	MutationEveryN       int     `mapstructure:"mutation_every_n" validate:"required,gt=0"`
	MutationWinRateFloor float64 `mapstructure:"mutation_win_rate_floor" validate:"gte=0,lte=1"`
	MaxAttempts          int     `mapstructure:"max_attempts" validate:"required,gt=0"`
	StaleAttemptLimit    int     `mapstructure:"stale_attempt_limit" validate:"required,gt=0"`
	RebacktestAfterDays  int     `mapstructure:"rebacktest_after_days" validate:"required,gt=0"`
	CandleLimit          int     `mapstructure:"candle_limit" validate:"required,gt=0"`
}

// IntakeConfig represents the intake gatekeeper cycle
type IntakeConfig struct {
	IntervalSeconds   int     `mapstructure:"interval_seconds" validate:"required,gt=0"`
	SanityCandleLimit int     `mapstructure:"sanity_candle_limit" validate:"required,gt=0"`
	MinTrades         int     `mapstructure:"min_trades" validate:"required,gt=0"`
	MaxDrawdown       float64 `mapstructure:"max_drawdown" validate:"required,gt=0,lte=1"`
	MinRobustness     float64 `mapstructure:"min_robustness" validate:"gte=0,lte=1"`
	MinEvalCycles     int     `mapstructure:"min_eval_cycles" validate:"required,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
