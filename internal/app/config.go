package app

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/params"
)

// Duration wraps time.Duration so YAML configs can say "10s" or a bare
// number of seconds.
type Duration time.Duration

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts either a Go duration string ("1m30s") or an
// integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err == nil {
		*d = Duration(parsed)
		return nil
	}
	secs, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML emits the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ScoringConfig tunes the weighted scoring stage.
type ScoringConfig struct {
	WeightGammaRegime float64 `yaml:"weight_gamma_regime" validate:"gte=0,lte=1"`
	WeightBreakWall   float64 `yaml:"weight_break_wall" validate:"gte=0,lte=1"`
	WeightDirection   float64 `yaml:"weight_direction" validate:"gte=0,lte=1"`
	WeightIV          float64 `yaml:"weight_iv" validate:"gte=0,lte=1"`

	// Gap-to-wall distances as EM1 multiples.
	BreakWallLow  float64 `yaml:"break_wall_low" validate:"gt=0"`
	BreakWallHigh float64 `yaml:"break_wall_high" validate:"gt=0"`

	// Gamma wall cluster strength boundaries.
	ClusterTrend  float64 `yaml:"cluster_trend" validate:"gte=0"`
	ClusterStrong float64 `yaml:"cluster_strong" validate:"gte=0"`

	// Dealer-delta same-direction percentages.
	DexStrong float64 `yaml:"dex_strong" validate:"gte=0,lte=100"`
	DexMedium float64 `yaml:"dex_medium" validate:"gte=0,lte=100"`
	DexWeak   float64 `yaml:"dex_weak" validate:"gte=0,lte=100"`

	// Entry gate thresholds.
	EntryScore       float64 `yaml:"entry_score" validate:"gte=0,lte=10"`
	EntryProbability float64 `yaml:"entry_probability" validate:"gte=0,lte=100"`

	// Minimum score move before update mode recomputes the strategy.
	StrategyRerunScoreDelta float64 `yaml:"strategy_rerun_score_delta" validate:"gte=0"`
}

// EventsConfig tunes calendar windows and threshold-event boundaries.
type EventsConfig struct {
	VixPanic   float64 `yaml:"vix_panic" validate:"gt=0"`
	VixCalm    float64 `yaml:"vix_calm" validate:"gt=0"`
	IVRHigh    float64 `yaml:"ivr_high" validate:"gte=0,lte=100"`
	IVRLow     float64 `yaml:"ivr_low" validate:"gte=0,lte=100"`
	VRPSqueeze float64 `yaml:"vrp_squeeze" validate:"gt=0"`
	VRPGrind   float64 `yaml:"vrp_grind" validate:"gt=0"`

	OpexLookbackDays  int `yaml:"opex_lookback_days" validate:"gte=0"`
	OpexLookaheadDays int `yaml:"opex_lookahead_days" validate:"gte=0"`
	OpexNearDays      int `yaml:"opex_near_days" validate:"gte=0"`
	FomcLookaheadDays int `yaml:"fomc_lookahead_days" validate:"gte=0"`
	FomcNearDays      int `yaml:"fomc_near_days" validate:"gte=0"`

	MaxDTEDefault  int `yaml:"max_dte_default" validate:"gt=0"`
	MaxDTEEarnings int `yaml:"max_dte_earnings" validate:"gt=0"`
	MinDTE         int `yaml:"min_dte" validate:"gt=0"`
}

// WinProbConfig holds the hybrid win-probability inputs for one structure
// family. All values are percentages.
type WinProbConfig struct {
	Base        float64 `yaml:"base" validate:"gte=0,lte=100"`
	Theoretical float64 `yaml:"theoretical" validate:"gte=0,lte=100"`
	Min         float64 `yaml:"min" validate:"gte=0,lte=100"`
	Max         float64 `yaml:"max" validate:"gte=0,lte=100"`
}

// StrategyConfig tunes the strategy recommendation stage.
type StrategyConfig struct {
	BucketDebit  float64 `yaml:"bucket_debit"`
	BucketCredit float64 `yaml:"bucket_credit"`
	BucketCondor float64 `yaml:"bucket_condor"`

	WinProbCredit WinProbConfig `yaml:"win_prob_credit"`
	WinProbDebit  WinProbConfig `yaml:"win_prob_debit"`

	// Percentage points removed from win probability under high event risk.
	EventRiskPenalty float64 `yaml:"event_risk_penalty" validate:"gte=0"`

	ProfitTargetCreditPct float64 `yaml:"profit_target_credit_pct" validate:"gte=0"`
	ProfitTargetDebitPct  float64 `yaml:"profit_target_debit_pct" validate:"gte=0"`
	StopLossCreditPct     float64 `yaml:"stop_loss_credit_pct" validate:"gte=0"`
	StopLossDebitPct      float64 `yaml:"stop_loss_debit_pct" validate:"gte=0"`

	DefaultStrikes int     `yaml:"default_strikes" validate:"gt=0"`
	EM1SqrtFactor  float64 `yaml:"em1_sqrt_factor" validate:"gt=0"`
}

// CompareConfig tunes the snapshot comparison stage.
type CompareConfig struct {
	MaterialChangePct float64 `yaml:"material_change_pct" validate:"gte=0"`
}

// Config is the full runtime configuration. Values resolve in three layers:
// built-in defaults, then ~/.swingq/swingq.yaml, then SWINGQ_* environment
// variables.
type Config struct {
	Home      string   `yaml:"home"`
	LogLevel  string   `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	LogPretty bool     `yaml:"log_pretty"`
	LockTO    Duration `yaml:"lock_timeout"`
	LockStale Duration `yaml:"lock_stale_ttl"`

	Scoring  ScoringConfig  `yaml:"scoring"`
	Events   EventsConfig   `yaml:"events"`
	Strategy StrategyConfig `yaml:"strategy"`
	Compare  CompareConfig  `yaml:"compare"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogPretty: true,
		LockTO:    Duration(10 * time.Second),
		LockStale: Duration(10 * time.Minute),
		Scoring: ScoringConfig{
			WeightGammaRegime:       0.4,
			WeightBreakWall:         0.3,
			WeightDirection:         0.2,
			WeightIV:                0.1,
			BreakWallLow:            0.4,
			BreakWallHigh:           0.8,
			ClusterTrend:            1.2,
			ClusterStrong:           2.0,
			DexStrong:               70,
			DexMedium:               60,
			DexWeak:                 50,
			EntryScore:              3,
			EntryProbability:        60,
			StrategyRerunScoreDelta: 0.5,
		},
		Events: EventsConfig{
			VixPanic:          25,
			VixCalm:           15,
			IVRHigh:           80,
			IVRLow:            30,
			VRPSqueeze:        1.15,
			VRPGrind:          0.90,
			OpexLookbackDays:  5,
			OpexLookaheadDays: 14,
			OpexNearDays:      7,
			FomcLookaheadDays: 30,
			FomcNearDays:      7,
			MaxDTEDefault:     14,
			MaxDTEEarnings:    7,
			MinDTE:            3,
		},
		Strategy: StrategyConfig{
			BucketDebit:           7.5,
			BucketCredit:          5.5,
			BucketCondor:          3.5,
			WinProbCredit:         WinProbConfig{Base: 50, Theoretical: 65, Min: 40, Max: 85},
			WinProbDebit:          WinProbConfig{Base: 30, Theoretical: 45, Min: 25, Max: 75},
			EventRiskPenalty:      5,
			ProfitTargetCreditPct: 30,
			ProfitTargetDebitPct:  60,
			StopLossCreditPct:     150,
			StopLossDebitPct:      50,
			DefaultStrikes:        25,
			EM1SqrtFactor:         0.06299,
		},
		Compare: CompareConfig{MaterialChangePct: 10.0},
	}
}

// LoadOptions selects where configuration is read from. Zero values mean
// "use the default location".
type LoadOptions struct {
	Home string // overrides $SWINGQ_HOME and ~/.swingq
	File string // overrides <home>/swingq.yaml
}

// Load assembles the effective configuration: defaults, then the YAML file,
// then environment variables. A missing config file is not an error; a
// malformed one is.
func Load(opts LoadOptions) (Config, Paths, error) {
	// Optional .env in the working directory, mirroring how operators keep
	// per-checkout settings. Absence is fine.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	home := opts.Home
	if home == "" {
		home = DefaultHome()
	}
	paths := ResolvePaths(home)

	file := opts.File
	if file == "" {
		file = paths.Config
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, paths, fmt.Errorf("parse config %s: %w", file, err)
		}
	case os.IsNotExist(err):
		// defaults apply
	default:
		return cfg, paths, fmt.Errorf("read config %s: %w", file, err)
	}

	// home from the YAML file never relocates the tree the file was read
	// from; the flag and environment variable decide that.
	cfg.Home = home
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, paths, err
	}
	return cfg, paths, nil
}

func applyEnv(cfg *Config) {
	if v := getEnv("SWINGQ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := getEnvBool("SWINGQ_LOG_PRETTY"); ok {
		cfg.LogPretty = v
	}
	if v, ok := getEnvDuration("SWINGQ_LOCK_TIMEOUT"); ok {
		cfg.LockTO = Duration(v)
	}
	if v, ok := getEnvDuration("SWINGQ_LOCK_STALE_TTL"); ok {
		cfg.LockStale = Duration(v)
	}
	if v, ok := getEnvFloat("SWINGQ_MATERIAL_CHANGE_PCT"); ok {
		cfg.Compare.MaterialChangePct = v
	}
	if v, ok := getEnvFloat("SWINGQ_STRATEGY_RERUN_SCORE_DELTA"); ok {
		cfg.Scoring.StrategyRerunScoreDelta = v
	}
	if v, ok := getEnvFloat("SWINGQ_ENTRY_SCORE"); ok {
		cfg.Scoring.EntryScore = v
	}
	if v, ok := getEnvFloat("SWINGQ_ENTRY_PROBABILITY"); ok {
		cfg.Scoring.EntryProbability = v
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getEnvBool(key string) (bool, bool) {
	raw := getEnv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func getEnvFloat(key string) (float64, bool) {
	raw := getEnv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvDuration(key string) (time.Duration, bool) {
	raw := getEnv(key)
	if raw == "" {
		return 0, false
	}
	if v, err := time.ParseDuration(raw); err == nil {
		return v, true
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

var validate = validator.New()

// Validate checks field ranges plus the cross-field rules the struct tags
// cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config validation failed: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	sum := c.Scoring.WeightGammaRegime + c.Scoring.WeightBreakWall +
		c.Scoring.WeightDirection + c.Scoring.WeightIV
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("config validation failed: scoring weights sum to %.4f, want 1.0", sum)
	}
	if c.LockTO <= 0 {
		return fmt.Errorf("config validation failed: lock_timeout must be positive")
	}
	if c.Scoring.BreakWallLow >= c.Scoring.BreakWallHigh {
		return fmt.Errorf("config validation failed: break_wall_low must be below break_wall_high")
	}
	if c.Events.MinDTE > c.Events.MaxDTEDefault {
		return fmt.Errorf("config validation failed: min_dte exceeds max_dte_default")
	}
	return nil
}

// CalcThresholds maps the event boundaries onto the scenario matrix inputs.
func (c Config) CalcThresholds() market.CalcThresholds {
	return market.CalcThresholds{
		VRPSqueeze: c.Events.VRPSqueeze,
		VRPGrind:   c.Events.VRPGrind,
		IVRHigh:    c.Events.IVRHigh,
		IVRLow:     c.Events.IVRLow,
		VixPanic:   c.Events.VixPanic,
		VixCalm:    c.Events.VixCalm,
	}
}

// ParamDefaults exposes the analysis tunables as the bottom layer of the
// run-time parameter resolution. Every stage reads its thresholds from the
// resolved set, so a --set override can retune any of these per run.
func (c Config) ParamDefaults() params.Set {
	return params.Set{
		"scoring": map[string]any{
			"weights": map[string]any{
				"gamma_regime": c.Scoring.WeightGammaRegime,
				"break_wall":   c.Scoring.WeightBreakWall,
				"direction":    c.Scoring.WeightDirection,
				"iv":           c.Scoring.WeightIV,
			},
			"break_wall": map[string]any{
				"low":  c.Scoring.BreakWallLow,
				"high": c.Scoring.BreakWallHigh,
			},
			"cluster": map[string]any{
				"trend":  c.Scoring.ClusterTrend,
				"strong": c.Scoring.ClusterStrong,
			},
			"dex": map[string]any{
				"strong": c.Scoring.DexStrong,
				"medium": c.Scoring.DexMedium,
				"weak":   c.Scoring.DexWeak,
			},
			"entry": map[string]any{
				"score":       c.Scoring.EntryScore,
				"probability": c.Scoring.EntryProbability,
			},
			"strategy_rerun_score_delta": c.Scoring.StrategyRerunScoreDelta,
		},
		"events": map[string]any{
			"vix": map[string]any{"panic": c.Events.VixPanic, "calm": c.Events.VixCalm},
			"ivr": map[string]any{"high": c.Events.IVRHigh, "low": c.Events.IVRLow},
			"vrp": map[string]any{"squeeze": c.Events.VRPSqueeze, "grind": c.Events.VRPGrind},
			"opex": map[string]any{
				"lookback_days":  float64(c.Events.OpexLookbackDays),
				"lookahead_days": float64(c.Events.OpexLookaheadDays),
				"near_days":      float64(c.Events.OpexNearDays),
			},
			"fomc": map[string]any{
				"lookahead_days": float64(c.Events.FomcLookaheadDays),
				"near_days":      float64(c.Events.FomcNearDays),
			},
			"max_dte": map[string]any{
				"default":  float64(c.Events.MaxDTEDefault),
				"earnings": float64(c.Events.MaxDTEEarnings),
				"min":      float64(c.Events.MinDTE),
			},
		},
		"strategy": map[string]any{
			"buckets": map[string]any{
				"debit":  c.Strategy.BucketDebit,
				"credit": c.Strategy.BucketCredit,
				"condor": c.Strategy.BucketCondor,
			},
			"win_prob": map[string]any{
				"credit": map[string]any{
					"base":        c.Strategy.WinProbCredit.Base,
					"theoretical": c.Strategy.WinProbCredit.Theoretical,
					"min":         c.Strategy.WinProbCredit.Min,
					"max":         c.Strategy.WinProbCredit.Max,
				},
				"debit": map[string]any{
					"base":        c.Strategy.WinProbDebit.Base,
					"theoretical": c.Strategy.WinProbDebit.Theoretical,
					"min":         c.Strategy.WinProbDebit.Min,
					"max":         c.Strategy.WinProbDebit.Max,
				},
				"event_risk_penalty": c.Strategy.EventRiskPenalty,
			},
			"profit_target": map[string]any{
				"credit_pct": c.Strategy.ProfitTargetCreditPct,
				"debit_pct":  c.Strategy.ProfitTargetDebitPct,
			},
			"stop_loss": map[string]any{
				"credit_pct": c.Strategy.StopLossCreditPct,
				"debit_pct":  c.Strategy.StopLossDebitPct,
			},
			"strikes": map[string]any{
				"default": float64(c.Strategy.DefaultStrikes),
			},
			"em1_sqrt_factor": c.Strategy.EM1SqrtFactor,
		},
		"compare": map[string]any{
			"material_change_pct": c.Compare.MaterialChangePct,
		},
	}
}
