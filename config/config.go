// Package config loads planner settings from defaults, an optional YAML file, an optional
// .env file and SGPLAN_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sgplan/backup"
	"sgplan/planner"
	"sgplan/qsource"
	"sgplan/solver"
)

type Config struct {
	Planner PlannerConfig `yaml:"planner"`
	Solver  SolverConfig  `yaml:"solver"`
	Policy  PolicyConfig  `yaml:"policy"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type PlannerConfig struct {
	Discount      float64 `yaml:"discount" validate:"gte=0,lte=1"`
	QInit         float64 `yaml:"q_init"`
	MaxDelta      float64 `yaml:"max_delta" validate:"gt=0"`
	MaxIterations int     `yaml:"max_iterations" validate:"gte=1"`
	Operator      string  `yaml:"operator" validate:"oneof=maxq minmax nashq cocoq correlatedq"`
	Objective     string  `yaml:"objective" validate:"oneof=utilitarian egalitarian republican libertarian"`
}

type SolverConfig struct {
	NashMaxSupportPairs int     `yaml:"nash_max_support_pairs" validate:"gte=1"`
	Tolerance           float64 `yaml:"tolerance" validate:"gt=0"`
}

type PolicyConfig struct {
	Epsilon float64 `yaml:"epsilon" validate:"gte=0,lte=1"`
	Seed    uint64  `yaml:"seed"`
}

type OutputConfig struct {
	TraceDir    string `yaml:"trace_dir"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

func Default() Config {
	return Config{
		Planner: PlannerConfig{
			Discount:      planner.DefaultDiscount,
			MaxDelta:      planner.DefaultMaxDelta,
			MaxIterations: planner.DefaultMaxIterations,
			Operator:      "nashq",
			Objective:     solver.Utilitarian.String(),
		},
		Solver: SolverConfig{
			NashMaxSupportPairs: solver.DefaultMaxSupportPairs,
			Tolerance:           solver.DefaultTolerance,
		},
		Policy: PolicyConfig{
			Epsilon: 0.1,
			Seed:    1,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load merges defaults, the YAML file at path and the environment. An empty path or a
// missing file keeps the defaults; envFile, when non-empty and present, is loaded into
// the process environment first without overriding variables that are already set.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env file: %w", err)
		}
	}

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) error {
	floats := map[string]*float64{
		"SGPLAN_DISCOUNT":         &cfg.Planner.Discount,
		"SGPLAN_Q_INIT":           &cfg.Planner.QInit,
		"SGPLAN_MAX_DELTA":        &cfg.Planner.MaxDelta,
		"SGPLAN_SOLVER_TOLERANCE": &cfg.Solver.Tolerance,
		"SGPLAN_EPSILON":          &cfg.Policy.Epsilon,
	}
	for name, dst := range floats {
		if v := os.Getenv(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"SGPLAN_MAX_ITERATIONS":         &cfg.Planner.MaxIterations,
		"SGPLAN_NASH_MAX_SUPPORT_PAIRS": &cfg.Solver.NashMaxSupportPairs,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = i
		}
	}

	strs := map[string]*string{
		"SGPLAN_OPERATOR":     &cfg.Planner.Operator,
		"SGPLAN_OBJECTIVE":    &cfg.Planner.Objective,
		"SGPLAN_TRACE_DIR":    &cfg.Output.TraceDir,
		"SGPLAN_SNAPSHOT_DIR": &cfg.Output.SnapshotDir,
		"SGPLAN_METRICS_ADDR": &cfg.Metrics.Addr,
		"SGPLAN_LOG_LEVEL":    &cfg.Log.Level,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("SGPLAN_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SGPLAN_SEED: %w", err)
		}
		cfg.Policy.Seed = seed
	}
	if v := os.Getenv("SGPLAN_LOG_PRETTY"); v != "" {
		cfg.Log.Pretty = v == "true" || v == "1"
	}
	return nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NashSolver builds the configured Nash solver.
func (c Config) NashSolver() solver.NashSolver {
	return solver.NashSolver{
		MaxSupportPairs: c.Solver.NashMaxSupportPairs,
		Tolerance:       c.Solver.Tolerance,
	}
}

// Operator builds the configured backup operator.
func (c Config) Operator() (backup.Operator, error) {
	objective, err := solver.ParseObjective(c.Planner.Objective)
	if err != nil {
		return nil, err
	}
	return backup.Parse(c.Planner.Operator, objective, c.NashSolver())
}

// PlannerOptions turns the planner section into planner and value iteration options.
func (c Config) PlannerOptions() ([]planner.Option, []planner.VIOption) {
	return []planner.Option{
			planner.WithDiscount(c.Planner.Discount),
			planner.WithQInit(qsource.ConstantInit(c.Planner.QInit)),
		}, []planner.VIOption{
			planner.WithMaxDelta(c.Planner.MaxDelta),
			planner.WithMaxIterations(c.Planner.MaxIterations),
		}
}
