package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sgplan/backup"
	"sgplan/solver"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := Load("", "")

		require.NoError(t, err)
		require.Equal(t, Default(), cfg)
	})

	t.Run("missing file keeps defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), filepath.Join(t.TempDir(), ".env"))

		require.NoError(t, err)
		require.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeFile(t, "sgplan.yaml", `
planner:
  discount: 0.5
  operator: cocoq
  max_iterations: 20
solver:
  nash_max_support_pairs: 10
output:
  trace_dir: traces
log:
  level: debug
`)

		cfg, err := Load(path, "")

		require.NoError(t, err)
		require.Equal(t, 0.5, cfg.Planner.Discount)
		require.Equal(t, "cocoq", cfg.Planner.Operator)
		require.Equal(t, 20, cfg.Planner.MaxIterations)
		require.Equal(t, Default().Planner.MaxDelta, cfg.Planner.MaxDelta, "Unset fields keep their defaults")
		require.Equal(t, "traces", cfg.Output.TraceDir)
		require.Equal(t, "debug", cfg.Log.Level)
		require.Equal(t, solver.NashSolver{MaxSupportPairs: 10, Tolerance: solver.DefaultTolerance}, cfg.NashSolver())
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := writeFile(t, "sgplan.yaml", "planner:\n  operator: cocoq\n")
		t.Setenv("SGPLAN_OPERATOR", "minmax")
		t.Setenv("SGPLAN_EPSILON", "0.3")
		t.Setenv("SGPLAN_SEED", "99")
		t.Setenv("SGPLAN_LOG_PRETTY", "false")

		cfg, err := Load(path, "")

		require.NoError(t, err)
		require.Equal(t, "minmax", cfg.Planner.Operator)
		require.Equal(t, 0.3, cfg.Policy.Epsilon)
		require.Equal(t, uint64(99), cfg.Policy.Seed)
		require.False(t, cfg.Log.Pretty)
	})

	t.Run("env file fills the environment", func(t *testing.T) {
		env := writeFile(t, ".env", "SGPLAN_MAX_ITERATIONS=7\nSGPLAN_OBJECTIVE=egalitarian\n")
		t.Setenv("SGPLAN_MAX_ITERATIONS", "")
		t.Setenv("SGPLAN_OBJECTIVE", "")
		os.Unsetenv("SGPLAN_MAX_ITERATIONS")
		os.Unsetenv("SGPLAN_OBJECTIVE")

		cfg, err := Load("", env)

		require.NoError(t, err)
		require.Equal(t, 7, cfg.Planner.MaxIterations)
		require.Equal(t, "egalitarian", cfg.Planner.Objective)
	})

	t.Run("malformed environment value", func(t *testing.T) {
		t.Setenv("SGPLAN_MAX_DELTA", "tiny")

		_, err := Load("", "")

		require.ErrorContains(t, err, "SGPLAN_MAX_DELTA")
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeFile(t, "sgplan.yaml", "planner: [")

		_, err := Load(path, "")

		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"discount above one":  func(c *Config) { c.Planner.Discount = 1.5 },
		"zero max delta":      func(c *Config) { c.Planner.MaxDelta = 0 },
		"unknown operator":    func(c *Config) { c.Planner.Operator = "bestq" },
		"unknown objective":   func(c *Config) { c.Planner.Objective = "anarchist" },
		"negative epsilon":    func(c *Config) { c.Policy.Epsilon = -0.1 },
		"no iterations":       func(c *Config) { c.Planner.MaxIterations = 0 },
		"bad metrics address": func(c *Config) { c.Metrics.Addr = "not an address" },
		"unknown log level":   func(c *Config) { c.Log.Level = "loud" },
		"no support pairs":    func(c *Config) { c.Solver.NashMaxSupportPairs = 0 },
	}

	require.NoError(t, Default().Validate())
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)

			require.Error(t, cfg.Validate())
		})
	}
}

func TestOperator(t *testing.T) {
	cfg := Default()
	cfg.Planner.Operator = "correlatedq"
	cfg.Planner.Objective = "egalitarian"

	op, err := cfg.Operator()

	require.NoError(t, err)
	require.Equal(t, backup.CorrelatedQ{Objective: solver.Egalitarian}, op)

	cfg.Planner.Operator = "nashq"
	cfg.Solver.NashMaxSupportPairs = 3
	op, err = cfg.Operator()

	require.NoError(t, err)
	require.Equal(t, backup.NashQ{Solver: solver.NashSolver{MaxSupportPairs: 3, Tolerance: solver.DefaultTolerance}}, op)

	cfg.Planner.Objective = "anarchist"
	_, err = cfg.Operator()

	require.Error(t, err)
}

func TestPlannerOptions(t *testing.T) {
	cfg := Default()

	opts, viOpts := cfg.PlannerOptions()

	require.Len(t, opts, 2)
	require.Len(t, viOpts, 2)
}
