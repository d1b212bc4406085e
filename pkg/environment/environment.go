// Package environment loads the runner configuration from flags, CHAOS_* env
// variables and defaults, in that order of precedence.
package environment

import (
	"fmt"
	"strings"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/slo"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CHAOS_RESULTS_DIR
const EnvPrefix = "chaos"

// Keys understood by GetENV, flags use the same names
const (
	ResultsDir        = "results-dir"
	ScenariosDir      = "scenarios-dir"
	ProcMount         = "proc-mount"
	HoldTick          = "hold-tick"
	RevertTimeout     = "revert-timeout"
	StatusTick        = "status-tick"
	ApplyAttempts     = "apply-attempts"
	RetryWait         = "retry-wait"
	RecentLimit       = "recent-limit"
	OTelEndpoint      = "otel-endpoint"
	MetricsAddr       = "metrics-addr"
	LogLevel          = "log-level"
	LogFormat         = "log-format"
	MinSuccessRate    = "slo-min-success-rate"
	MaxRevertFailures = "slo-max-revert-failures"
	MaxRevertP99      = "slo-max-revert-p99"
)

// Config is the runner configuration
type Config struct {
	ResultsDir    string
	ScenariosDir  string
	ProcMount     string
	HoldTick      time.Duration
	RevertTimeout time.Duration
	StatusTick    time.Duration
	ApplyAttempts uint
	RetryWait     time.Duration
	RecentLimit   int
	OTelEndpoint  string
	MetricsAddr   string
	LogLevel      string
	LogFormat     string
	Objectives    slo.Objectives
}

// SetDefaults registers the default of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(ResultsDir, "results")
	v.SetDefault(ScenariosDir, "scenarios")
	v.SetDefault(ProcMount, "/proc")
	v.SetDefault(HoldTick, 100*time.Millisecond)
	v.SetDefault(RevertTimeout, 30*time.Second)
	v.SetDefault(StatusTick, 500*time.Millisecond)
	v.SetDefault(ApplyAttempts, 1)
	v.SetDefault(RetryWait, time.Second)
	v.SetDefault(RecentLimit, 50)
	v.SetDefault(OTelEndpoint, "")
	v.SetDefault(MetricsAddr, "")
	v.SetDefault(LogLevel, "info")
	v.SetDefault(LogFormat, "text")
	v.SetDefault(MinSuccessRate, 0.0)
	v.SetDefault(MaxRevertFailures, 0)
	v.SetDefault(MaxRevertP99, time.Duration(0))
}

// GetENV reads the configuration from v. Flags must already be bound.
func GetENV(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	attempts := v.GetInt(ApplyAttempts)
	if attempts < 1 {
		return Config{}, invalid(ApplyAttempts, "must be at least 1")
	}

	config := Config{
		ResultsDir:    v.GetString(ResultsDir),
		ScenariosDir:  v.GetString(ScenariosDir),
		ProcMount:     v.GetString(ProcMount),
		HoldTick:      v.GetDuration(HoldTick),
		RevertTimeout: v.GetDuration(RevertTimeout),
		StatusTick:    v.GetDuration(StatusTick),
		ApplyAttempts: uint(attempts),
		RetryWait:     v.GetDuration(RetryWait),
		RecentLimit:   v.GetInt(RecentLimit),
		OTelEndpoint:  v.GetString(OTelEndpoint),
		MetricsAddr:   v.GetString(MetricsAddr),
		LogLevel:      v.GetString(LogLevel),
		LogFormat:     v.GetString(LogFormat),
		Objectives: slo.Objectives{
			MinSuccessRate:    v.GetFloat64(MinSuccessRate),
			MaxRevertFailures: v.GetInt(MaxRevertFailures),
			MaxRevertP99:      v.GetDuration(MaxRevertP99),
		},
	}
	return config, config.Validate()
}

// Validate rejects values the runner cannot work with
func (c Config) Validate() error {
	switch {
	case c.HoldTick <= 0:
		return invalid(HoldTick, "must be positive")
	case c.RevertTimeout <= 0:
		return invalid(RevertTimeout, "must be positive")
	case c.StatusTick <= 0:
		return invalid(StatusTick, "must be positive")
	case c.RetryWait < 0:
		return invalid(RetryWait, "must not be negative")
	case c.RecentLimit < 1:
		return invalid(RecentLimit, "must be at least 1")
	case c.ResultsDir == "":
		return invalid(ResultsDir, "must not be empty")
	case c.Objectives.MinSuccessRate < 0 || c.Objectives.MinSuccessRate > 1:
		return invalid(MinSuccessRate, "must be in [0,1]")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid(LogFormat, "must be text or json")
	}
	return nil
}

func invalid(key, reason string) error {
	return cerrors.Generic{Phase: "config", Reason: fmt.Sprintf("%s %s", key, reason)}
}
