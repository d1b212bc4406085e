// Package scenario reads scenario definitions from YAML or JSON and validates
// them completely, the runner trusts whatever this package returns.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/injector"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/litmuschaos/litmus-scenarios/pkg/target"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Extensions lists the file suffixes LoadDir picks up
var Extensions = []string{".yaml", ".yml", ".json"}

var validate = validator.New()

// duration accepts Go duration strings ("1m30s") and plain numbers of seconds
type duration time.Duration

func (d *duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = duration(seconds * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Errorf("invalid duration '%s'", raw)
	}
	*d = duration(parsed)
	return nil
}

type scenarioDoc struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Duration    duration   `yaml:"duration"`
	Phases      []phaseDoc `yaml:"phases"`
}

type phaseDoc struct {
	Name       string         `yaml:"name"`
	Duration   duration       `yaml:"duration"`
	Mode       string         `yaml:"mode"`
	Injections []injectionDoc `yaml:"injections"`
}

type injectionDoc struct {
	Type       string            `yaml:"type"`
	Target     string            `yaml:"target"`
	Duration   duration          `yaml:"duration"`
	Parameters map[string]string `yaml:"parameters"`
}

// Parse decodes and validates a scenario. JSON documents are accepted as YAML.
func Parse(data []byte) (types.Scenario, error) {
	var doc scenarioDoc
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return types.Scenario{}, cerrors.Parse{Reason: err.Error()}
	}

	scenario := doc.model()
	if err := Validate(scenario); err != nil {
		return types.Scenario{}, err
	}
	return scenario, nil
}

// ParseFile reads and parses the scenario stored at path
func ParseFile(path string) (types.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Scenario{}, cerrors.Parse{Source: path, Reason: err.Error()}
	}
	scenario, err := Parse(data)
	if err != nil {
		var pe cerrors.Parse
		if errors.As(err, &pe) {
			pe.Source = path
			return types.Scenario{}, pe
		}
		return types.Scenario{}, err
	}
	return scenario, nil
}

// Entry is one scenario file found by LoadDir
type Entry struct {
	Path     string
	Scenario types.Scenario
}

// LoadDir parses every scenario file of dir, sorted by file name.
// Invalid files are logged and skipped.
func LoadDir(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list scenarios in %s", dir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	var entries []Entry
	for _, file := range files {
		if file.IsDir() || !hasExtension(file.Name()) {
			continue
		}
		path := filepath.Join(dir, file.Name())
		scenario, err := ParseFile(path)
		if err != nil {
			log.Warnf("[Scenario]: Skipping %s, err: %v", path, err)
			continue
		}
		entries = append(entries, Entry{Path: path, Scenario: scenario})
	}
	return entries, nil
}

func hasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (d scenarioDoc) model() types.Scenario {
	s := types.Scenario{
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Duration:    time.Duration(d.Duration),
		Phases:      make([]types.Phase, 0, len(d.Phases)),
	}
	for _, p := range d.Phases {
		phase := types.Phase{
			Name:       strings.TrimSpace(p.Name),
			Duration:   time.Duration(p.Duration),
			Mode:       types.SchedulingMode(strings.ToLower(p.Mode)),
			Injections: make([]types.Injection, 0, len(p.Injections)),
		}
		for _, i := range p.Injections {
			phase.Injections = append(phase.Injections, types.Injection{
				Type:       types.InjectionKind(strings.ToLower(i.Type)),
				Target:     strings.TrimSpace(i.Target),
				Duration:   time.Duration(i.Duration),
				Parameters: i.Parameters,
			})
		}
		s.Phases = append(s.Phases, phase)
	}
	return s
}

// Validate checks structure, timing, selectors and injector parameters
func Validate(s types.Scenario) error {
	if err := validate.Struct(s); err != nil {
		return structError(err)
	}
	if s.Duration < 0 {
		return cerrors.Parse{Field: "duration", Reason: "must not be negative"}
	}
	for pi, phase := range s.Phases {
		at := fmt.Sprintf("phases[%d]", pi)
		if phase.Duration <= 0 {
			return cerrors.Parse{Field: at + ".duration", Reason: "must be positive"}
		}
		for ii, injection := range phase.Injections {
			at := fmt.Sprintf("%s.injections[%d]", at, ii)
			if err := validateInjection(injection); err != nil {
				return cerrors.Parse{Field: at, Reason: err.Error()}
			}
		}
	}
	return nil
}

func validateInjection(injection types.Injection) error {
	if !injection.Type.Valid() {
		return errors.Errorf("unknown injection type '%s'", injection.Type)
	}
	if injection.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	selector, err := target.ParseSelector(injection.Target)
	if err != nil {
		return err
	}
	if err := target.CheckKind(injection.Type, selector); err != nil {
		return err
	}
	return injector.ValidateParams(injection.Type, injection.Parameters)
}

func structError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return cerrors.Parse{Reason: err.Error()}
	}
	first := verrs[0]
	field := strings.TrimPrefix(first.Namespace(), "Scenario.")
	var reason string
	switch first.Tag() {
	case "required":
		reason = "is required"
	case "min":
		reason = "needs at least " + first.Param() + " entry"
	case "unique":
		reason = "contains duplicate " + strings.ToLower(first.Param()) + "s"
	case "oneof":
		reason = fmt.Sprintf("'%v' is not one of [%s]", first.Value(), first.Param())
	default:
		reason = "failed '" + first.Tag() + "' validation"
	}
	return cerrors.Parse{Field: strings.ToLower(field), Reason: reason}
}
