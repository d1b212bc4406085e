// Package result persists scenario results as JSON files and prints them.
package result

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kyokomi/emoji"
	"github.com/litmuschaos/litmus-scenarios/pkg/cerrors"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/litmuschaos/litmus-scenarios/pkg/utils/stringutils"
	"github.com/pkg/errors"
)

const timestampLayout = "20060102_150405"

// Sink receives completed results
type Sink interface {
	Save(r types.ScenarioResult) (types.ResultSummary, error)
}

// FileStore keeps one indented JSON file per run under Dir
type FileStore struct {
	Dir string
	// Now stamps file names, time.Now when nil
	Now func() time.Time
}

// NewFileStore returns a store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Save writes r as <slug>_<YYYYmmdd_HHMMSS>.json. A numeric suffix is added
// when a file of the same name already exists.
func (s *FileStore) Save(r types.ScenarioResult) (types.ResultSummary, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return types.ResultSummary{}, errors.Wrapf(err, "unable to create results dir %s", s.Dir)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return types.ResultSummary{}, errors.Wrap(err, "unable to encode result")
	}

	base := stringutils.Slug(r.ScenarioName) + "_" + s.now().UTC().Format(timestampLayout)
	id := base
	for n := 2; ; n++ {
		path := filepath.Join(s.Dir, id+".json")
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			id = fmt.Sprintf("%s_%d", base, n)
			continue
		}
		if err != nil {
			return types.ResultSummary{}, errors.Wrapf(err, "unable to create %s", path)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return types.ResultSummary{}, errors.Wrapf(err, "unable to write %s", path)
		}
		if err := f.Close(); err != nil {
			return types.ResultSummary{}, errors.Wrapf(err, "unable to write %s", path)
		}
		log.Infof("[Result]: Saved the result of %s in %s", r.ScenarioName, path)
		return types.Summarize(id, path, r), nil
	}
}

// Load reads the result stored under id
func (s *FileStore) Load(id string) (types.ScenarioResult, error) {
	var r types.ScenarioResult
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return r, cerrors.Generic{Reason: fmt.Sprintf("invalid result id '%s'", id)}
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, id+".json"))
	if err != nil {
		return r, errors.Wrapf(err, "unable to read result %s", id)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, errors.Wrapf(err, "unable to decode result %s", id)
	}
	return r, nil
}

// List summarizes every stored result, newest first. Unreadable files are skipped.
func (s *FileStore) List() ([]types.ResultSummary, error) {
	files, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list results in %s", s.Dir)
	}

	var summaries []types.ResultSummary
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(file.Name(), ".json")
		r, err := s.Load(id)
		if err != nil {
			log.Warnf("[Result]: Skipping %s, err: %v", file.Name(), err)
			continue
		}
		summaries = append(summaries, types.Summarize(id, filepath.Join(s.Dir, file.Name()), r))
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Timestamp.Equal(summaries[j].Timestamp) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].Timestamp.After(summaries[j].Timestamp)
	})
	return summaries, nil
}

func (s *FileStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PrintSummary writes a human readable report of r
func PrintSummary(w io.Writer, r types.ScenarioResult) {
	verdict := emoji.Sprint(":white_check_mark:")
	if r.SuccessRate() < 1 {
		verdict = emoji.Sprint(":warning:")
	}
	fmt.Fprintf(w, "=== Scenario Report ===\n")
	fmt.Fprintf(w, "Scenario:         %s\n", r.ScenarioName)
	fmt.Fprintf(w, "Started:          %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Total Duration:   %v\n", r.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Injections: %d\n", r.TotalInjections)
	fmt.Fprintf(w, "Success Rate:     %.2f%% %s\n", r.SuccessRate()*100, verdict)
	fmt.Fprintf(w, "\nPhase Results:\n")
	for _, phase := range r.PhaseResults {
		fmt.Fprintf(w, "  %s - Duration: %v, Injections: %d, Succeeded: %d, Failed: %d\n",
			phase.Name, phase.Duration.Round(time.Millisecond), phase.InjectionCount, phase.Succeeded, phase.Failed)
	}
}

// PrintList writes one line per stored result
func PrintList(w io.Writer, summaries []types.ResultSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No results found")
		return
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%-48s %-24s %s %6.2f%% %8.1fs\n",
			s.ID, s.ScenarioName, s.Timestamp.UTC().Format(time.RFC3339), s.SuccessRate*100, s.TotalDuration)
	}
}
