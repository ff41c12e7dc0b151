package pipeline

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// Outcome is how one unit of one stage ended.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result records one unit of one stage.
type Result struct {
	Stage    string
	Key      string
	Outcome  Outcome
	Kind     domain.ErrorKind
	Err      error
	Duration time.Duration
}

func failed(stage, key string, err error) Result {
	ue := domain.NewUnitError(stage, key, err)
	return Result{Stage: stage, Key: key, Outcome: OutcomeFailed, Kind: ue.Kind, Err: ue}
}

// Summary collects the results of one pass. It is safe for concurrent use
// while the pass runs.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time

	mu      sync.Mutex
	results []Result
}

func (s *Summary) add(r Result) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

// Results returns the results ordered by stage position then key.
func (s *Summary) Results() []Result {
	s.mu.Lock()
	out := append([]Result(nil), s.results...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return stageIndex(out[i].Stage) < stageIndex(out[j].Stage)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Count returns how many units of stage ended with o.
func (s *Summary) Count(stage string, o Outcome) int {
	n := 0
	for _, r := range s.Results() {
		if r.Stage == stage && r.Outcome == o {
			n++
		}
	}
	return n
}

// Failures returns the failed results.
func (s *Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results() {
		if r.Outcome == OutcomeFailed {
			out = append(out, r)
		}
	}
	return out
}

// OK reports whether no unit failed.
func (s *Summary) OK() bool { return len(s.Failures()) == 0 }

// Log writes one line of counts per stage plus one warning per failure.
func (s *Summary) Log(logger *slog.Logger) {
	counts := s.counts()
	for _, stage := range orderedStages(counts) {
		c := counts[stage]
		logger.Info("stage summary", "stage", stage,
			"ok", c[OutcomeOK], "skipped", c[OutcomeSkipped], "failed", c[OutcomeFailed])
	}
	for _, r := range s.Failures() {
		logger.Warn("unit failed", "stage", r.Stage, "key", r.Key, "kind", r.Kind, "error", r.Err)
	}
	logger.Info("pass finished", "duration", s.FinishedAt.Sub(s.StartedAt), "failures", len(s.Failures()))
}

func (s *Summary) counts() map[string]map[Outcome]int {
	out := map[string]map[Outcome]int{}
	for _, r := range s.Results() {
		if out[r.Stage] == nil {
			out[r.Stage] = map[Outcome]int{}
		}
		out[r.Stage][r.Outcome]++
	}
	return out
}

type failureJSON struct {
	Stage string           `json:"stage"`
	Key   string           `json:"key"`
	Kind  domain.ErrorKind `json:"kind"`
	Error string           `json:"error"`
}

// MarshalJSON renders counts and failures for the status endpoint.
func (s *Summary) MarshalJSON() ([]byte, error) {
	failures := []failureJSON{}
	for _, r := range s.Failures() {
		failures = append(failures, failureJSON{Stage: r.Stage, Key: r.Key, Kind: r.Kind, Error: r.Err.Error()})
	}
	return json.Marshal(struct {
		StartedAt  time.Time                  `json:"started_at"`
		FinishedAt time.Time                  `json:"finished_at"`
		Stages     map[string]map[Outcome]int `json:"stages"`
		Failures   []failureJSON              `json:"failures"`
	}{s.StartedAt, s.FinishedAt, s.counts(), failures})
}

func orderedStages(m map[string]map[Outcome]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return stageIndex(out[i]) < stageIndex(out[j]) })
	return out
}
