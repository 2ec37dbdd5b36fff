// Package pipeline defines the load and unload tasks, the dispatcher that
// runs them on a bounded worker pool, and the run-level Loader and Unloader.
package pipeline

import (
	"time"
)

// Outcome is the terminal state of a task.
type Outcome string

const (
	// OutcomeSuccess means every line was processed within the budgets
	OutcomeSuccess Outcome = "success"
	// OutcomeParseErrorAbort means the parse error budget was reached
	OutcomeParseErrorAbort Outcome = "parse_error_abort"
	// OutcomeInsertErrorAbort means the insert error budget was reached
	OutcomeInsertErrorAbort Outcome = "insert_error_abort"
	// OutcomeFailed means a setup or I/O error stopped the task
	OutcomeFailed Outcome = "failed"
	// OutcomeCancelled means the run context ended first
	OutcomeCancelled Outcome = "cancelled"
)

// Reserved task codes. A legitimate zero-row result is 0.
const (
	CodeParseErrorAbort  int64 = -1
	CodeInsertErrorAbort int64 = -2
	CodeFailed           int64 = -3
)

// Result is the report of one load task.
type Result struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	// Lines counts every line read, skipped and blank lines included
	Lines int64 `json:"lines"`
	// Parsed counts lines that produced a row
	Parsed       int64 `json:"parsed"`
	ParseErrors  int64 `json:"parse_errors"`
	Inserted     int64 `json:"inserted"`
	InsertErrors int64 `json:"insert_errors"`
	// Rate is the mean rows per second written while the task ran
	Rate     float64       `json:"rate,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Code returns the inserted row count, or a reserved negative code when the
// task did not succeed.
func (r Result) Code() int64 {
	switch r.Outcome {
	case OutcomeSuccess:
		return r.Inserted
	case OutcomeParseErrorAbort:
		return CodeParseErrorAbort
	case OutcomeInsertErrorAbort:
		return CodeInsertErrorAbort
	}
	return CodeFailed
}

// OK reports whether the task succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// UnloadResult is the report of one unload task.
type UnloadResult struct {
	Name     string        `json:"name"`
	Range    string        `json:"range,omitempty"`
	Output   string        `json:"output"`
	Outcome  Outcome       `json:"outcome"`
	Rows     int64         `json:"rows"`
	Errors   int64         `json:"errors"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// OK reports whether the task succeeded.
func (r UnloadResult) OK() bool { return r.Outcome == OutcomeSuccess }

// Summary aggregates the results of a run.
type Summary struct {
	Mode         string         `json:"mode"`
	Table        string         `json:"table"`
	Tasks        int            `json:"tasks"`
	Failed       int            `json:"failed"`
	Lines        int64          `json:"lines"`
	Inserted     int64          `json:"inserted,omitempty"`
	Unloaded     int64          `json:"unloaded,omitempty"`
	ParseErrors  int64          `json:"parse_errors"`
	InsertErrors int64          `json:"insert_errors"`
	Duration     time.Duration  `json:"duration"`
	Resources    *ResourceUsage `json:"resources,omitempty"`
	Loads        []Result       `json:"loads,omitempty"`
	Unloads      []UnloadResult `json:"unloads,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
}

func summarizeLoad(table string, results []Result, d time.Duration) *Summary {
	s := &Summary{Mode: "load", Table: table, Tasks: len(results), Duration: d, Loads: results}
	for _, r := range results {
		s.Lines += r.Lines
		s.Inserted += r.Inserted
		s.ParseErrors += r.ParseErrors
		s.InsertErrors += r.InsertErrors
		if !r.OK() {
			s.Failed++
			s.Errors = append(s.Errors, failureText(r.Name, r.Outcome, r.Err))
		}
	}
	return s
}

func summarizeUnload(table string, results []UnloadResult, d time.Duration) *Summary {
	s := &Summary{Mode: "unload", Table: table, Tasks: len(results), Duration: d, Unloads: results}
	for _, r := range results {
		s.Lines += r.Rows
		s.Unloaded += r.Rows
		if !r.OK() {
			s.Failed++
			s.Errors = append(s.Errors, failureText(r.Name, r.Outcome, r.Err))
		}
	}
	return s
}

func failureText(name string, o Outcome, err error) string {
	if err != nil {
		return name + ": " + string(o) + ": " + err.Error()
	}
	return name + ": " + string(o)
}
