// Package dataset selects task runs by persisted filter identifiers.
//
// Evals reference two filters: one that defines their eval set and one that
// defines the golden set used to compare judge configurations against human
// ratings. Filter identifiers are stored on the eval record, so parsing is
// strict and unknown identifiers are errors rather than empty matches.
package dataset

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// Filter evaluates one task run at a time.
//
// A Filter is safe for concurrent use after creation.
type Filter interface {
	// Match returns true if the run belongs to the filtered dataset.
	Match(run *datamodel.TaskRun) bool

	// String returns the persisted identifier form of the filter.
	String() string
}

// Errors returned when parsing filter identifiers.
var (
	// ErrUnknownFilter is returned for an unrecognized filter identifier.
	ErrUnknownFilter = errors.New("unknown dataset filter")

	// ErrInvalidTagPattern is returned when a tag:: pattern cannot be compiled.
	ErrInvalidTagPattern = errors.New("invalid tag pattern")
)

// FilterError wraps filter parsing errors with the offending identifier.
type FilterError struct {
	FilterID string
	Err      error
}

func (e *FilterError) Error() string {
	return "filter " + e.FilterID + ": " + e.Err.Error()
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

const tagPrefix = "tag::"

// ParseFilterID builds a Filter from its persisted identifier.
//
// Supported identifiers:
//   - "all": every run
//   - "high_rating": runs whose overall human rating marks them high quality
//   - "thinking_model": runs that captured intermediate reasoning content
//   - "tag::<pattern>": runs with a tag matching the glob pattern; plain
//     tags are the common case, globs select tag families (e.g. "eval_set*")
func ParseFilterID(id string) (Filter, error) {
	id = strings.TrimSpace(id)
	switch {
	case id == "all":
		return allFilter{}, nil
	case id == "high_rating":
		return highRatingFilter{}, nil
	case id == "thinking_model":
		return thinkingModelFilter{}, nil
	case strings.HasPrefix(id, tagPrefix):
		pattern := strings.TrimPrefix(id, tagPrefix)
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return nil, &FilterError{FilterID: id, Err: ErrInvalidTagPattern}
		}
		return tagFilter{pattern: pattern}, nil
	default:
		return nil, &FilterError{FilterID: id, Err: ErrUnknownFilter}
	}
}

// Select applies f to runs and returns the matches in input order.
func Select(runs []datamodel.TaskRun, f Filter) []datamodel.TaskRun {
	out := make([]datamodel.TaskRun, 0, len(runs))
	for i := range runs {
		if f.Match(&runs[i]) {
			out = append(out, runs[i])
		}
	}
	return out
}

type allFilter struct{}

func (allFilter) Match(*datamodel.TaskRun) bool { return true }
func (allFilter) String() string                { return "all" }

type highRatingFilter struct{}

func (highRatingFilter) Match(run *datamodel.TaskRun) bool {
	return run.Output.Rating.IsHighQuality()
}

func (highRatingFilter) String() string { return "high_rating" }

type thinkingModelFilter struct{}

func (thinkingModelFilter) Match(run *datamodel.TaskRun) bool {
	for _, key := range []string{"reasoning", "chain_of_thought"} {
		if strings.TrimSpace(run.IntermediateOutputs[key]) != "" {
			return true
		}
	}
	return false
}

func (thinkingModelFilter) String() string { return "thinking_model" }

type tagFilter struct {
	pattern string
}

func (f tagFilter) Match(run *datamodel.TaskRun) bool {
	for _, tag := range run.Tags {
		// Pattern was validated at construction time.
		if ok, err := doublestar.Match(f.pattern, tag); err == nil && ok {
			return true
		}
	}
	return false
}

func (f tagFilter) String() string { return tagPrefix + f.pattern }
