package evalstats

import (
	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// ScoreSummary is the rolled-up judge score for one (run config, score key).
type ScoreSummary struct {
	MeanScore float64 `json:"mean_score"`
}

// RunConfigSummary aggregates one eval config's runs per run config.
//
// Results is keyed by run config ID, then by score key. PercentComplete is
// keyed by run config ID and reflects how much of the expected dataset that
// run config has fully scored.
type RunConfigSummary struct {
	Results         map[string]map[string]ScoreSummary `json:"results"`
	PercentComplete map[string]float64                 `json:"run_config_percent_complete"`
	DatasetSize     int                                `json:"dataset_size"`
}

// SummarizeRunConfigScores computes per-run-config mean scores for every
// output score of the eval, over eval runs whose dataset item is in
// expectedDatasetIDs.
//
// Each run config counts a dataset item at most once; later duplicates are
// ignored. An eval run missing one of the eval's output scores still
// contributes its present scores to the means but marks that item
// incomplete. percent_complete = 1 - (incomplete + never seen) / expected.
func SummarizeRunConfigScores(eval *datamodel.Eval, evalRuns []datamodel.EvalRun, expectedDatasetIDs []string) *RunConfigSummary {
	summary := &RunConfigSummary{
		Results:         make(map[string]map[string]ScoreSummary),
		PercentComplete: make(map[string]float64),
		DatasetSize:     len(expectedDatasetIDs),
	}
	if len(expectedDatasetIDs) == 0 {
		return summary
	}

	remaining := make(map[string]map[string]struct{})
	partialIncomplete := make(map[string]int)
	totals := make(map[string]map[string]float64)
	counts := make(map[string]map[string]int)

	for i := range evalRuns {
		run := &evalRuns[i]
		if run.TaskRunConfigID == nil {
			// Judge-calibration run, not a run config scoring run.
			continue
		}
		rcID := *run.TaskRunConfigID

		rem, ok := remaining[rcID]
		if !ok {
			rem = make(map[string]struct{}, len(expectedDatasetIDs))
			for _, id := range expectedDatasetIDs {
				rem[id] = struct{}{}
			}
			remaining[rcID] = rem
		}
		if _, expected := rem[run.DatasetID]; !expected {
			// Duplicate scoring of an item, or an item outside the filter.
			continue
		}
		delete(rem, run.DatasetID)

		incomplete := false
		for _, score := range eval.OutputScores {
			key := score.JSONKey()
			value, present := run.Scores[key]
			if !present {
				incomplete = true
				continue
			}
			if totals[rcID] == nil {
				totals[rcID] = make(map[string]float64)
				counts[rcID] = make(map[string]int)
			}
			totals[rcID][key] += value
			counts[rcID][key]++
		}
		if incomplete {
			partialIncomplete[rcID]++
		}
	}

	for rcID, rem := range remaining {
		scores := make(map[string]ScoreSummary, len(counts[rcID]))
		for key, count := range counts[rcID] {
			scores[key] = ScoreSummary{MeanScore: totals[rcID][key] / float64(count)}
		}
		summary.Results[rcID] = scores

		incomplete := partialIncomplete[rcID] + len(rem)
		summary.PercentComplete[rcID] = 1 - float64(incomplete)/float64(len(expectedDatasetIDs))
	}
	return summary
}

// ConfigRuns pairs an eval config ID with its recorded runs.
type ConfigRuns struct {
	ConfigID string
	Runs     []datamodel.EvalRun
}

// CorrelationSummary compares every eval config's judge scores against
// human ratings over a golden dataset.
//
// Results is keyed by eval config ID, then by score key; a key appears only
// when at least one (judge, human) pair was observed for it. The rated
// counts classify the golden dataset items by human rating coverage across
// all of the eval's output scores.
type CorrelationSummary struct {
	Results             map[string]map[string]CorrelationResult `json:"results"`
	DatasetSize         int                                     `json:"dataset_size"`
	FullyRatedCount     int                                     `json:"fully_rated_count"`
	PartiallyRatedCount int                                     `json:"partially_rated_count"`
	NotRatedCount       int                                     `json:"not_rated_count"`
}

// SummarizeCorrelation accumulates (judge score, human score) pairs per
// (eval config, score key) over the golden dataset items and computes a
// CorrelationResult for each.
//
// The human score for a key is resolved from the item's overall rating, a
// requirement rating matched by the requirement's score key, or a named
// rating, in that order. Pairs form only when the judge score and the human
// score are both present. Judge-calibration runs are the ones considered
// here; runs bound to a run config are skipped.
func SummarizeCorrelation(task *datamodel.Task, eval *datamodel.Eval, configRuns []ConfigRuns, items []datamodel.TaskRun) *CorrelationSummary {
	summary := &CorrelationSummary{
		Results: make(map[string]map[string]CorrelationResult),
	}
	if len(items) == 0 {
		return summary
	}
	summary.DatasetSize = len(items)

	reqIDByKey := requirementKeyIndex(task)

	byID := make(map[string]*datamodel.TaskRun, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	for i := range items {
		rated, total := 0, len(eval.OutputScores)
		for _, score := range eval.OutputScores {
			if _, ok := humanScore(&items[i], score.JSONKey(), reqIDByKey); ok {
				rated++
			}
		}
		switch {
		case total > 0 && rated == total:
			summary.FullyRatedCount++
		case rated > 0:
			summary.PartiallyRatedCount++
		default:
			summary.NotRatedCount++
		}
	}

	for _, cr := range configRuns {
		accumulators := make(map[string]*CorrelationAccumulator)
		seen := make(map[string]struct{}, len(items))

		for i := range cr.Runs {
			run := &cr.Runs[i]
			if run.TaskRunConfigID != nil {
				continue
			}
			item, inFilter := byID[run.DatasetID]
			if !inFilter {
				continue
			}
			if _, dup := seen[run.DatasetID]; dup {
				continue
			}
			seen[run.DatasetID] = struct{}{}

			for _, score := range eval.OutputScores {
				key := score.JSONKey()
				model, present := run.Scores[key]
				if !present {
					continue
				}
				human, ok := humanScore(item, key, reqIDByKey)
				if !ok {
					continue
				}
				acc := accumulators[key]
				if acc == nil {
					acc = &CorrelationAccumulator{}
					accumulators[key] = acc
				}
				acc.Add(NewScorePair(model, human, score.Type))
			}
		}

		results := make(map[string]CorrelationResult, len(accumulators))
		for key, acc := range accumulators {
			results[key] = acc.Result()
		}
		summary.Results[cr.ConfigID] = results
	}
	return summary
}

// requirementKeyIndex maps each task requirement's score key to its record
// ID, so judge score keys can be traced back to human requirement ratings.
func requirementKeyIndex(task *datamodel.Task) map[string]string {
	if task == nil {
		return nil
	}
	index := make(map[string]string, len(task.Requirements))
	for _, req := range task.Requirements {
		index[datamodel.JSONKey(req.Name)] = req.ID
	}
	return index
}

func humanScore(item *datamodel.TaskRun, scoreKey string, reqIDByKey map[string]string) (float64, bool) {
	rating := item.Output.Rating
	if rating == nil {
		return 0, false
	}
	if scoreKey == datamodel.OverallRatingKey {
		if rating.Value == nil {
			return 0, false
		}
		return *rating.Value, true
	}
	if reqID, ok := reqIDByKey[scoreKey]; ok {
		if value, ok := item.RequirementRatingValue(reqID); ok {
			return value, true
		}
	}
	return item.RequirementRatingValue(datamodel.NamedRatingKey(scoreKey))
}
