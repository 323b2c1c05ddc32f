package pipeline

import (
	"context"

	"github.com/mx-space/capture/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// runSummary is the result stored on a completed run.
type runSummary struct {
	NoteID         string `json:"note_id"`
	ContributionID string `json:"contribution_id,omitempty"`
	Version        int64  `json:"version"`
	Structured     bool   `json:"structured"`
	Rendered       bool   `json:"rendered"`
	Degraded       bool   `json:"degraded"`
}

// beginRun records a running run and returns its id, or "" when the run log
// is unavailable. Run log failures never affect the pipeline.
func (p *Pipeline) beginRun(ctx context.Context, taskType string, payload interface{}, groupKey string) string {
	if p.runs == nil {
		return ""
	}
	task, err := p.runs.Enqueue(ctx, taskType, payload, groupKey)
	if err != nil {
		p.logger.Warn("run log unavailable", zap.String("type", taskType), zap.Error(err))
		return ""
	}
	if err := p.runs.UpdateStatus(ctx, task.ID, taskqueue.TaskRunning, nil, ""); err != nil {
		p.logger.Warn("run log update failed", zap.String("run_id", task.ID), zap.Error(err))
	}
	return task.ID
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, res *Result, runErr error) {
	if p.runs == nil || runID == "" {
		return
	}
	var err error
	if runErr != nil {
		err = p.runs.UpdateStatus(ctx, runID, taskqueue.TaskFailed, nil, runErr.Error())
	} else {
		summary := runSummary{
			NoteID:         res.NoteID,
			ContributionID: res.ContributionID,
			Structured:     res.Structured,
			Rendered:       res.Rendered,
			Degraded:       res.Degraded,
		}
		if res.Note != nil {
			summary.Version = res.Note.Version
		}
		err = p.runs.UpdateStatus(ctx, runID, taskqueue.TaskCompleted, summary, "")
	}
	if err != nil {
		p.logger.Warn("run log update failed", zap.String("run_id", runID), zap.Error(err))
	}
}
