package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// ScriptBatchHandler generates video scripts for a batch of facts. Single
// fact failures are tolerated; the batch settles as partial when at least
// one script landed.
type ScriptBatchHandler struct {
	log     *logger.Logger
	scripts services.ScriptService
}

func NewScriptBatchHandler(baseLog *logger.Logger, scripts services.ScriptService) *ScriptBatchHandler {
	return &ScriptBatchHandler{
		log:     baseLog.With("handler", "ScriptBatchHandler"),
		scripts: scripts,
	}
}

func (h *ScriptBatchHandler) Type() string { return types.JobTypeScriptBatch }

func (h *ScriptBatchHandler) Run(jc *Context) (any, error) {
	var payload types.ScriptBatchPayload
	if err := json.Unmarshal(jc.Job.Payload, &payload); err != nil {
		return nil, domain.NewValidation("payload", fmt.Sprintf("undecodable script batch payload: %v", err))
	}
	if len(payload.FactIDs) == 0 {
		return nil, domain.NewValidation("fact_ids", "script batch has no fact_ids")
	}

	result := types.ScriptBatchResult{Requested: len(payload.FactIDs)}
	var firstErr error
	for i, factID := range payload.FactIDs {
		if jc.AbortRequested() {
			return result, fmt.Errorf("script batch aborted after %d of %d: %w",
				i, result.Requested, domain.ErrAborted)
		}
		if _, err := h.scripts.Generate(jc.Ctx(), factID, payload.TTS); err != nil {
			result.Failed++
			if firstErr == nil {
				firstErr = err
			}
			h.log.Warn("Script generation failed", "job_id", jc.Job.ID, "fact_id", factID, "error", err)
		} else {
			result.Generated++
		}
		jc.Progress("scripts", (i+1)*100/result.Requested, result)
	}

	switch {
	case result.Failed == 0:
		return result, nil
	case result.Generated == 0:
		return result, fmt.Errorf("all %d scripts failed: %w", result.Requested, firstErr)
	default:
		return result, fmt.Errorf("%d of %d scripts failed: %w", result.Failed, result.Requested, domain.ErrPartial)
	}
}
