package pipeline

import "errors"

// Terminal error kinds surfaced to callers. Component-level failures
// (draft.ErrGenerationUnavailable, draft.ErrMalformedDraft,
// render.ErrRenderFailed) reach the pipeline, which alone decides retry
// versus terminal; callers only ever see one of these or a completed result.
var (
	// ErrAlreadyInProgress rejects a second request for a ticket whose job
	// has not reached a terminal phase. Request-level, not a pipeline
	// failure.
	ErrAlreadyInProgress = errors.New("challenge already in progress")

	// ErrGenerationTimeout reports that the per-job time budget was
	// exceeded; partial artifacts are discarded.
	ErrGenerationTimeout = errors.New("generation timeout")

	// ErrChallengeGenerationFailed reports drafting retry exhaustion.
	ErrChallengeGenerationFailed = errors.New("challenge generation failed")
)
