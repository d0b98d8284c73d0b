package orchestrator

import (
	"fmt"

	"github.com/finsentry/finsentry/internal/story"
)

// Operation names, used in preconditions, retry diagnostics and drop
// causes.
const (
	opClassify   = "classify"
	opScore      = "score_sentiment"
	opRate       = "rate_impact"
	opVerify     = "verify"
	opRetrieve   = "retrieve_context"
	opSynthesize = "synthesize"
)

// preconditions maps each operation to the lifecycle states it may run
// from. A stage invoked out of order is an internal defect; it surfaces
// as a PreconditionViolation and a dropped story, never as bad output.
var preconditions = map[string][]story.Stage{
	opClassify:   {story.StageCollected},
	opScore:      {story.StageClassified},
	opVerify:     {story.StageScored},
	opRetrieve:   {story.StageVerified},
	opSynthesize: {story.StageContextualized, story.StageVerified},
}

// PreconditionViolation reports an operation attempted on a story whose
// lifecycle state does not allow it.
type PreconditionViolation struct {
	Fingerprint story.Fingerprint
	Op          string
	State       story.Stage
}

func (e *PreconditionViolation) Error() string {
	return fmt.Sprintf("%s: story %s in state %s", e.Op, e.Fingerprint, e.State)
}

// checkPrecondition validates that op may run on the item's current
// state. Callers hold the orchestrator lock.
func checkPrecondition(op string, it *story.Item) error {
	allowed, ok := preconditions[op]
	if !ok {
		return &PreconditionViolation{Fingerprint: it.Fingerprint, Op: op, State: it.State}
	}
	for _, s := range allowed {
		if it.State == s {
			return nil
		}
	}
	return &PreconditionViolation{Fingerprint: it.Fingerprint, Op: op, State: it.State}
}
