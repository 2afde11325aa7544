package coordinator

import (
	"fmt"

	"github.com/arontabacinik/itirp/pkg/types"
)

// ReplayResult is the state derived from an order's event chain.
type ReplayResult struct {
	Status types.OrderStatus
	Fill   *types.Fill // non-nil when the chain ends in EXECUTION_COMPLETED
}

// Replay folds an order's event sequence back into its final status and
// position contribution. The input must be the full chain for one order in
// append order; an event that is illegal in the current state fails the
// replay, which indicates a corrupted or truncated log.
func Replay(events []types.Event) (ReplayResult, error) {
	if len(events) == 0 {
		return ReplayResult{}, fmt.Errorf("replay: empty event chain")
	}

	var res ReplayResult
	for i, ev := range events {
		var next types.OrderStatus
		switch ev.Type {
		case types.EventOrderCreated:
			if i != 0 {
				return ReplayResult{}, fmt.Errorf("replay: ORDER_CREATED at position %d", i)
			}
			res.Status = types.StatusPending
			continue
		case types.EventRiskCheckStarted:
			next = types.StatusRiskCheck
		case types.EventRiskCheckPassed:
			next = types.StatusApproved
		case types.EventRiskCheckFailed:
			next = types.StatusRejected
		case types.EventExecutionStarted:
			next = types.StatusExecuting
		case types.EventExecutionCompleted:
			next = types.StatusExecuted
			if payload, ok := ev.Payload.(types.ExecutionCompletedPayload); ok {
				fill := payload.Fill
				res.Fill = &fill
			}
		case types.EventExecutionFailed:
			next = types.StatusFailed
		case types.EventPositionUpdated:
			// Position bookkeeping, not an order transition.
			continue
		default:
			return ReplayResult{}, fmt.Errorf("replay: unexpected event type %s", ev.Type)
		}

		if !res.Status.CanTransitionTo(next) {
			return ReplayResult{}, fmt.Errorf("replay: illegal transition %s → %s at position %d", res.Status, next, i)
		}
		res.Status = next
	}
	return res, nil
}
