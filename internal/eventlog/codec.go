package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/arontabacinik/itirp/pkg/types"
)

// MarshalPayload serializes an event payload for storage. A nil payload
// serializes to nil.
func MarshalPayload(p types.EventPayload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.EventKind(), err)
	}
	return data, nil
}

// UnmarshalPayload decodes stored payload bytes back into the concrete
// variant for the given event type. The payload sum type is closed, so an
// unknown event type is a corruption error, not an extension point.
func UnmarshalPayload(t types.EventType, data []byte) (types.EventPayload, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var (
		payload types.EventPayload
		err     error
	)
	switch t {
	case types.EventOrderCreated:
		var p types.OrderCreatedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventRiskCheckStarted:
		var p types.RiskCheckStartedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventRiskCheckPassed:
		var p types.RiskCheckPassedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventRiskCheckFailed:
		var p types.RiskCheckFailedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventExecutionStarted:
		var p types.ExecutionStartedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventExecutionCompleted:
		var p types.ExecutionCompletedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventExecutionFailed:
		var p types.ExecutionFailedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventRiskConfigUpdated:
		var p types.RiskConfigUpdatedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventKillSwitchToggled:
		var p types.KillSwitchToggledPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.EventPositionUpdated:
		var p types.PositionUpdatedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", t, err)
	}
	return payload, nil
}
