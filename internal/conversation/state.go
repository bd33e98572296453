package conversation

import "github.com/wolfman30/moto-assistant/internal/correspondents"

// NextState returns the conversation state after an action is dispatched.
// completed is terminal on the automatic path; provide_info and none keep the
// current state.
func NextState(current correspondents.State, action Action, slotValid bool) correspondents.State {
	if current == correspondents.StateCompleted {
		return current
	}
	if current == "" {
		current = correspondents.StateInitial
	}
	switch action.(type) {
	case GatherInfo:
		return correspondents.StateGatheringInfo
	case Recommend:
		return correspondents.StateRecommending
	case ScheduleAppointment:
		if slotValid {
			return correspondents.StateScheduling
		}
	}
	return current
}
