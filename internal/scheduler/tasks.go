package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadAssignedNotification = "notification.lead_assigned"

const TaskExpirySweep = "distribution.expiry_sweep"

type LeadAssignedPayload struct {
	LeadID       string `json:"leadId"`
	AgencyID     string `json:"agencyId"`
	AssignmentID string `json:"assignmentId"`
}

type ExpirySweepPayload struct {
	Limit int `json:"limit"`
}

// leadAssignedTaskID keys the notification on (lead, agency) so a replayed
// event never produces a second email.
func leadAssignedTaskID(payload LeadAssignedPayload) string {
	return "lead-assigned:" + payload.LeadID + ":" + payload.AgencyID
}

func NewLeadAssignedTask(payload LeadAssignedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadAssignedNotification, data, asynq.TaskID(leadAssignedTaskID(payload))), nil
}

func ParseLeadAssignedPayload(task *asynq.Task) (LeadAssignedPayload, error) {
	var payload LeadAssignedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadAssignedPayload{}, err
	}
	return payload, nil
}

func NewExpirySweepTask(payload ExpirySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirySweep, data), nil
}

func ParseExpirySweepPayload(task *asynq.Task) (ExpirySweepPayload, error) {
	var payload ExpirySweepPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ExpirySweepPayload{}, err
	}
	return payload, nil
}
