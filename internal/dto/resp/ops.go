package resp

import "cartflow/internal/model"

type RejectedTaskList struct {
	Tasks      []model.RejectedTask `json:"tasks"`
	TotalCount int                  `json:"totalCount"`
}

type FailedOutboxList struct {
	Events     []model.OutboxEvent `json:"events"`
	TotalCount int                 `json:"totalCount"`
}
