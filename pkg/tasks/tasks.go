// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "monet-probing/internal/model"

// ProbeResponseTask carries one finalized probe turn to the persistence pipeline.
type ProbeResponseTask struct {
	TaskID string              `json:"task_id"`
	Record model.ProbeResponse `json:"record"`
}
