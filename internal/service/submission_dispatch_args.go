package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/formbricks/forms/internal/models"
)

const submissionDispatchKind = "submission_dispatch"

// SubmissionDispatchArgs is the job payload for delivering one submitted response
// to its template's notify URL. Only the event and response IDs take part in
// River uniqueness so the hash does not cover the answers.
type SubmissionDispatchArgs struct {
	EventID    uuid.UUID        `json:"event_id"    river:"unique"`
	EventType  string           `json:"event_type"`
	Timestamp  time.Time        `json:"timestamp"`
	TemplateID uuid.UUID        `json:"template_id"`
	ResponseID uuid.UUID        `json:"response_id" river:"unique"`
	Response   *models.Response `json:"response"`
}

// Kind returns the River job kind.
func (SubmissionDispatchArgs) Kind() string { return submissionDispatchKind }

var _ river.JobArgs = SubmissionDispatchArgs{}

// SubmissionPayload is the JSON body POSTed to a notify URL.
type SubmissionPayload struct {
	ID        uuid.UUID        `json:"id"`
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      *models.Response `json:"data"`
}

// PayloadFromArgs builds the outgoing body of a dispatch job.
func PayloadFromArgs(args SubmissionDispatchArgs) *SubmissionPayload {
	return &SubmissionPayload{
		ID:        args.EventID,
		Type:      args.EventType,
		Timestamp: args.Timestamp,
		Data:      args.Response,
	}
}
