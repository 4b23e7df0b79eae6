package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/calliope-press/pipeline/internal/speech"
	"github.com/google/uuid"
)

// Name identifies a queue. Each queue carries exactly one payload type.
type Name string

// The queues served by the pipeline.
const (
	QueueGeneration  Name = "generation"
	QueueNarration   Name = "narration"
	QueueEmail       Name = "email"
	QueueImageUpload Name = "image_upload"
)

// Names lists every queue in registration order.
var Names = []Name{QueueGeneration, QueueNarration, QueueEmail, QueueImageUpload}

// Status represents the broker-visible state of a job.
type Status string

// Possible job status values
const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Common errors for job handling
var (
	// ErrUnknownQueue is returned when a queue name is not one of the
	// registered constants.
	ErrUnknownQueue = errors.New("unknown queue name")

	// ErrInvalidPayload is returned when a job payload cannot be decoded or
	// fails validation. Jobs failing with this error are never retried.
	ErrInvalidPayload = errors.New("invalid job payload")
)

// Job is the envelope persisted in the broker for one unit of work. The
// payload is opaque JSON tagged by the queue name; workers read, ack, or fail
// jobs but never mutate their identity.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Queue       Name            `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// GenerationPayload is enqueued by the API layer after it creates a
// placeholder article. It carries everything the generation worker needs to
// produce content and to derive the narration voice for the follow-up job.
type GenerationPayload struct {
	ArticleID     uuid.UUID        `json:"article_id"`
	AuthorID      uuid.UUID        `json:"author_id"`
	Params        GenerationParams `json:"params"`
	TemplateBased bool             `json:"template_based"`
}

// GenerationParams describes what to generate and in which voice the result
// should later be narrated.
type GenerationParams struct {
	Topic        string       `json:"topic"`
	Keywords     []string     `json:"keywords,omitempty"`
	TemplateName string       `json:"template_name,omitempty"`
	Voice        speech.Voice `json:"voice,omitempty"`
}

// Validate checks the payload for required fields.
func (p *GenerationPayload) Validate() error {
	if p.ArticleID == uuid.Nil {
		return fmt.Errorf("%w: article ID is required", ErrInvalidPayload)
	}
	if p.AuthorID == uuid.Nil {
		return fmt.Errorf("%w: author ID is required", ErrInvalidPayload)
	}
	if p.Params.Topic == "" && !p.TemplateBased {
		return fmt.Errorf("%w: topic is required for non-template generation", ErrInvalidPayload)
	}
	return nil
}

// NarrationPayload is enqueued by the generation worker once an article's
// content is complete.
type NarrationPayload struct {
	ArticleID uuid.UUID    `json:"article_id"`
	Text      string       `json:"text"`
	Voice     speech.Voice `json:"voice,omitempty"`
}

// Validate checks the payload for required fields.
func (p *NarrationPayload) Validate() error {
	if p.ArticleID == uuid.Nil {
		return fmt.Errorf("%w: article ID is required", ErrInvalidPayload)
	}
	if p.Text == "" {
		return fmt.Errorf("%w: narration text is required", ErrInvalidPayload)
	}
	return nil
}

// EmailPayload is enqueued by the API layer for outbound notifications.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// Validate checks the payload for required fields.
func (p *EmailPayload) Validate() error {
	if p.To == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidPayload)
	}
	if p.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidPayload)
	}
	if p.Text == "" && p.HTML == "" {
		return fmt.Errorf("%w: email body is required", ErrInvalidPayload)
	}
	return nil
}

// ImageUploadPayload is enqueued for standalone image uploads attached to an
// existing article.
type ImageUploadPayload struct {
	ArticleID    uuid.UUID `json:"article_id"`
	ImageSources []string  `json:"image_sources"`
	UploadPath   string    `json:"upload_path"`
}

// Validate checks the payload for required fields.
func (p *ImageUploadPayload) Validate() error {
	if p.ArticleID == uuid.Nil {
		return fmt.Errorf("%w: article ID is required", ErrInvalidPayload)
	}
	if len(p.ImageSources) == 0 {
		return fmt.Errorf("%w: at least one image source is required", ErrInvalidPayload)
	}
	if p.UploadPath == "" {
		return fmt.Errorf("%w: upload path is required", ErrInvalidPayload)
	}
	return nil
}

// Payload is implemented by every typed payload.
type Payload interface {
	Validate() error
}

// marshalPayload serializes a typed payload for the job envelope.
func marshalPayload(p Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return data, nil
}

// newPayloadFor returns a zero value of the payload type that belongs to the
// given queue. The switch is exhaustive over the queue constants; adding a
// queue without extending it is a compile-visible omission at the decode
// boundary rather than a runtime surprise deep in a worker.
func newPayloadFor(queue Name) (Payload, error) {
	switch queue {
	case QueueGeneration:
		return &GenerationPayload{}, nil
	case QueueNarration:
		return &NarrationPayload{}, nil
	case QueueEmail:
		return &EmailPayload{}, nil
	case QueueImageUpload:
		return &ImageUploadPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
	}
}

// decodePayload unmarshals and validates a job's payload into the typed
// struct for its queue.
func decodePayload(job *Job, dest Payload) error {
	if err := json.Unmarshal(job.Payload, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return dest.Validate()
}

// DecodeGeneration decodes the payload of a generation job.
func DecodeGeneration(job *Job) (*GenerationPayload, error) {
	if job.Queue != QueueGeneration {
		return nil, fmt.Errorf("%w: expected %s job, got %s", ErrInvalidPayload, QueueGeneration, job.Queue)
	}
	var p GenerationPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeNarration decodes the payload of a narration job.
func DecodeNarration(job *Job) (*NarrationPayload, error) {
	if job.Queue != QueueNarration {
		return nil, fmt.Errorf("%w: expected %s job, got %s", ErrInvalidPayload, QueueNarration, job.Queue)
	}
	var p NarrationPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeEmail decodes the payload of an email job.
func DecodeEmail(job *Job) (*EmailPayload, error) {
	if job.Queue != QueueEmail {
		return nil, fmt.Errorf("%w: expected %s job, got %s", ErrInvalidPayload, QueueEmail, job.Queue)
	}
	var p EmailPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeImageUpload decodes the payload of an image-upload job.
func DecodeImageUpload(job *Job) (*ImageUploadPayload, error) {
	if job.Queue != QueueImageUpload {
		return nil, fmt.Errorf("%w: expected %s job, got %s", ErrInvalidPayload, QueueImageUpload, job.Queue)
	}
	var p ImageUploadPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
