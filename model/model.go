package model

import "time"

type Field struct {
	ID             int       `json:"id,omitempty"`
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	Description    string    `json:"description"`
	Type           FieldType `json:"type"`
	AnswerRequired bool      `json:"answer_required"`
	ErrorMessage   string    `json:"error_message"`
	Metadata       Metadata  `json:"metadata"`
	OwnerID        int       `json:"-"`
}

type FormMetadata struct {
	Order []int `json:"order"`
}

type Form struct {
	ID         int          `json:"id,omitempty"`
	Title      string       `json:"title"`
	Metadata   FormMetadata `json:"metadata"`
	Fields     []Field      `json:"fields,omitempty"`
	Categories []string     `json:"categories,omitempty"`
	OwnerID    int          `json:"-"`
}

type PipelineMetadata struct {
	Order []int `json:"order"`
}

type Pipeline struct {
	ID          int              `json:"id,omitempty"`
	Title       string           `json:"title"`
	Slug        string           `json:"slug,omitempty"`
	Description string           `json:"description"`
	Metadata    PipelineMetadata `json:"metadata"`

	// Max minutes allowed to complete a submission once started.
	QuestionsRespondingDuration int `json:"questions_responding_duration"`

	StartDatetime *time.Time `json:"start_datetime"`
	StopDatetime  *time.Time `json:"stop_datetime"`

	HidePreviousButton bool   `json:"hide_previous_button"`
	HideNextButton     bool   `json:"hide_next_button"`
	IsPrivate          bool   `json:"is_private"`
	Password           string `json:"-"`

	NumberOfViews int      `json:"number_of_views"`
	Categories    []string `json:"categories,omitempty"`
	OwnerID       int      `json:"-"`
}

// Response holds one identity's answers to one form, keyed by field id.
type Response struct {
	ID           int            `json:"id,omitempty"`
	PipelineID   int            `json:"pipeline"`
	FormID       int            `json:"form"`
	SubmissionID int            `json:"pipeline_submission,omitempty"`
	Data         map[string]any `json:"data"`
	Identity     Identity       `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// PipelineSubmission records one identity's progress across a pipeline's
// forms. Completed when every form in the pipeline order has been answered.
type PipelineSubmission struct {
	ID             int       `json:"id,omitempty"`
	PipelineID     int       `json:"pipeline"`
	Identity       Identity  `json:"-"`
	ResponsedForms []int     `json:"responsed_forms"`
	IsCompleted    bool      `json:"is_completed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Subscriber struct {
	ID              int       `json:"id,omitempty"`
	UserID          int       `json:"user"`
	PipelineID      int       `json:"pipeline"`
	ExpiredDatetime time.Time `json:"expired_datetime"`
}

type Category struct {
	ID      int    `json:"id,omitempty"`
	Name    string `json:"name"`
	OwnerID int    `json:"-"`
}
