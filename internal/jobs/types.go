package jobs

import "fmt"

type Status string

const (
	StatusNew          Status = "new"
	StatusInitialising Status = "initialising"
	StatusProcessing   Status = "processing"
	StatusDone         Status = "done"
	StatusError        Status = "error"
	StatusArchived     Status = "archived"
)

// Job is one translation request. Only Status and DownloadURL change after
// creation.
type Job struct {
	ID          int64   `json:"id" db:"id"`
	Status      Status  `json:"status" db:"status"`
	SrcLang     string  `json:"src_lang" db:"src_lang"`
	TgtLang     string  `json:"tgt_lang" db:"tgt_lang"`
	DownloadURL *string `json:"download_url" db:"download_url"`
	Glossary    string  `json:"-" db:"glossary"`

	// Engine selection, fixed at submission.
	Backend     string `json:"-" db:"backend"`
	Model       string `json:"-" db:"model"`
	InputPrefix string `json:"-" db:"input_prefix"`
	Placeholder string `json:"-" db:"placeholder"`
}

// Task is what the queue hands to a worker. Token is the per-job credential
// for API-backed translators and is never persisted.
type Task struct {
	JobID int64
	Token string
}

func DownloadPath(id int64) string {
	return fmt.Sprintf("/api/jobs/%d/download", id)
}

func (j *Job) SetDownloadURL() {
	url := DownloadPath(j.ID)
	j.DownloadURL = &url
}

func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusArchived
}
