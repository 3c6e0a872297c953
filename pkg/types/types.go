package types

import (
	"fmt"
	"time"
)

// Language identifies one of the supported sandbox interpreters.
type Language string

const (
	LanguagePython Language = "py"
	LanguageR      Language = "r"
)

// ParseLanguage validates a request language selector.
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case LanguagePython:
		return LanguagePython, nil
	case LanguageR:
		return LanguageR, nil
	default:
		return "", fmt.Errorf("language %q is not supported, use Python (\"py\") or R (\"r\")", s)
	}
}

// Argv returns the interpreter command prefix; the source code is appended
// as the final argument.
func (l Language) Argv() []string {
	switch l {
	case LanguagePython:
		return []string{"python", "-c"}
	case LanguageR:
		return []string{"Rscript", "-e"}
	default:
		panic(fmt.Sprintf("unknown language %q", string(l)))
	}
}

// EmptyOutputHint is substituted for an empty stdout on successful runs so
// chat clients show something actionable instead of a blank block.
func (l Language) EmptyOutputHint() string {
	switch l {
	case LanguagePython:
		return "Empty. Make sure to explicitly print the results in Python"
	case LanguageR:
		return "Empty. Make sure to use print() or cat() to display results in R"
	default:
		return "Empty. Make sure to explicitly output the results"
	}
}

// ExecStatus is the outcome classification of one execution.
type ExecStatus string

const (
	StatusOK    ExecStatus = "ok"
	StatusError ExecStatus = "error"
)

// FileRecord is the persisted metadata for one file owned by a session.
// Filepath is relative to the upload root ("<session_id>/<rel>").
type FileRecord struct {
	ID               string    `gorm:"primaryKey;size:21" json:"id"`
	SessionID        string    `gorm:"size:21;not null;index:idx_files_session_id;uniqueIndex:idx_files_session_filename" json:"session_id"`
	Filename         string    `gorm:"size:255;not null;uniqueIndex:idx_files_session_filename" json:"filename"`
	Filepath         string    `gorm:"not null" json:"filepath"`
	Size             int64     `gorm:"not null" json:"size"`
	ContentType      string    `gorm:"not null" json:"content_type"`
	OriginalFilename string    `gorm:"not null" json:"original_filename"`
	Etag             string    `gorm:"not null" json:"etag"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	LastModified     time.Time `gorm:"not null;index:idx_files_last_modified" json:"last_modified"`
}

// TableName returns the table name for FileRecord.
func (FileRecord) TableName() string { return "files" }

// FileReference identifies a previously uploaded file the caller wants
// available during execution.
type FileReference struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

// ContainerMetrics tracks one live sandbox container. An entry exists from
// container start until teardown.
type ContainerMetrics struct {
	StartTime   time.Time `json:"start_time"`
	ContainerID string    `json:"container_id"`

	// MemoryUsage is in bytes, CPUUsage in percent. Both are best-effort
	// samples and may remain zero for short-lived containers.
	MemoryUsage int64   `json:"memory_usage"`
	CPUUsage    float64 `json:"cpu_usage"`
}

// ExecutionMetrics is the per-run resource summary returned to the caller.
type ExecutionMetrics struct {
	MemoryUsage   int64   `json:"memory_usage"`
	CPUUsage      float64 `json:"cpu_usage"`
	ExecutionTime float64 `json:"execution_time"`
}

// ExecutionResult is the structured outcome of one sandbox run. The engine
// never returns an error to its caller; every failure mode is folded into
// Status and Stderr.
type ExecutionResult struct {
	Stdout  string            `json:"stdout"`
	Stderr  string            `json:"stderr"`
	Status  ExecStatus        `json:"status"`
	Files   []FileRecord      `json:"files"`
	Metrics *ExecutionMetrics `json:"metrics,omitempty"`
}
