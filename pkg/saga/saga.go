package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the current status of a saga
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCompensating Status = "compensating"
	StatusCompensated  Status = "compensated"
)

// StepStatus represents the status of a saga step
type StepStatus string

const (
	StepStatusPending      StepStatus = "pending"
	StepStatusRunning      StepStatus = "running"
	StepStatusCompleted    StepStatus = "completed"
	StepStatusFailed       StepStatus = "failed"
	StepStatusCompensating StepStatus = "compensating"
	StepStatusCompensated  StepStatus = "compensated"
)

// Data carries values between saga steps
type Data map[string]interface{}

// ExecuteFunc is the function signature for step execution. Returned data
// is merged into the saga data before the next step runs.
type ExecuteFunc func(ctx context.Context, data Data) (Data, error)

// CompensateFunc undoes a completed step. Compensation is best-effort: its
// error is recorded but never replaces the error that triggered it.
type CompensateFunc func(ctx context.Context, data Data) error

// Step represents a single step in a saga
type Step struct {
	Name       string         `json:"name"`
	Execute    ExecuteFunc    `json:"-"`
	Compensate CompensateFunc `json:"-"`
	Timeout    time.Duration  `json:"timeout"`
}

// StepResult represents the result of executing a step
type StepResult struct {
	StepName   string     `json:"step_name"`
	Status     StepStatus `json:"status"`
	Data       Data       `json:"data,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// Definition defines a saga with its ordered steps
type Definition struct {
	Name    string        `json:"name"`
	Steps   []*Step       `json:"steps"`
	Timeout time.Duration `json:"timeout"`
}

// NewDefinition creates a new saga definition
func NewDefinition(name string) *Definition {
	return &Definition{
		Name:    name,
		Steps:   make([]*Step, 0),
		Timeout: 5 * time.Minute,
	}
}

// AddStep appends a step to the saga definition
func (d *Definition) AddStep(step *Step) *Definition {
	if step.Timeout == 0 {
		step.Timeout = 30 * time.Second
	}
	d.Steps = append(d.Steps, step)
	return d
}

// WithTimeout sets the overall saga timeout
func (d *Definition) WithTimeout(timeout time.Duration) *Definition {
	d.Timeout = timeout
	return d
}

// Instance represents a running or completed saga instance
type Instance struct {
	ID           string        `json:"id"`
	DefinitionID string        `json:"definition_id"`
	Status       Status        `json:"status"`
	Data         Data          `json:"data"`
	StepResults  []*StepResult `json:"step_results"`
	CurrentStep  int           `json:"current_step"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`

	mu sync.RWMutex
}

// NewInstance creates a new saga instance
func NewInstance(definitionID string, initialData Data) *Instance {
	now := time.Now()
	if initialData == nil {
		initialData = make(Data)
	}
	return &Instance{
		ID:           uuid.New().String(),
		DefinitionID: definitionID,
		Status:       StatusPending,
		Data:         initialData,
		StepResults:  make([]*StepResult, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// SetStatus updates the saga status
func (i *Instance) SetStatus(status Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Status = status
	i.UpdatedAt = time.Now()
}

// GetStatus returns the current saga status
func (i *Instance) GetStatus() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Status
}

// AddStepResult appends a step result
func (i *Instance) AddStepResult(result *StepResult) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.StepResults = append(i.StepResults, result)
	i.UpdatedAt = time.Now()
}

// UpdateData merges new data into the saga data
func (i *Instance) UpdateData(data Data) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k, v := range data {
		i.Data[k] = v
	}
	i.UpdatedAt = time.Now()
}

// GetData returns a copy of the saga data
func (i *Instance) GetData() Data {
	i.mu.RLock()
	defer i.mu.RUnlock()
	result := make(Data, len(i.Data))
	for k, v := range i.Data {
		result[k] = v
	}
	return result
}

// SetError records the saga error
func (i *Instance) SetError(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		i.Error = err.Error()
	}
	i.UpdatedAt = time.Now()
}

// Complete marks the saga as completed
func (i *Instance) Complete() {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := time.Now()
	i.Status = StatusCompleted
	i.CompletedAt = &now
	i.UpdatedAt = now
}

// ToJSON serializes the saga instance
func (i *Instance) ToJSON() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return json.Marshal(i)
}

// FromJSON deserializes a saga instance
func FromJSON(data []byte) (*Instance, error) {
	var instance Instance
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saga instance: %w", err)
	}
	return &instance, nil
}
