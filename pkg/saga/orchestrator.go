package saga

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the minimal logging interface the orchestrator needs
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NoOpLogger discards all log output
type NoOpLogger struct{}

func (l *NoOpLogger) Info(msg string, fields ...interface{})  {}
func (l *NoOpLogger) Warn(msg string, fields ...interface{})  {}
func (l *NoOpLogger) Error(msg string, fields ...interface{}) {}

// Orchestrator manages saga execution and compensation
type Orchestrator struct {
	definitions map[string]*Definition
	store       Store
	logger      Logger
	mu          sync.RWMutex
}

// OrchestratorConfig holds configuration for the orchestrator
type OrchestratorConfig struct {
	Store  Store
	Logger Logger
}

// NewOrchestrator creates a new saga orchestrator
func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Orchestrator{
		definitions: make(map[string]*Definition),
		store:       store,
		logger:      logger,
	}
}

// RegisterDefinition registers a saga definition
func (o *Orchestrator) RegisterDefinition(def *Definition) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.definitions[def.Name]; exists {
		return fmt.Errorf("saga definition %s already registered", def.Name)
	}

	o.definitions[def.Name] = def
	return nil
}

// GetDefinition retrieves a saga definition by name
func (o *Orchestrator) GetDefinition(name string) (*Definition, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	def, exists := o.definitions[name]
	if !exists {
		return nil, fmt.Errorf("saga definition %s not found", name)
	}
	return def, nil
}

// Execute starts a new saga instance and runs it to completion. On step
// failure all completed steps are compensated in reverse order and the
// original step error is returned unwrapped, so callers can classify it.
func (o *Orchestrator) Execute(ctx context.Context, definitionName string, initialData Data) (*Instance, error) {
	def, err := o.GetDefinition(definitionName)
	if err != nil {
		return nil, err
	}

	instance := NewInstance(def.Name, initialData)
	o.logger.Info("Starting saga", "saga_id", instance.ID, "definition", def.Name)

	if err := o.store.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save saga instance: %w", err)
	}

	sagaCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	instance.SetStatus(StatusRunning)
	o.persist(sagaCtx, instance)

	var stepErr error

	for i, step := range def.Steps {
		instance.CurrentStep = i

		if err := sagaCtx.Err(); err != nil {
			stepErr = err
			break
		}

		result, err := o.executeStep(sagaCtx, step, instance)
		instance.AddStepResult(result)
		o.persist(sagaCtx, instance)

		if err != nil {
			stepErr = err
			o.logger.Error("Saga step failed", "saga_id", instance.ID, "step", step.Name, "error", err)
			break
		}

		if result.Data != nil {
			instance.UpdateData(result.Data)
		}
	}

	if stepErr != nil {
		instance.SetError(stepErr)
		o.compensate(sagaCtx, def, instance)
		return instance, stepErr
	}

	instance.Complete()
	o.persist(sagaCtx, instance)
	o.logger.Info("Saga completed", "saga_id", instance.ID)
	return instance, nil
}

// executeStep executes a single step with its timeout
func (o *Orchestrator) executeStep(ctx context.Context, step *Step, instance *Instance) (*StepResult, error) {
	result := &StepResult{
		StepName:  step.Name,
		Status:    StepStatusRunning,
		StartedAt: time.Now(),
	}

	stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	resultData, err := step.Execute(stepCtx, instance.GetData())
	result.FinishedAt = time.Now()

	if err != nil {
		result.Status = StepStatusFailed
		result.Error = err.Error()
		return result, err
	}

	result.Status = StepStatusCompleted
	result.Data = resultData
	return result, nil
}

// compensate undoes completed steps in reverse order. Compensation errors
// are logged but never surfaced; the triggering error stays the outcome.
func (o *Orchestrator) compensate(ctx context.Context, def *Definition, instance *Instance) {
	instance.SetStatus(StatusCompensating)
	o.persist(ctx, instance)

	for i := len(instance.StepResults) - 1; i >= 0; i-- {
		stepResult := instance.StepResults[i]
		if stepResult.Status != StepStatusCompleted {
			continue
		}

		var step *Step
		for _, s := range def.Steps {
			if s.Name == stepResult.StepName {
				step = s
				break
			}
		}
		if step == nil || step.Compensate == nil {
			continue
		}

		// Compensation must run even when the saga context is already done
		stepResult.Status = StepStatusCompensating
		stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), step.Timeout)
		err := step.Compensate(stepCtx, instance.GetData())
		cancel()

		if err != nil {
			stepResult.Status = StepStatusFailed
			stepResult.Error = err.Error()
			o.logger.Error("Saga compensation failed", "saga_id", instance.ID, "step", step.Name, "error", err)
		} else {
			stepResult.Status = StepStatusCompensated
			o.logger.Info("Saga step compensated", "saga_id", instance.ID, "step", step.Name)
		}
	}

	instance.SetStatus(StatusCompensated)
	now := time.Now()
	instance.CompletedAt = &now
	instance.UpdatedAt = now
	o.persist(ctx, instance)
}

// GetInstance retrieves a saga instance by ID
func (o *Orchestrator) GetInstance(ctx context.Context, id string) (*Instance, error) {
	return o.store.Get(ctx, id)
}

func (o *Orchestrator) persist(ctx context.Context, instance *Instance) {
	if err := o.store.Update(ctx, instance); err != nil {
		o.logger.Error("Failed to persist saga instance", "saga_id", instance.ID, "error", err)
	}
}
