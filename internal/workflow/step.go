package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StepType identifies the kind of job a step submits to the orchestrator.
type StepType string

const (
	StepTypeTraining      StepType = "Training"
	StepTypeRegisterModel StepType = "RegisterModel"
)

// Step is a declarative unit of a workflow. A step renders to exactly one
// request; rendering is pure and deterministic for a given step.
type Step interface {
	Name() string
	Type() StepType
	DependsOn() []string
	Arguments() (map[string]any, error)
}

// Request is the job description submitted verbatim to the orchestration
// backend. Once rendered it is never mutated.
type Request struct {
	Name      string
	Type      StepType
	DependsOn []string
	Arguments map[string]any
}

func (r Request) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"Name":      r.Name,
		"Type":      r.Type,
		"Arguments": r.Arguments,
	}
	if len(r.DependsOn) > 0 {
		out["DependsOn"] = r.DependsOn
	}
	return json.Marshal(out)
}

// ToRequest renders a step into its request form.
func ToRequest(step Step) (Request, error) {
	if step == nil {
		return Request{}, fmt.Errorf("step is required")
	}
	name := strings.TrimSpace(step.Name())
	if name == "" {
		return Request{}, fmt.Errorf("step name is required")
	}
	args, err := step.Arguments()
	if err != nil {
		return Request{}, fmt.Errorf("step %s: %w", name, err)
	}
	var dependsOn []string
	if deps := step.DependsOn(); len(deps) > 0 {
		dependsOn = append(dependsOn, deps...)
	}
	return Request{
		Name:      name,
		Type:      step.Type(),
		DependsOn: dependsOn,
		Arguments: args,
	}, nil
}

// jsonEncode renders a plain hyperparameter value. The orchestrator expects
// hyperparameters as strings holding JSON-encoded values; expressions pass
// through untouched.
func jsonEncode(v any) (any, error) {
	if expr, ok := v.(Expression); ok {
		return expr, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode hyperparameter: %w", err)
	}
	return string(raw), nil
}
