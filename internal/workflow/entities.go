package workflow

import "encoding/json"

// Expression is a deferred pipeline value. Expressions render to their
// reference form and are resolved by the orchestrator at execution time.
type Expression interface {
	Expr() map[string]any
}

// Property references a runtime attribute of a step, such as the name of
// the training job a step launched.
type Property struct {
	path string
}

// StepRef returns the property root for a step.
func StepRef(stepName string) Property {
	return Property{path: "Steps." + stepName}
}

// Get descends into a nested attribute of the referenced value.
func (p Property) Get(name string) Property {
	if name == "" {
		return p
	}
	return Property{path: p.path + "." + name}
}

func (p Property) Expr() map[string]any {
	return map[string]any{"Get": p.path}
}

func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Expr())
}

// Join concatenates values, some of which may be expressions, with a
// separator. It renders to the orchestrator's Std:Join function.
type Join struct {
	On     string
	Values []any
}

func (j Join) Expr() map[string]any {
	values := make([]any, len(j.Values))
	for i, v := range j.Values {
		if expr, ok := v.(Expression); ok {
			values[i] = expr.Expr()
		} else {
			values[i] = v
		}
	}
	return map[string]any{
		"Std:Join": map[string]any{
			"On":     j.On,
			"Values": values,
		},
	}
}

func (j Join) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Expr())
}

// TrainingProperties exposes the runtime attributes of a training step.
type TrainingProperties struct {
	TrainingJobName   Property
	TrainingJobArn    Property
	TrainingJobStatus Property
	ModelArtifacts    ModelArtifactsProperties
}

type ModelArtifactsProperties struct {
	S3ModelArtifacts Property
}

func trainingProperties(stepName string) TrainingProperties {
	root := StepRef(stepName)
	return TrainingProperties{
		TrainingJobName:   root.Get("TrainingJobName"),
		TrainingJobArn:    root.Get("TrainingJobArn"),
		TrainingJobStatus: root.Get("TrainingJobStatus"),
		ModelArtifacts: ModelArtifactsProperties{
			S3ModelArtifacts: root.Get("ModelArtifacts").Get("S3ModelArtifacts"),
		},
	}
}

// RegisterModelProperties exposes the runtime attributes of a register
// model step.
type RegisterModelProperties struct {
	ModelPackageName Property
	ModelPackageArn  Property
	ApprovalStatus   Property
}

func registerModelProperties(stepName string) RegisterModelProperties {
	root := StepRef(stepName)
	return RegisterModelProperties{
		ModelPackageName: root.Get("ModelPackageName"),
		ModelPackageArn:  root.Get("ModelPackageArn"),
		ApprovalStatus:   root.Get("ModelApprovalStatus"),
	}
}
