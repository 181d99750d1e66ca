package workflow

import (
	"fmt"
	"io"
	"strings"

	"github.com/vesper-ml/vesper-go/internal/session"
	"gopkg.in/yaml.v3"
)

// Definition is the YAML form of a pipeline: the same steps the SDK
// builds in code, declared in a file.
type Definition struct {
	Name  string           `yaml:"name"`
	Steps []StepDefinition `yaml:"steps"`
}

type StepDefinition struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Repack model fields.
	RoleArn      string `yaml:"role_arn,omitempty"`
	ModelData    string `yaml:"model_data,omitempty"`
	EntryPoint   string `yaml:"entry_point,omitempty"`
	SourceDir    string `yaml:"source_dir,omitempty"`
	ImageURI     string `yaml:"image_uri,omitempty"`
	InstanceType string `yaml:"instance_type,omitempty"`

	// Register model fields.
	ModelPackageGroup      string   `yaml:"model_package_group,omitempty"`
	ContentTypes           []string `yaml:"content_types,omitempty"`
	ResponseTypes          []string `yaml:"response_types,omitempty"`
	InferenceInstanceTypes []string `yaml:"inference_instance_types,omitempty"`
	TransformInstanceTypes []string `yaml:"transform_instance_types,omitempty"`
	ApprovalStatus         string   `yaml:"approval_status,omitempty"`
	Description            string   `yaml:"description,omitempty"`

	// ModelDataFrom references an earlier step's model artifact instead of
	// a literal location.
	ModelDataFrom *StepOutputRef `yaml:"model_data_from,omitempty"`
}

type StepOutputRef struct {
	Step string `yaml:"step"`
	Path string `yaml:"path,omitempty"`
}

// Pipeline is an ordered collection of steps sharing one session.
type Pipeline struct {
	Name  string
	Steps []Step
}

// Render produces the request for every step, in declaration order.
func (p *Pipeline) Render() ([]Request, error) {
	requests := make([]Request, 0, len(p.Steps))
	for _, step := range p.Steps {
		request, err := ToRequest(step)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// ParseDefinition decodes a YAML pipeline definition.
func ParseDefinition(r io.Reader) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("parse pipeline definition: %w", err)
	}
	if strings.TrimSpace(def.Name) == "" {
		return Definition{}, fmt.Errorf("pipeline name is required")
	}
	if len(def.Steps) == 0 {
		return Definition{}, fmt.Errorf("pipeline has no steps")
	}
	return def, nil
}

// Build turns a definition into a pipeline bound to a session.
func (d Definition) Build(sess *session.Session) (*Pipeline, error) {
	steps := make([]Step, 0, len(d.Steps))
	for _, sd := range d.Steps {
		step, err := sd.build(sess)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", sd.Name, err)
		}
		steps = append(steps, step)
	}
	return &Pipeline{Name: d.Name, Steps: steps}, nil
}

func (sd StepDefinition) build(sess *session.Session) (Step, error) {
	modelData, err := sd.modelData()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(sd.Type)) {
	case "repack-model":
		return NewRepackModelStep(RepackModelConfig{
			Name:         sd.Name,
			Session:      sess,
			RoleArn:      sd.RoleArn,
			ModelData:    modelData,
			EntryPoint:   sd.EntryPoint,
			SourceDir:    sd.SourceDir,
			ImageURI:     sd.ImageURI,
			InstanceType: sd.InstanceType,
			DependsOn:    sd.DependsOn,
		})
	case "register-model":
		return NewRegisterModelStep(RegisterModelConfig{
			Name:                   sd.Name,
			ModelPackageGroup:      sd.ModelPackageGroup,
			ModelData:              modelData,
			ImageURI:               sd.ImageURI,
			ContentTypes:           sd.ContentTypes,
			ResponseTypes:          sd.ResponseTypes,
			InferenceInstanceTypes: sd.InferenceInstanceTypes,
			TransformInstanceTypes: sd.TransformInstanceTypes,
			ApprovalStatus:         sd.ApprovalStatus,
			Description:            sd.Description,
			DependsOn:              sd.DependsOn,
		})
	default:
		return nil, fmt.Errorf("unknown step type %q", sd.Type)
	}
}

func (sd StepDefinition) modelData() (any, error) {
	if sd.ModelDataFrom != nil {
		if strings.TrimSpace(sd.ModelData) != "" {
			return nil, fmt.Errorf("model_data and model_data_from are mutually exclusive")
		}
		if strings.TrimSpace(sd.ModelDataFrom.Step) == "" {
			return nil, fmt.Errorf("model_data_from.step is required")
		}
		ref := StepRef(sd.ModelDataFrom.Step)
		for _, part := range strings.Split(sd.ModelDataFrom.Path, ".") {
			ref = ref.Get(strings.TrimSpace(part))
		}
		return ref, nil
	}
	if strings.TrimSpace(sd.ModelData) == "" {
		return nil, nil
	}
	return sd.ModelData, nil
}
