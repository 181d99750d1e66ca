package workflow

import (
	"errors"
	"sort"
	"strings"
)

// Defaults applied to training requests when the caller leaves the
// corresponding field zero.
const (
	DefaultInstanceType      = "ml.m5.large"
	DefaultInstanceCount     = 1
	DefaultVolumeSizeGB      = 30
	DefaultMaxRuntimeSeconds = 86400
	trainingChannelName      = "training"
)

// TrainingJobConfig collects everything needed to describe a training job.
// InputDataURI may be a literal object-store URI or an Expression resolved
// at execution time.
type TrainingJobConfig struct {
	RoleArn           string
	ImageURI          string
	InputDataURI      any
	OutputPath        string
	InstanceType      string
	InstanceCount     int
	VolumeSizeGB      int
	MaxRuntimeSeconds int
	HyperParameters   map[string]any
}

func (c TrainingJobConfig) validate() error {
	if strings.TrimSpace(c.RoleArn) == "" {
		return errors.New("role arn is required")
	}
	if c.InputDataURI == nil {
		return errors.New("input data location is required")
	}
	if uri, ok := c.InputDataURI.(string); ok && strings.TrimSpace(uri) == "" {
		return errors.New("input data location is required")
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return errors.New("output path is required")
	}
	return nil
}

func (c TrainingJobConfig) withDefaults() TrainingJobConfig {
	if strings.TrimSpace(c.InstanceType) == "" {
		c.InstanceType = DefaultInstanceType
	}
	if c.InstanceCount <= 0 {
		c.InstanceCount = DefaultInstanceCount
	}
	if c.VolumeSizeGB <= 0 {
		c.VolumeSizeGB = DefaultVolumeSizeGB
	}
	if c.MaxRuntimeSeconds <= 0 {
		c.MaxRuntimeSeconds = DefaultMaxRuntimeSeconds
	}
	return c
}

// buildTrainingArguments renders the vendor-contract argument mapping for
// a training job. Identical configs always render identical arguments.
func buildTrainingArguments(cfg TrainingJobConfig) (map[string]any, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	algorithmSpec := map[string]any{
		"TrainingInputMode": "File",
	}
	if strings.TrimSpace(cfg.ImageURI) != "" {
		algorithmSpec["TrainingImage"] = cfg.ImageURI
	}

	args := map[string]any{
		"AlgorithmSpecification": algorithmSpec,
		"InputDataConfig": []any{
			map[string]any{
				"ChannelName": trainingChannelName,
				"DataSource": map[string]any{
					"S3DataSource": map[string]any{
						"S3DataDistributionType": "FullyReplicated",
						"S3DataType":             "S3Prefix",
						"S3Uri":                  cfg.InputDataURI,
					},
				},
			},
		},
		"OutputDataConfig": map[string]any{
			"S3OutputPath": cfg.OutputPath,
		},
		"ResourceConfig": map[string]any{
			"InstanceCount":  cfg.InstanceCount,
			"InstanceType":   cfg.InstanceType,
			"VolumeSizeInGB": cfg.VolumeSizeGB,
		},
		"RoleArn": cfg.RoleArn,
		"StoppingCondition": map[string]any{
			"MaxRuntimeInSeconds": cfg.MaxRuntimeSeconds,
		},
		"DebugHookConfig": map[string]any{
			"CollectionConfigurations": []any{},
			"S3OutputPath":             cfg.OutputPath,
		},
	}

	if len(cfg.HyperParameters) > 0 {
		hyperparameters := make(map[string]any, len(cfg.HyperParameters))
		keys := make([]string, 0, len(cfg.HyperParameters))
		for key := range cfg.HyperParameters {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			encoded, err := jsonEncode(cfg.HyperParameters[key])
			if err != nil {
				return nil, err
			}
			hyperparameters[key] = encoded
		}
		args["HyperParameters"] = hyperparameters
	}

	return args, nil
}
