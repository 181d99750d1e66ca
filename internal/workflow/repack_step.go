package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vesper-ml/vesper-go/internal/repack"
	"github.com/vesper-ml/vesper-go/internal/session"
	"github.com/vesper-ml/vesper-go/internal/storage/objectstore"
)

// RepackModelConfig configures a repack model step. ModelData may be a
// literal s3:// URI or an Expression referencing an earlier step's output.
// SourceDir is optional and may be a local directory or an s3:// URI of an
// existing source archive.
type RepackModelConfig struct {
	Name         string
	Session      *session.Session
	RoleArn      string
	ModelData    any
	EntryPoint   string
	SourceDir    string
	ImageURI     string
	InstanceType string
	DependsOn    []string
}

// RepackModelStep describes a training job whose sole purpose is to unpack
// a model artifact, inject the inference entry point and the generated
// bootstrap script, repack, and re-upload the result.
type RepackModelStep struct {
	name         string
	sess         *session.Session
	roleArn      string
	modelData    any
	entryPoint   string
	sourceDir    string
	imageURI     string
	instanceType string
	dependsOn    []string
}

func NewRepackModelStep(cfg RepackModelConfig) (*RepackModelStep, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("step name is required")
	}
	if cfg.Session == nil {
		return nil, errors.New("session is required")
	}
	if strings.TrimSpace(cfg.RoleArn) == "" {
		return nil, errors.New("role arn is required")
	}
	if cfg.ModelData == nil {
		return nil, errors.New("model data is required")
	}
	if uri, ok := cfg.ModelData.(string); ok && strings.TrimSpace(uri) == "" {
		return nil, errors.New("model data is required")
	}
	if strings.TrimSpace(cfg.EntryPoint) == "" {
		return nil, errors.New("entry point is required")
	}
	return &RepackModelStep{
		name:         name,
		sess:         cfg.Session,
		roleArn:      cfg.RoleArn,
		modelData:    cfg.ModelData,
		entryPoint:   cfg.EntryPoint,
		sourceDir:    strings.TrimSpace(cfg.SourceDir),
		imageURI:     strings.TrimSpace(cfg.ImageURI),
		instanceType: strings.TrimSpace(cfg.InstanceType),
		dependsOn:    cfg.DependsOn,
	}, nil
}

func (s *RepackModelStep) Name() string { return s.name }

func (s *RepackModelStep) Type() StepType { return StepTypeTraining }

func (s *RepackModelStep) DependsOn() []string { return s.dependsOn }

// Properties references the runtime attributes of the launched job.
func (s *RepackModelStep) Properties() TrainingProperties {
	return trainingProperties(s.name)
}

// SubmitDirURI is where the source archive for this step lives. A source
// dir already in object storage is used as-is; anything else is staged
// under a deterministic prefix in the session's default bucket.
func (s *RepackModelStep) SubmitDirURI() string {
	if objectstore.IsURI(s.sourceDir) {
		return s.sourceDir
	}
	return objectstore.URI(s.sess.Bucket(), s.submitDirKey())
}

func (s *RepackModelStep) submitDirKey() string {
	return fmt.Sprintf("%s-%s/source/sourcedir.tar.gz", s.name, s.digest())
}

func (s *RepackModelStep) digest() string {
	h := sha256.New()
	h.Write([]byte(s.name))
	h.Write([]byte{0})
	h.Write([]byte(filepath.Base(s.entryPoint)))
	h.Write([]byte{0})
	h.Write([]byte(s.sess.Bucket()))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Arguments renders the training request arguments. Rendering is pure;
// staging the source archive is Prepare's job.
func (s *RepackModelStep) Arguments() (map[string]any, error) {
	modelArchive := s.modelData
	if expr, ok := s.modelData.(Expression); ok {
		modelArchive = Join{On: "", Values: []any{expr}}
	}

	return buildTrainingArguments(TrainingJobConfig{
		RoleArn:      s.roleArn,
		ImageURI:     s.imageURI,
		InputDataURI: s.modelData,
		OutputPath:   s.sess.OutputPath(),
		InstanceType: s.instanceType,
		HyperParameters: map[string]any{
			"inference_script":  filepath.Base(s.entryPoint),
			"model_archive":     modelArchive,
			"bootstrap_program": repack.BootstrapScriptName,
			"submit_directory":  s.SubmitDirURI(),
		},
	})
}

// Prepare stages the source archive the repack job downloads: local
// sources are archived and uploaded to the submit directory, an archive
// already in object storage gets the bootstrap script injected in place.
func (s *RepackModelStep) Prepare(ctx context.Context) error {
	if objectstore.IsURI(s.sourceDir) {
		return repack.InjectIntoArchive(ctx, s.sess.Store(), s.sourceDir)
	}
	if s.sourceDir != "" {
		if err := repack.WriteBootstrapScript(s.sourceDir); err != nil {
			return err
		}
	}
	_, err := repack.BuildSourceArchive(ctx, s.sess.Store(), s.sess.Bucket(), s.submitDirKey(), repack.Input{
		EntryPoint: s.entryPoint,
		SourceDir:  s.sourceDir,
	})
	return err
}
