// Package repack rewrites model artifacts so a trained model ships with
// the user's inference code and the bootstrap script the repack job runs.
package repack

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vesper-ml/vesper-go/internal/storage/objectstore"
)

// BootstrapScriptName is the filename of the generated bootstrap script
// injected into every source archive.
const BootstrapScriptName = "_bootstrap.py"

const archiveContentType = "application/gzip"

//go:embed bootstrap.py
var bootstrapScript []byte

// WriteBootstrapScript writes the bootstrap script into a local source
// directory. Existing copies are overwritten so the SDK version wins.
func WriteBootstrapScript(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("source dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source dir %s is not a directory", dir)
	}
	return os.WriteFile(filepath.Join(dir, BootstrapScriptName), bootstrapScript, 0o644)
}

// Input describes a source-archive build. EntryPoint is required;
// SourceDir is an optional local directory whose contents ride along.
type Input struct {
	EntryPoint string
	SourceDir  string
}

func (in Input) validate() error {
	if strings.TrimSpace(in.EntryPoint) == "" {
		return errors.New("entry point is required")
	}
	return nil
}

// BuildSourceArchive stages the entry point, the optional source
// directory, and the bootstrap script into a gzipped tarball, uploads it,
// and returns the uploaded object's URI. Every original file is
// preserved; exactly the entry point and the bootstrap script are added.
func BuildSourceArchive(ctx context.Context, store objectstore.Store, bucket, key string, in Input) (string, error) {
	if store == nil {
		return "", errors.New("object store is required")
	}
	if err := in.validate(); err != nil {
		return "", err
	}

	staging, err := os.MkdirTemp("", "vesper-repack-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	if in.SourceDir != "" {
		if err := copyDir(in.SourceDir, staging); err != nil {
			return "", fmt.Errorf("stage source dir: %w", err)
		}
	}

	entryName := filepath.Base(in.EntryPoint)
	if _, err := os.Stat(filepath.Join(staging, entryName)); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("stage entry point: %w", err)
		}
		if err := copyFile(in.EntryPoint, filepath.Join(staging, entryName)); err != nil {
			return "", fmt.Errorf("stage entry point: %w", err)
		}
	}
	if err := WriteBootstrapScript(staging); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := archiveDir(&buf, staging); err != nil {
		return "", err
	}
	if err := store.Put(ctx, bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), archiveContentType); err != nil {
		return "", fmt.Errorf("upload source archive: %w", err)
	}
	return objectstore.URI(bucket, key), nil
}

// InjectIntoArchive downloads an existing source archive, adds the
// bootstrap script, and uploads the result in place. All original files
// survive unchanged.
func InjectIntoArchive(ctx context.Context, store objectstore.Store, uri string) error {
	if store == nil {
		return errors.New("object store is required")
	}
	bucket, key, err := objectstore.ParseURI(uri)
	if err != nil {
		return err
	}

	body, _, err := store.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("download source archive %s: %w", uri, err)
	}
	defer body.Close()

	staging, err := os.MkdirTemp("", "vesper-inject-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := extractArchive(body, staging); err != nil {
		return err
	}
	if err := WriteBootstrapScript(staging); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := archiveDir(&buf, staging); err != nil {
		return err
	}
	if err := store.Put(ctx, bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), archiveContentType); err != nil {
		return fmt.Errorf("upload source archive %s: %w", uri, err)
	}
	return nil
}

// Repackage rewrites a model artifact directly: the archive at modelData
// is unpacked, the inference code is added, and the combined archive is
// uploaded to destURI. Used by the CLI; the repack step defers the same
// work to the training job instead.
func Repackage(ctx context.Context, store objectstore.Store, modelData, destURI string, in Input) error {
	if store == nil {
		return errors.New("object store is required")
	}
	if err := in.validate(); err != nil {
		return err
	}
	destBucket, destKey, err := objectstore.ParseURI(destURI)
	if err != nil {
		return err
	}

	staging, err := os.MkdirTemp("", "vesper-model-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if objectstore.IsURI(modelData) {
		bucket, key, err := objectstore.ParseURI(modelData)
		if err != nil {
			return err
		}
		body, _, err := store.Get(ctx, bucket, key)
		if err != nil {
			return fmt.Errorf("download model archive %s: %w", modelData, err)
		}
		err = extractArchive(body, staging)
		body.Close()
		if err != nil {
			return err
		}
	} else {
		if err := copyDir(modelData, staging); err != nil {
			return fmt.Errorf("stage model dir: %w", err)
		}
	}

	codeDir := filepath.Join(staging, "code")
	if in.SourceDir != "" {
		if err := copyDir(in.SourceDir, codeDir); err != nil {
			return fmt.Errorf("stage source dir: %w", err)
		}
	}
	entryName := filepath.Base(in.EntryPoint)
	if _, err := os.Stat(filepath.Join(codeDir, entryName)); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("stage entry point: %w", err)
		}
		if err := copyFile(in.EntryPoint, filepath.Join(codeDir, entryName)); err != nil {
			return fmt.Errorf("stage entry point: %w", err)
		}
	}
	if err := WriteBootstrapScript(codeDir); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := archiveDir(&buf, staging); err != nil {
		return err
	}
	if err := store.Put(ctx, destBucket, destKey, bytes.NewReader(buf.Bytes()), int64(buf.Len()), archiveContentType); err != nil {
		return fmt.Errorf("upload model archive %s: %w", destURI, err)
	}
	return nil
}
