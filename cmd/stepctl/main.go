package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vesper-ml/vesper-go/internal/platform/auth"
	"github.com/vesper-ml/vesper-go/internal/platform/objectstore"
	"github.com/vesper-ml/vesper-go/internal/repack"
	"github.com/vesper-ml/vesper-go/internal/session"
	storageobjectstore "github.com/vesper-ml/vesper-go/internal/storage/objectstore"
	"github.com/vesper-ml/vesper-go/internal/workflow"
	"golang.org/x/oauth2"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "stepctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stepctl",
		Short:         "Render and prepare workflow step requests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRenderCmd(), newRepackCmd(), newRepackageCmd(), newSubmitCmd())
	return root
}

func newRenderCmd() *cobra.Command {
	var (
		file   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a pipeline definition to step request JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := loadPipeline(file)
			if err != nil {
				return err
			}
			requests, err := pipeline.Render()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer func() { _ = f.Close() }()
				out = f
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(requests)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "pipeline.yaml", "pipeline definition file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON to a file instead of stdout")
	return cmd
}

func newRepackCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "repack",
		Short: "Stage source archives for the repack steps of a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := loadPipeline(file)
			if err != nil {
				return err
			}

			prepared := 0
			for _, step := range pipeline.Steps {
				repackStep, ok := step.(*workflow.RepackModelStep)
				if !ok {
					continue
				}
				if err := repackStep.Prepare(cmd.Context()); err != nil {
					return fmt.Errorf("prepare step %s: %w", step.Name(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "prepared %s -> %s\n", step.Name(), repackStep.SubmitDirURI())
				prepared++
			}
			if prepared == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no repack steps in pipeline")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "pipeline.yaml", "pipeline definition file")
	return cmd
}

func newRepackageCmd() *cobra.Command {
	var (
		modelData  string
		dest       string
		entryPoint string
		sourceDir  string
	)
	cmd := &cobra.Command{
		Use:   "repackage",
		Short: "Rewrite a model archive with inference code and the bootstrap script",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeCfg, err := objectstore.ConfigFromEnv()
			if err != nil {
				return err
			}
			store, err := storageobjectstore.NewMinioStore(storeCfg)
			if err != nil {
				return err
			}

			if err := repack.Repackage(cmd.Context(), store, modelData, dest, repack.Input{
				EntryPoint: entryPoint,
				SourceDir:  sourceDir,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repackaged %s -> %s\n", modelData, dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelData, "model-data", "", "model archive URI or local directory")
	cmd.Flags().StringVar(&dest, "dest", "", "destination archive URI")
	cmd.Flags().StringVar(&entryPoint, "entry-point", "", "inference entry point script")
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "optional source directory shipped alongside the entry point")
	_ = cmd.MarkFlagRequired("model-data")
	_ = cmd.MarkFlagRequired("dest")
	_ = cmd.MarkFlagRequired("entry-point")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var (
		file        string
		registryURL string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit rendered register-model requests to the model registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := loadPipeline(file)
			if err != nil {
				return err
			}
			requests, err := pipeline.Render()
			if err != nil {
				return err
			}
			client, err := registryClient(cmd.Context())
			if err != nil {
				return err
			}

			base := strings.TrimRight(registryURL, "/")
			submitted := 0
			for _, req := range requests {
				if req.Type != workflow.StepTypeRegisterModel {
					continue
				}
				location, err := postModelPackage(cmd.Context(), client, base, req.Arguments)
				if err != nil {
					return fmt.Errorf("submit step %s: %w", req.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s -> %s\n", req.Name, location)
				submitted++
			}
			if submitted == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no register-model steps in pipeline")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "pipeline.yaml", "pipeline definition file")
	cmd.Flags().StringVar(&registryURL, "registry-url", os.Getenv("VESPER_REGISTRY_URL"), "model registry base URL")
	_ = cmd.MarkFlagRequired("registry-url")
	return cmd
}

// registryClient authenticates against the registry with the client
// credentials grant when auth runs in oidc mode; in dev and disabled
// modes requests go out unauthenticated.
func registryClient(ctx context.Context) (*http.Client, error) {
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if authCfg.Mode != auth.ModeOIDC {
		return http.DefaultClient, nil
	}
	svc, err := auth.NewOIDCService(ctx, authCfg)
	if err != nil {
		return nil, err
	}
	source, err := svc.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, source), nil
}

func postModelPackage(ctx context.Context, client *http.Client, base string, arguments map[string]any) (string, error) {
	body, err := json.Marshal(arguments)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/model-packages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("registry returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp.Header.Get("Location"), nil
}

func loadPipeline(file string) (*workflow.Pipeline, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open definition: %w", err)
	}
	defer func() { _ = f.Close() }()

	def, err := workflow.ParseDefinition(f)
	if err != nil {
		return nil, err
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	store, err := storageobjectstore.NewMinioStore(storeCfg)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(session.Config{
		Bucket: storeCfg.Bucket,
		Region: storeCfg.Region,
		Store:  store,
	})
	if err != nil {
		return nil, err
	}

	return def.Build(sess)
}
