package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/vesper-ml/vesper-go/internal/domain"
	"github.com/vesper-ml/vesper-go/internal/platform/auth"
	"github.com/vesper-ml/vesper-go/internal/repo"
	"github.com/vesper-ml/vesper-go/internal/workflow"
)

type memPackageRepo struct {
	packages map[string]domain.ModelPackage
	versions map[string]int
}

func newMemPackageRepo() *memPackageRepo {
	return &memPackageRepo{
		packages: map[string]domain.ModelPackage{},
		versions: map[string]int{},
	}
}

func (m *memPackageRepo) Create(ctx context.Context, pkg domain.ModelPackage) (domain.ModelPackage, error) {
	m.versions[pkg.GroupName]++
	pkg.Version = m.versions[pkg.GroupName]
	m.packages[pkg.ID] = pkg
	return pkg, nil
}

func (m *memPackageRepo) Get(ctx context.Context, id string) (domain.ModelPackage, error) {
	pkg, ok := m.packages[id]
	if !ok {
		return domain.ModelPackage{}, repo.ErrNotFound
	}
	return pkg, nil
}

func (m *memPackageRepo) List(ctx context.Context, filter repo.ModelPackageFilter) ([]domain.ModelPackage, error) {
	out := make([]domain.ModelPackage, 0, len(m.packages))
	for _, pkg := range m.packages {
		if filter.GroupName != "" && pkg.GroupName != filter.GroupName {
			continue
		}
		if filter.Status != "" && pkg.ApprovalStatus != filter.Status {
			continue
		}
		out = append(out, pkg)
	}
	return out, nil
}

func (m *memPackageRepo) UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus) error {
	pkg, ok := m.packages[id]
	if !ok {
		return repo.ErrNotFound
	}
	pkg.ApprovalStatus = status
	m.packages[id] = pkg
	return nil
}

func testHandler(t *testing.T, roles ...string) (http.Handler, *memPackageRepo) {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{"admin"}
	}
	store := newMemPackageRepo()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	api := newRegistryAPI(logger, newRegistryService(store), nil)

	router := chi.NewRouter()
	api.register(router)

	handler := auth.Middleware{
		Authenticator: auth.NewDevAuthenticator(auth.Config{
			DevSubject: "tester",
			DevEmail:   "tester@example.local",
			DevRoles:   roles,
		}),
		Authorize: auth.MethodRoleAuthorizer(),
	}.Wrap(router)
	return handler, store
}

func registerPayload() string {
	return `{
		"InferenceSpecification": {
			"Containers": [{"Image": "012345678901.dkr.ecr.us-west-2.amazonaws.com/fakeimage:latest", "ModelDataUrl": "s3://vesper/model.tar.gz"}],
			"SupportedContentTypes": ["text/csv"],
			"SupportedResponseMIMETypes": ["text/csv"],
			"SupportedRealtimeInferenceInstanceTypes": ["ml.t2.medium"],
			"SupportedTransformInstanceTypes": ["ml.m5.large"]
		},
		"ModelApprovalStatus": "PendingManualApproval",
		"ModelPackageGroupName": "churn"
	}`
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterPackage(t *testing.T) {
	h, _ := testHandler(t)

	rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", registerPayload())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201: %s", rec.Code, rec.Body.String())
	}

	var got modelPackage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.PackageID == "" {
		t.Fatalf("expected package id")
	}
	if got.GroupName != "churn" {
		t.Fatalf("GroupName=%q, want churn", got.GroupName)
	}
	if got.Version != 1 {
		t.Fatalf("Version=%d, want 1", got.Version)
	}
	if got.ApprovalStatus != string(domain.ApprovalStatusPending) {
		t.Fatalf("ApprovalStatus=%q, want pending", got.ApprovalStatus)
	}
	if got.ModelDataURI != "s3://vesper/model.tar.gz" {
		t.Fatalf("ModelDataURI=%q", got.ModelDataURI)
	}
	if loc := rec.Header().Get("Location"); loc != "/model-packages/"+got.PackageID {
		t.Fatalf("Location=%q", loc)
	}
	if got.CreatedBy != "tester" {
		t.Fatalf("CreatedBy=%q, want tester", got.CreatedBy)
	}
}

func TestRegisterPackage_AcceptsRenderedStepPayload(t *testing.T) {
	h, store := testHandler(t)

	step, err := workflow.NewRegisterModelStep(workflow.RegisterModelConfig{
		Name:                   "RegisterChurn",
		ModelPackageGroup:      "churn",
		ModelData:              "s3://vesper/model.tar.gz",
		ImageURI:               "012345678901.dkr.ecr.us-west-2.amazonaws.com/fakeimage:latest",
		ContentTypes:           []string{"text/csv"},
		ResponseTypes:          []string{"text/csv"},
		InferenceInstanceTypes: []string{"ml.t2.medium"},
		TransformInstanceTypes: []string{"ml.m5.large"},
		ModelMetrics:           map[string]any{"accuracy": 0.92},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args, err := step.Arguments()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal arguments: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", string(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201: %s", rec.Code, rec.Body.String())
	}
	var got modelPackage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	stored, err := store.Get(context.Background(), got.PackageID)
	if err != nil {
		t.Fatalf("get stored package: %v", err)
	}
	metrics, ok := stored.Metadata["model_metrics"].(map[string]any)
	if !ok {
		t.Fatalf("expected model_metrics in metadata, got %v", stored.Metadata)
	}
	if metrics["accuracy"] != 0.92 {
		t.Fatalf("accuracy=%v, want 0.92", metrics["accuracy"])
	}
}

func TestRegisterPackage_VersionIncrementsPerGroup(t *testing.T) {
	h, _ := testHandler(t)

	for want := 1; want <= 3; want++ {
		rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", registerPayload())
		if rec.Code != http.StatusCreated {
			t.Fatalf("status=%d, want 201", rec.Code)
		}
		var got modelPackage
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if got.Version != want {
			t.Fatalf("Version=%d, want %d", got.Version, want)
		}
	}
}

func TestRegisterPackage_RejectsMissingGroup(t *testing.T) {
	h, _ := testHandler(t)

	body := `{"InferenceSpecification": {"Containers": [{"Image": "img", "ModelDataUrl": "s3://vesper/model.tar.gz"}]}}`
	rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "model_package_group_required") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRegisterPackage_RejectsLocalModelData(t *testing.T) {
	h, _ := testHandler(t)

	body := strings.Replace(registerPayload(), "s3://vesper/model.tar.gz", "/tmp/model.tar.gz", 1)
	rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "model_data_uri_invalid") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRegisterPackage_ViewerForbidden(t *testing.T) {
	h, _ := testHandler(t, "viewer")

	rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", registerPayload())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", rec.Code)
	}
}

func TestGetPackage_NotFound(t *testing.T) {
	h, _ := testHandler(t)

	rec := doJSON(t, h, http.MethodGet, "http://example.test/model-packages/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestListPackages_FilterByStatus(t *testing.T) {
	h, _ := testHandler(t)

	rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", registerPayload())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "http://example.test/model-packages?status=Approved", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	var listed struct {
		ModelPackages []modelPackage `json:"model_packages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(listed.ModelPackages) != 0 {
		t.Fatalf("expected no approved packages, got %d", len(listed.ModelPackages))
	}

	rec = doJSON(t, h, http.MethodGet, "http://example.test/model-packages?status=PendingManualApproval", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(listed.ModelPackages) != 1 {
		t.Fatalf("expected one pending package, got %d", len(listed.ModelPackages))
	}
}

func TestSetApproval_Lifecycle(t *testing.T) {
	h, _ := testHandler(t, "approver")

	rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", registerPayload())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201", rec.Code)
	}
	var created modelPackage
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	target := fmt.Sprintf("http://example.test/model-packages/%s/approval", created.PackageID)
	rec = doJSON(t, h, http.MethodPut, target, `{"status": "Approved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rec.Code, rec.Body.String())
	}
	var updated modelPackage
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if updated.ApprovalStatus != string(domain.ApprovalStatusApproved) {
		t.Fatalf("ApprovalStatus=%q, want approved", updated.ApprovalStatus)
	}

	// Approved -> PendingManualApproval is not a legal transition.
	rec = doJSON(t, h, http.MethodPut, target, `{"status": "PendingManualApproval"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestSetApproval_RequiresApproverRole(t *testing.T) {
	h, _ := testHandler(t, "editor")

	rec := doJSON(t, h, http.MethodPost, "http://example.test/model-packages", registerPayload())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201", rec.Code)
	}
	var created modelPackage
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	target := fmt.Sprintf("http://example.test/model-packages/%s/approval", created.PackageID)
	rec = doJSON(t, h, http.MethodPut, target, `{"status": "Approved"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", rec.Code)
	}
}

func TestDecodeJSON_RejectsExtraValue(t *testing.T) {
	req := httptest.NewRequest("POST", "http://example.test/", strings.NewReader(`{"status":"a"} {"status":"b"}`))
	var dst setApprovalRequest
	if err := decodeJSON(req, &dst); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeJSON_DisallowUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "http://example.test/", strings.NewReader(`{"status":"a","extra":1}`))
	var dst setApprovalRequest
	if err := decodeJSON(req, &dst); err == nil {
		t.Fatalf("expected error")
	}
}
