package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vesper-ml/vesper-go/internal/domain"
	"github.com/vesper-ml/vesper-go/internal/platform/auditlog"
	"github.com/vesper-ml/vesper-go/internal/platform/auth"
	"github.com/vesper-ml/vesper-go/internal/repo"
	"github.com/vesper-ml/vesper-go/internal/storage/objectstore"
)

type registryAPI struct {
	logger *slog.Logger
	svc    *registryService
	audit  auditlog.QueryRower
}

func newRegistryAPI(logger *slog.Logger, svc *registryService, audit auditlog.QueryRower) *registryAPI {
	return &registryAPI{
		logger: logger,
		svc:    svc,
		audit:  audit,
	}
}

func (api *registryAPI) register(r chi.Router) {
	r.Post("/model-packages", api.handleRegisterPackage)
	r.Get("/model-packages", api.handleListPackages)
	r.Get("/model-packages/{package_id}", api.handleGetPackage)
	r.Put("/model-packages/{package_id}/approval", api.handleSetApproval)
}

type containerSpec struct {
	Image        string `json:"Image"`
	ModelDataUrl string `json:"ModelDataUrl"`
}

type inferenceSpecification struct {
	Containers                              []containerSpec `json:"Containers"`
	SupportedContentTypes                   []string        `json:"SupportedContentTypes"`
	SupportedResponseMIMETypes              []string        `json:"SupportedResponseMIMETypes"`
	SupportedRealtimeInferenceInstanceTypes []string        `json:"SupportedRealtimeInferenceInstanceTypes"`
	SupportedTransformInstanceTypes         []string        `json:"SupportedTransformInstanceTypes"`
}

// registerPackageRequest is the declarative payload emitted by a
// register-model workflow step.
type registerPackageRequest struct {
	InferenceSpecification  inferenceSpecification `json:"InferenceSpecification"`
	ModelApprovalStatus     string                 `json:"ModelApprovalStatus,omitempty"`
	ModelPackageGroupName   string                 `json:"ModelPackageGroupName"`
	ModelPackageDescription string                 `json:"ModelPackageDescription,omitempty"`
	ModelMetrics            map[string]any         `json:"ModelMetrics,omitempty"`
	Metadata                map[string]any         `json:"Metadata,omitempty"`
}

type setApprovalRequest struct {
	Status string `json:"status"`
}

type modelPackage struct {
	PackageID              string          `json:"package_id"`
	GroupName              string          `json:"group_name"`
	Version                int             `json:"version"`
	Description            string          `json:"description,omitempty"`
	ModelDataURI           string          `json:"model_data_uri"`
	ImageURI               string          `json:"image_uri"`
	ContentTypes           []string        `json:"content_types"`
	ResponseTypes          []string        `json:"response_types"`
	InferenceInstanceTypes []string        `json:"inference_instance_types"`
	TransformInstanceTypes []string        `json:"transform_instance_types"`
	ApprovalStatus         string          `json:"approval_status"`
	Metadata               json.RawMessage `json:"metadata"`
	CreatedAt              time.Time       `json:"created_at"`
	CreatedBy              string          `json:"created_by"`
}

func (api *registryAPI) handleRegisterPackage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	var req registerPackageRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.ModelPackageGroupName) == "" {
		api.writeError(w, r, http.StatusBadRequest, "model_package_group_required")
		return
	}
	if len(req.InferenceSpecification.Containers) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "container_required")
		return
	}
	container := req.InferenceSpecification.Containers[0]
	if !objectstore.IsURI(container.ModelDataUrl) {
		api.writeError(w, r, http.StatusBadRequest, "model_data_uri_invalid")
		return
	}

	status := domain.ApprovalStatus(strings.TrimSpace(req.ModelApprovalStatus))
	if status != "" && !status.Valid() {
		api.writeError(w, r, http.StatusBadRequest, "approval_status_invalid")
		return
	}

	metadata := req.Metadata
	if len(req.ModelMetrics) > 0 {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["model_metrics"] = req.ModelMetrics
	}

	pkg, err := api.svc.RegisterPackage(r.Context(), registerInput{
		GroupName:              req.ModelPackageGroupName,
		Description:            req.ModelPackageDescription,
		ModelDataURI:           container.ModelDataUrl,
		ImageURI:               container.Image,
		ContentTypes:           req.InferenceSpecification.SupportedContentTypes,
		ResponseTypes:          req.InferenceSpecification.SupportedResponseMIMETypes,
		InferenceInstanceTypes: req.InferenceSpecification.SupportedRealtimeInferenceInstanceTypes,
		TransformInstanceTypes: req.InferenceSpecification.SupportedTransformInstanceTypes,
		ApprovalStatus:         status,
		Metadata:               metadata,
		Actor:                  identity.Subject,
	})
	if err != nil {
		if isUniqueViolation(err) {
			api.writeError(w, r, http.StatusConflict, "model_package_exists")
			return
		}
		api.writeError(w, r, http.StatusBadRequest, "invalid_model_package")
		return
	}

	api.writeAudit(r, identity.Subject, "model_package.register", pkg.ID, map[string]any{
		"group_name":     pkg.GroupName,
		"version":        pkg.Version,
		"model_data_uri": pkg.ModelDataURI,
		"image_uri":      pkg.ImageURI,
	})

	w.Header().Set("Location", "/model-packages/"+pkg.ID)
	api.writeJSON(w, http.StatusCreated, toModelPackage(pkg))
}

func (api *registryAPI) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	packageID := strings.TrimSpace(chi.URLParam(r, "package_id"))
	if packageID == "" {
		api.writeError(w, r, http.StatusBadRequest, "package_id_required")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	pkg, err := api.svc.GetPackage(r.Context(), packageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, toModelPackage(pkg))
}

func (api *registryAPI) handleListPackages(w http.ResponseWriter, r *http.Request) {
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	group := strings.TrimSpace(r.URL.Query().Get("group"))
	statusRaw := strings.TrimSpace(r.URL.Query().Get("status"))
	status := domain.ApprovalStatus(statusRaw)
	if statusRaw != "" && !status.Valid() {
		api.writeError(w, r, http.StatusBadRequest, "approval_status_invalid")
		return
	}
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)

	items, err := api.svc.ListPackages(r.Context(), group, status, limit)
	if err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]modelPackage, 0, len(items))
	for _, item := range items {
		out = append(out, toModelPackage(item))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"model_packages": out})
}

func (api *registryAPI) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	if !auth.HasAtLeast(identity.Roles, auth.RoleApprover) {
		api.writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if api.svc == nil {
		api.writeError(w, r, http.StatusInternalServerError, "service_unavailable")
		return
	}

	packageID := strings.TrimSpace(chi.URLParam(r, "package_id"))
	if packageID == "" {
		api.writeError(w, r, http.StatusBadRequest, "package_id_required")
		return
	}

	var req setApprovalRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	status := domain.ApprovalStatus(strings.TrimSpace(req.Status))
	if !status.Valid() {
		api.writeError(w, r, http.StatusBadRequest, "approval_status_invalid")
		return
	}

	pkg, err := api.svc.SetApprovalStatus(r.Context(), packageID, status)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.writeError(w, r, http.StatusConflict, "approval_transition_invalid")
		return
	}

	api.writeAudit(r, identity.Subject, "model_package.approval", pkg.ID, map[string]any{
		"group_name": pkg.GroupName,
		"version":    pkg.Version,
		"status":     string(pkg.ApprovalStatus),
	})

	api.writeJSON(w, http.StatusOK, toModelPackage(pkg))
}

func (api *registryAPI) writeAudit(r *http.Request, actor, action, resourceID string, payload map[string]any) {
	if api.audit == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(r.Context(), 750*time.Millisecond)
	defer cancel()
	_, err := auditlog.Insert(auditCtx, api.audit, auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: "model_package",
		ResourceID:   resourceID,
		RequestID:    r.Header.Get("X-Request-Id"),
		Payload:      payload,
	})
	if err != nil && api.logger != nil {
		api.logger.Warn("audit append failed", "action", action, "error", err)
	}
}

func toModelPackage(pkg domain.ModelPackage) modelPackage {
	metaJSON, _ := json.Marshal(pkg.Metadata)
	return modelPackage{
		PackageID:              pkg.ID,
		GroupName:              pkg.GroupName,
		Version:                pkg.Version,
		Description:            pkg.Description,
		ModelDataURI:           pkg.ModelDataURI,
		ImageURI:               pkg.ImageURI,
		ContentTypes:           stringList(pkg.ContentTypes),
		ResponseTypes:          stringList(pkg.ResponseTypes),
		InferenceInstanceTypes: stringList(pkg.InferenceInstanceTypes),
		TransformInstanceTypes: stringList(pkg.TransformInstanceTypes),
		ApprovalStatus:         string(pkg.ApprovalStatus),
		Metadata:               metaJSON,
		CreatedAt:              pkg.CreatedAt,
		CreatedBy:              pkg.CreatedBy,
	}
}

func stringList(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *registryAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *registryAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
