package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vesper-ml/vesper-go/internal/domain"
	"github.com/vesper-ml/vesper-go/internal/repo"
)

type ModelPackageStore struct {
	db DB
}

func NewModelPackageStore(db DB) *ModelPackageStore {
	if db == nil {
		return nil
	}
	return &ModelPackageStore{db: db}
}

func (s *ModelPackageStore) Create(ctx context.Context, pkg domain.ModelPackage) (domain.ModelPackage, error) {
	if s == nil || s.db == nil {
		return domain.ModelPackage{}, fmt.Errorf("model package store not initialized")
	}
	if err := pkg.Validate(); err != nil {
		return domain.ModelPackage{}, err
	}
	metadataJSON, err := encodeMetadata(pkg.Metadata)
	if err != nil {
		return domain.ModelPackage{}, fmt.Errorf("encode metadata: %w", err)
	}
	contentTypes, err := encodeStringList(pkg.ContentTypes)
	if err != nil {
		return domain.ModelPackage{}, err
	}
	responseTypes, err := encodeStringList(pkg.ResponseTypes)
	if err != nil {
		return domain.ModelPackage{}, err
	}
	inferenceTypes, err := encodeStringList(pkg.InferenceInstanceTypes)
	if err != nil {
		return domain.ModelPackage{}, err
	}
	transformTypes, err := encodeStringList(pkg.TransformInstanceTypes)
	if err != nil {
		return domain.ModelPackage{}, err
	}
	pkg.CreatedAt = normalizeTime(pkg.CreatedAt)

	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO model_packages (
			package_id,
			group_name,
			version,
			description,
			model_data_uri,
			image_uri,
			content_types,
			response_types,
			inference_instance_types,
			transform_instance_types,
			approval_status,
			metadata,
			created_at,
			created_by
		) VALUES (
			$1, $2,
			COALESCE((SELECT MAX(version) FROM model_packages WHERE group_name = $2), 0) + 1,
			$3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING version`,
		strings.TrimSpace(pkg.ID),
		strings.TrimSpace(pkg.GroupName),
		strings.TrimSpace(pkg.Description),
		strings.TrimSpace(pkg.ModelDataURI),
		strings.TrimSpace(pkg.ImageURI),
		contentTypes,
		responseTypes,
		inferenceTypes,
		transformTypes,
		string(pkg.ApprovalStatus),
		metadataJSON,
		pkg.CreatedAt,
		strings.TrimSpace(pkg.CreatedBy),
	)
	if err := row.Scan(&pkg.Version); err != nil {
		return domain.ModelPackage{}, fmt.Errorf("insert model package: %w", err)
	}
	return pkg, nil
}

func (s *ModelPackageStore) Get(ctx context.Context, id string) (domain.ModelPackage, error) {
	if s == nil || s.db == nil {
		return domain.ModelPackage{}, fmt.Errorf("model package store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ModelPackage{}, fmt.Errorf("model package id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT package_id, group_name, version, description, model_data_uri, image_uri,
			content_types, response_types, inference_instance_types, transform_instance_types,
			approval_status, metadata, created_at, created_by
		 FROM model_packages
		 WHERE package_id = $1`,
		id,
	)
	return scanModelPackage(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModelPackage(row rowScanner) (domain.ModelPackage, error) {
	var pkg domain.ModelPackage
	var contentTypes, responseTypes, inferenceTypes, transformTypes, metadataJSON []byte
	var status string
	if err := row.Scan(
		&pkg.ID,
		&pkg.GroupName,
		&pkg.Version,
		&pkg.Description,
		&pkg.ModelDataURI,
		&pkg.ImageURI,
		&contentTypes,
		&responseTypes,
		&inferenceTypes,
		&transformTypes,
		&status,
		&metadataJSON,
		&pkg.CreatedAt,
		&pkg.CreatedBy,
	); err != nil {
		return domain.ModelPackage{}, handleNotFound(err)
	}
	pkg.ApprovalStatus = domain.ApprovalStatus(status)

	var err error
	if pkg.ContentTypes, err = decodeStringList(contentTypes); err != nil {
		return domain.ModelPackage{}, fmt.Errorf("decode content types: %w", err)
	}
	if pkg.ResponseTypes, err = decodeStringList(responseTypes); err != nil {
		return domain.ModelPackage{}, fmt.Errorf("decode response types: %w", err)
	}
	if pkg.InferenceInstanceTypes, err = decodeStringList(inferenceTypes); err != nil {
		return domain.ModelPackage{}, fmt.Errorf("decode inference instance types: %w", err)
	}
	if pkg.TransformInstanceTypes, err = decodeStringList(transformTypes); err != nil {
		return domain.ModelPackage{}, fmt.Errorf("decode transform instance types: %w", err)
	}
	if pkg.Metadata, err = decodeMetadata(metadataJSON); err != nil {
		return domain.ModelPackage{}, fmt.Errorf("decode metadata: %w", err)
	}
	pkg.CreatedAt = pkg.CreatedAt.UTC()
	return pkg, nil
}

func buildModelPackageListQuery(filter repo.ModelPackageFilter) (string, []any, error) {
	query := `SELECT package_id, group_name, version, description, model_data_uri, image_uri,
		content_types, response_types, inference_instance_types, transform_instance_types,
		approval_status, metadata, created_at, created_by
	 FROM model_packages`
	var predicates []string
	var args []any
	if group := strings.TrimSpace(filter.GroupName); group != "" {
		args = append(args, group)
		predicates = append(predicates, "group_name = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return "", nil, fmt.Errorf("invalid approval status filter: %s", filter.Status)
		}
		args = append(args, string(filter.Status))
		predicates = append(predicates, "approval_status = $"+strconv.Itoa(len(args)))
	}
	if len(predicates) > 0 {
		query += " WHERE " + strings.Join(predicates, " AND ")
	}
	query += " ORDER BY group_name, version DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	return query, args, nil
}

func (s *ModelPackageStore) List(ctx context.Context, filter repo.ModelPackageFilter) ([]domain.ModelPackage, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("model package store not initialized")
	}
	query, args, err := buildModelPackageListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list model packages: %w", err)
	}
	defer rows.Close()

	var packages []domain.ModelPackage
	for rows.Next() {
		pkg, err := scanModelPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packages, nil
}

func (s *ModelPackageStore) UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("model package store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("model package id is required")
	}
	if !status.Valid() {
		return fmt.Errorf("invalid approval status: %s", status)
	}
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE model_packages SET approval_status = $1 WHERE package_id = $2`,
		string(status),
		id,
	)
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
