package materials

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
)

// Service defines catalog operations over materials.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Material, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Material, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Material, error)
	List(ctx context.Context) ([]models.Material, error)
}

// CreateInput carries a new catalog entry.
type CreateInput struct {
	Code         string          `json:"code" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=255"`
	Unit         string          `json:"unit" validate:"required,max=16"`
	MinStock     decimal.Decimal `json:"min_stock"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
}

// UpdateInput carries editable catalog fields.
type UpdateInput struct {
	Name         *string          `json:"name" validate:"omitempty,max=255"`
	Unit         *string          `json:"unit" validate:"omitempty,max=16"`
	MinStock     *decimal.Decimal `json:"min_stock"`
	ReorderPoint *decimal.Decimal `json:"reorder_point"`
}

type service struct {
	repo Repository
}

// NewService wires material catalog dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "materials repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Material, error) {
	code := strings.TrimSpace(strings.ToUpper(input.Code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material code required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material name required")
	}
	if input.MinStock.IsNegative() || input.ReorderPoint.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock thresholds must not be negative")
	}

	material := &models.Material{
		Code:         code,
		Name:         strings.TrimSpace(input.Name),
		Unit:         strings.TrimSpace(input.Unit),
		MinStock:     input.MinStock,
		ReorderPoint: input.ReorderPoint,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create material")
	}
	return material, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Material, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material id required")
	}

	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load material")
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "material name required")
		}
		material.Name = strings.TrimSpace(*input.Name)
	}
	if input.Unit != nil {
		material.Unit = strings.TrimSpace(*input.Unit)
	}
	if input.MinStock != nil {
		if input.MinStock.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "min stock must not be negative")
		}
		material.MinStock = *input.MinStock
	}
	if input.ReorderPoint != nil {
		if input.ReorderPoint.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reorder point must not be negative")
		}
		material.ReorderPoint = *input.ReorderPoint
	}

	if err := s.repo.Update(ctx, material); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update material")
	}
	return material, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material id required")
	}
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load material")
	}
	return material, nil
}

func (s *service) List(ctx context.Context) ([]models.Material, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list materials")
	}
	return rows, nil
}
