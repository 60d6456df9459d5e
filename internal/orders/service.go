package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/production"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/internal/shortage"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
	"github.com/andrebarreto/stockflow-backend/pkg/pagination"
)

// Service drives the order lifecycle: draft editing with live reservations,
// the submission plan that splits demand between stock and production, and
// cancellation that returns everything to the pool.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	CreateReplenishment(ctx context.Context, input ReplenishmentInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UpsertItem(ctx context.Context, orderID uuid.UUID, input ItemInput) (*models.OrderItem, error)
	RemoveItem(ctx context.Context, orderID, materialID uuid.UUID) error
	Submit(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error)
	Trash(ctx context.Context, orderID uuid.UUID) error
}

// CreateInput opens a draft order.
type CreateInput struct {
	Customer *string     `json:"customer" validate:"omitempty,max=255"`
	Notes    *string     `json:"notes"`
	Items    []ItemInput `json:"items" validate:"omitempty,dive"`
	ActorID  uuid.UUID   `json:"-"`
}

// ReplenishmentInput opens an MRP-sourced draft order.
type ReplenishmentInput struct {
	Notes   *string     `json:"notes"`
	Items   []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID uuid.UUID   `json:"-"`
}

// ItemInput is one demand line.
type ItemInput struct {
	MaterialID     uuid.UUID            `json:"material_id" validate:"required"`
	Qty            decimal.Decimal      `json:"qty" validate:"required"`
	ShortageAction enums.ShortageAction `json:"shortage_action" validate:"omitempty,oneof=PRODUCE BUY"`
	Conditions     []ConditionInput     `json:"conditions" validate:"omitempty,dive"`
}

// ConditionInput is one free-form attribute of an item.
type ConditionInput struct {
	Key   string `json:"key" validate:"required,max=64"`
	Value string `json:"value" validate:"required,max=255"`
}

// ListParams filters and paginates order listings.
type ListParams struct {
	Status        *enums.OrderStatus
	Replenishment *bool
	IncludeTrash  bool
	Limit         int
	Cursor        string
}

// ListResult wraps a page of orders.
type ListResult struct {
	Items  []models.Order `json:"items"`
	Cursor string         `json:"cursor"`
}

type service struct {
	client     *db.Client
	repo       Repository
	balances   inventory.BalanceRepository
	demand     shortage.DemandRepository
	resRepo    reservations.Repository
	resEngine  *reservations.Engine
	prodEngine *production.Engine
	emitter    *notifications.Emitter
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the order lifecycle. emitter may be nil.
func NewService(client *db.Client, repo Repository, balances inventory.BalanceRepository, demand shortage.DemandRepository, resRepo reservations.Repository, resEngine *reservations.Engine, prodEngine *production.Engine, emitter *notifications.Emitter, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if balances == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "balance repository required")
	}
	if demand == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "demand repository required")
	}
	if resRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservations repository required")
	}
	if resEngine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservation engine required")
	}
	if prodEngine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "production engine required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		client:     client,
		repo:       repo,
		balances:   balances,
		demand:     demand,
		resRepo:    resRepo,
		resEngine:  resEngine,
		prodEngine: prodEngine,
		emitter:    emitter,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	order := &models.Order{
		ID:        uuid.New(),
		Status:    enums.OrderStatusDraft,
		Readiness: enums.ReadinessNotReady,
		Customer:  input.Customer,
		Notes:     input.Notes,
		CreatedBy: input.ActorID,
	}

	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		number, err := NextDayNumber(ctx, tx, s.now())
		if err != nil {
			return err
		}
		order.OrderNumber = number
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		for _, line := range input.Items {
			if _, err := s.upsertItemTx(ctx, tx, order, line); err != nil {
				return err
			}
		}
		return RecomputeReadinessTx(ctx, tx, order.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID)
}

func (s *service) CreateReplenishment(ctx context.Context, input ReplenishmentInput) (*models.Order, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "replenishment order needs at least one item")
	}

	order := &models.Order{
		ID:            uuid.New(),
		Status:        enums.OrderStatusDraft,
		Readiness:     enums.ReadinessNotReady,
		Notes:         input.Notes,
		Replenishment: true,
		CreatedBy:     input.ActorID,
	}
	order.OrderNumber = ReplenishmentNumber(order.ID)

	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		for _, line := range input.Items {
			if _, err := s.upsertItemTx(ctx, tx, order, line); err != nil {
				return err
			}
		}
		return RecomputeReadinessTx(ctx, tx, order.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID)
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.GetDetail(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listOrdersParams{
		Status:        params.Status,
		Replenishment: params.Replenishment,
		IncludeTrash:  params.IncludeTrash,
		Limit:         params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) UpsertItem(ctx context.Context, orderID uuid.UUID, input ItemInput) (*models.OrderItem, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var item *models.OrderItem
	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		order, err := s.loadMutableOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		item, err = s.upsertItemTx(ctx, tx, order, input)
		if err != nil {
			return err
		}
		return RecomputeReadinessTx(ctx, tx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) RemoveItem(ctx context.Context, orderID, materialID uuid.UUID) error {
	if orderID == uuid.Nil || materialID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id and material id required")
	}

	return s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		order, err := s.loadMutableOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		item, err := repo.GetItem(ctx, orderID, materialID)
		if err != nil {
			return err
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}

		// Release the claim and the production promise before the line
		// disappears.
		if _, err := s.resEngine.ReserveTx(ctx, tx, orderID, materialID, decimal.Zero); err != nil {
			return err
		}
		if order.Status.CompetesForStock() {
			if err := s.prodEngine.SyncTaskTx(ctx, tx, orderID, materialID, decimal.Zero); err != nil {
				return err
			}
		}
		if err := repo.DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		return RecomputeReadinessTx(ctx, tx, orderID)
	})
}

func (s *service) Submit(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}
		if order.Status != enums.OrderStatusDraft {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only draft orders can be submitted")
		}
		if order.TrashedAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "trashed orders cannot be submitted")
		}

		items, err := repo.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
		}

		now := s.now()
		order.Status = enums.OrderStatusOpen
		order.SubmittedAt = &now
		if err := repo.Save(ctx, order); err != nil {
			return err
		}

		for i := range items {
			if err := s.planItemTx(ctx, tx, order, &items[i]); err != nil {
				return err
			}
		}
		return RecomputeReadinessTx(ctx, tx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

func (s *service) Cancel(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	err := s.client.WithTxRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already closed")
		}

		if _, err := s.resEngine.ReleaseOrderTx(ctx, tx, orderID); err != nil {
			return err
		}
		if err := s.prodEngine.DropOrderTasksTx(ctx, tx, orderID); err != nil {
			return err
		}

		items, err := repo.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		for i := range items {
			items[i].QtyReservedFromStock = decimal.Zero
			items[i].QtyToProduce = decimal.Zero
			if err := repo.SaveItem(ctx, &items[i]); err != nil {
				return err
			}
		}

		now := s.now()
		order.Status = enums.OrderStatusCanceled
		order.Readiness = enums.ReadinessNotReady
		order.CanceledAt = &now
		return repo.Save(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

func (s *service) Trash(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}
		if order.Status != enums.OrderStatusDraft {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only draft orders can be trashed")
		}
		if order.TrashedAt != nil {
			return nil
		}

		// A trashed draft stops competing; give its claims back right away.
		if _, err := s.resEngine.ReleaseOrderTx(ctx, tx, orderID); err != nil {
			return err
		}
		now := s.now()
		order.TrashedAt = &now
		return repo.Save(ctx, order)
	})
}

// loadMutableOrder locks the order and checks it still accepts line edits.
func (s *service) loadMutableOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).GetByIDForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is closed")
	}
	if order.TrashedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is trashed")
	}
	switch order.Status {
	case enums.OrderStatusDraft, enums.OrderStatusOpen:
		return order, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order no longer accepts item changes")
	}
}

// upsertItemTx writes the line and immediately re-runs reservation and
// shortage resolution for it.
func (s *service) upsertItemTx(ctx context.Context, tx *gorm.DB, order *models.Order, input ItemInput) (*models.OrderItem, error) {
	if input.MaterialID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material id required")
	}
	if !input.Qty.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	action := input.ShortageAction
	if action == "" {
		action = enums.ShortageActionProduce
	}
	if !action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid shortage action %q", input.ShortageAction))
	}

	var material models.Material
	if err := tx.WithContext(ctx).First(&material, "id = ?", input.MaterialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
		}
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	item, err := repo.GetItem(ctx, order.ID, input.MaterialID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		item = &models.OrderItem{OrderID: order.ID, MaterialID: input.MaterialID}
	}
	item.QtyRequested = input.Qty
	item.ShortageAction = action

	reserved, err := s.resEngine.ReserveTx(ctx, tx, order.ID, input.MaterialID, input.Qty)
	if err != nil {
		return nil, err
	}
	item.QtyReservedFromStock = reserved
	item.QtyToProduce = shortage.Resolve(input.Qty, reserved, action)
	if err := repo.SaveItem(ctx, item); err != nil {
		return nil, err
	}

	if len(input.Conditions) > 0 {
		conditions := make([]models.OrderItemCondition, 0, len(input.Conditions))
		for _, c := range input.Conditions {
			conditions = append(conditions, models.OrderItemCondition{Key: c.Key, Value: c.Value})
		}
		if err := repo.ReplaceItemConditions(ctx, item.ID, conditions); err != nil {
			return nil, err
		}
	}

	// Open orders keep their production plan in step with every edit;
	// drafts only get tasks at submission.
	if order.Status.CompetesForStock() {
		if err := s.prodEngine.SyncTaskTx(ctx, tx, order.ID, input.MaterialID, item.QtyToProduce); err != nil {
			return nil, err
		}
		if err := s.notifyShortage(ctx, tx, order, item); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// planItemTx sizes one submitted line against open demand: competing orders'
// unproduced requests are carved out of on-hand stock first, the line
// reserves what is left and routes the shortfall per its action.
func (s *service) planItemTx(ctx context.Context, tx *gorm.DB, order *models.Order, item *models.OrderItem) error {
	balances := s.balances.WithTx(tx)
	balance, err := balances.LockForUpdate(ctx, item.MaterialID)
	if err != nil {
		return err
	}

	othersDemand, err := s.demand.WithTx(tx).OthersDemand(ctx, item.MaterialID, order.ID)
	if err != nil {
		return err
	}

	target, _ := shortage.SplitAvailability(balance.OnHand, othersDemand, item.QtyRequested)
	reserved, err := s.resEngine.ReserveTx(ctx, tx, order.ID, item.MaterialID, target)
	if err != nil {
		return err
	}

	item.QtyReservedFromStock = reserved
	item.QtyToProduce = shortage.Resolve(item.QtyRequested, reserved, item.ShortageAction)
	if err := s.repo.WithTx(tx).SaveItem(ctx, item); err != nil {
		return err
	}

	if err := s.prodEngine.SyncTaskTx(ctx, tx, order.ID, item.MaterialID, item.QtyToProduce); err != nil {
		return err
	}
	return s.notifyShortage(ctx, tx, order, item)
}

func (s *service) notifyShortage(ctx context.Context, tx *gorm.DB, order *models.Order, item *models.OrderItem) error {
	if s.emitter == nil || !item.QtyToProduce.IsPositive() {
		return nil
	}
	key := notifications.DedupeKey("shortage", order.ID, item.MaterialID)
	_, err := s.emitter.EmitTx(ctx, tx, notifications.EmitInput{
		Type:       enums.NotificationTypeShortage,
		TargetRole: enums.TargetRoleProduction,
		Title:      fmt.Sprintf("Order %s needs production", order.OrderNumber),
		Message:    fmt.Sprintf("%s units cannot be covered from stock", item.QtyToProduce.String()),
		DedupeKey:  &key,
		OrderID:    &order.ID,
		MaterialID: &item.MaterialID,
	})
	return err
}
