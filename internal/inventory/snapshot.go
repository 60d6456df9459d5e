package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

const snapshotCacheName = "inventory"

// SnapshotCache is the subset of the redis client the snapshot service
// needs. A nil cache disables caching entirely.
type SnapshotCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	SnapshotKey(name string) string
}

// SnapshotRow is one material in the inventory snapshot.
type SnapshotRow struct {
	MaterialID         uuid.UUID       `json:"material_id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Unit               string          `json:"unit"`
	OnHand             decimal.Decimal `json:"on_hand"`
	ReservedTotal      decimal.Decimal `json:"reserved_total"`
	ProductionReserved decimal.Decimal `json:"production_reserved"`
	Available          decimal.Decimal `json:"available"`
}

// Snapshot is the full warehouse position at a point in time.
type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Rows        []SnapshotRow `json:"rows"`
}

// SnapshotService serves the read-side inventory view, optionally cached.
type SnapshotService interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	Refresh(ctx context.Context) (*Snapshot, error)
	Invalidate(ctx context.Context) error
}

type snapshotService struct {
	balances  BalanceRepository
	materials materialLister
	cache     SnapshotCache
	ttl       time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

type materialLister interface {
	List(ctx context.Context) ([]models.Material, error)
}

// NewSnapshotService wires the inventory read side. cache may be nil.
func NewSnapshotService(balances BalanceRepository, materials materialLister, cache SnapshotCache, ttl time.Duration, logg *logger.Logger) (SnapshotService, error) {
	if balances == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "balance repository required")
	}
	if materials == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "material lister required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &snapshotService{
		balances:  balances,
		materials: materials,
		cache:     cache,
		ttl:       ttl,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *snapshotService) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, s.cache.SnapshotKey(snapshotCacheName))
		if err == nil && raw != "" {
			var snap Snapshot
			if jsonErr := json.Unmarshal([]byte(raw), &snap); jsonErr == nil {
				return &snap, nil
			}
			// Corrupt cache entries fall through to a rebuild.
		}
	}
	return s.Refresh(ctx)
}

func (s *snapshotService) Refresh(ctx context.Context) (*Snapshot, error) {
	mats, err := s.materials.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list materials")
	}
	balances, err := s.balances.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list balances")
	}

	byMaterial := make(map[uuid.UUID]models.StockBalance, len(balances))
	for _, b := range balances {
		byMaterial[b.MaterialID] = b
	}

	snap := &Snapshot{
		GeneratedAt: s.now(),
		Rows:        make([]SnapshotRow, 0, len(mats)),
	}
	for i := range mats {
		bal := byMaterial[mats[i].ID]
		snap.Rows = append(snap.Rows, SnapshotRow{
			MaterialID:         mats[i].ID,
			Code:               mats[i].Code,
			Name:               mats[i].Name,
			Unit:               mats[i].Unit,
			OnHand:             bal.OnHand,
			ReservedTotal:      bal.ReservedTotal,
			ProductionReserved: bal.ProductionReserved,
			Available:          bal.Available(),
		})
	}

	if s.cache != nil {
		payload, err := json.Marshal(snap)
		if err == nil {
			if cacheErr := s.cache.Set(ctx, s.cache.SnapshotKey(snapshotCacheName), payload, s.ttl); cacheErr != nil {
				s.logg.Error(ctx, "inventory snapshot cache write failed", cacheErr)
			}
		}
	}
	return snap, nil
}

func (s *snapshotService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, s.cache.SnapshotKey(snapshotCacheName))
}
