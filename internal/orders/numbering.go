package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andrebarreto/stockflow-backend/pkg/db/models"
)

// NextDayNumber allocates the next order number for the given day. Numbers
// restart at 1 every day and concatenate the date with a two digit sequence,
// e.g. 2026083107. Past the 99th order of a day the sequence widens to three
// digits instead of wrapping, so numbers stay unique at the cost of length.
// The counter row is bumped atomically, so two creations on the same day can
// never share a number.
func NextDayNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	day := now.UTC().Format("20060102")

	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{"seq": gorm.Expr("seq + 1")}),
		}).
		Create(&models.OrderDayCounter{Day: day, Seq: 1}).Error
	if err != nil {
		return "", err
	}

	var counter models.OrderDayCounter
	if err := tx.WithContext(ctx).First(&counter, "day = ?", day).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%02d", day, counter.Seq), nil
}

// ReplenishmentNumber derives the stable number of an MRP-sourced order from
// its identity.
func ReplenishmentNumber(orderID uuid.UUID) string {
	return "MRP-" + strings.ToUpper(strings.ReplaceAll(orderID.String(), "-", "")[:10])
}
