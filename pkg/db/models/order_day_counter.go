package models

import "time"

// OrderDayCounter backs the day-scoped order numbering sequence. The row is
// incremented with an insert-on-conflict so concurrent order creation never
// hands out the same number twice.
type OrderDayCounter struct {
	Day       string    `gorm:"column:day;primaryKey"`
	Seq       int64     `gorm:"column:seq;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
