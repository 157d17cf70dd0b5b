// Package ageing buckets open receivable and payable documents by days
// outstanding. The schedule is a pure projection over the underlying
// documents: recomputing it for the same as-of date always yields the same
// result, and it is never a durable source of truth.
package ageing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side selects which open documents a schedule folds.
type Side string

const (
	SideReceivable Side = "receivable"
	SidePayable    Side = "payable"
)

// Valid reports whether the side is known.
func (s Side) Valid() bool {
	return s == SideReceivable || s == SidePayable
}

// BucketName identifies one ageing bucket.
type BucketName string

const (
	BucketCurrent BucketName = "current"
	Bucket31To60  BucketName = "31-60"
	Bucket61To90  BucketName = "61-90"
	BucketOver90  BucketName = ">90"
)

// OpenItem is one open receivable or payable document.
type OpenItem struct {
	ID          int64
	SourceKind  string
	SourceID    int64
	PartyID     int64
	InvoiceDate time.Time
	DueDate     time.Time
	Outstanding decimal.Decimal
}

// Schedule is the bucketed result for one as-of date.
type Schedule struct {
	AsOf    time.Time                      `json:"as_of"`
	Side    Side                           `json:"side"`
	Totals  map[BucketName]decimal.Decimal `json:"totals"`
	Overall decimal.Decimal                `json:"overall"`
}

// Bucket assigns one item by days overdue relative to the due date.
// Boundary days (exactly 30, 60, 90) fall in the lower bucket.
func Bucket(due, asOf time.Time) BucketName {
	days := daysBetween(due, asOf)
	switch {
	case days <= 30:
		return BucketCurrent
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// Fold buckets every item into a schedule.
func Fold(side Side, asOf time.Time, items []OpenItem) Schedule {
	schedule := Schedule{
		AsOf: asOf,
		Side: side,
		Totals: map[BucketName]decimal.Decimal{
			BucketCurrent: decimal.Zero,
			Bucket31To60:  decimal.Zero,
			Bucket61To90:  decimal.Zero,
			BucketOver90:  decimal.Zero,
		},
		Overall: decimal.Zero,
	}
	for _, item := range items {
		name := Bucket(item.DueDate, asOf)
		schedule.Totals[name] = schedule.Totals[name].Add(item.Outstanding)
		schedule.Overall = schedule.Overall.Add(item.Outstanding)
	}
	return schedule
}

// daysBetween counts whole calendar days from due to asOf, negative when the
// document is not yet due.
func daysBetween(due, asOf time.Time) int {
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	asOfDay := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return int(asOfDay.Sub(dueDay).Hours() / 24)
}
