// Package normalize converts raw store records into strictly-typed bills.
//
// The upstream POS writes loosely-typed documents: prices arrive as
// currency-formatted strings ("₹45.50"), quantities as numbers or
// numeric strings, timestamps as store-native values or ISO strings.
// Normalize is total over that input space: a record either becomes a
// Bill or is rejected with a MalformedRecordError the caller logs and
// skips. It never panics and never lets a bad field poison the stream.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefroast/billboard/internal/models"
	"github.com/firefroast/billboard/internal/store"
)

// MalformedRecordError reports a record that cannot be shaped into a
// bill at all. Field-level coercion failures are not malformations; they
// degrade to zero values instead.
type MalformedRecordError struct {
	RecordID string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %q: %s", e.RecordID, e.Reason)
}

func malformed(id, format string, args ...any) error {
	return &MalformedRecordError{RecordID: id, Reason: fmt.Sprintf(format, args...)}
}

// Normalize converts one raw record into a Bill.
//
// The record's own identity is never trusted: the bill ID is always the
// store-assigned record ID, even if the payload carries an "id" field.
// The returned Items slice is a fresh allocation on every call, so two
// normalizations of the same record share no mutable state.
func Normalize(rec store.RawRecord) (models.Bill, error) {
	if rec.Fields == nil {
		return models.Bill{}, malformed(rec.ID, "record has no fields")
	}

	bill := models.Bill{
		ID:          rec.ID,
		TableNumber: stringValue(rec.Fields["tableNumber"]),
		Subtotal:    Money(rec.Fields["subtotal"]),
		GSTAmount:   Money(rec.Fields["gstAmount"]),
		GrandTotal:  Money(rec.Fields["grandTotal"]),
		Timestamp:   Instant(rec.Fields["timestamp"]),
		Status:      models.Status(stringValue(rec.Fields["status"])),
	}

	items, err := normalizeItems(rec.ID, rec.Fields["items"])
	if err != nil {
		return models.Bill{}, err
	}
	bill.Items = items

	return bill, nil
}

// normalizeItems shapes the "items" field. A missing field means an
// empty bill; a present field that is not a list of objects makes the
// whole record malformed.
func normalizeItems(recordID string, v any) ([]models.LineItem, error) {
	if v == nil {
		return []models.LineItem{}, nil
	}

	list, ok := v.([]any)
	if !ok {
		return nil, malformed(recordID, "items is %T, want a list", v)
	}

	items := make([]models.LineItem, 0, len(list))
	for i, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, malformed(recordID, "items[%d] is %T, want an object", i, el)
		}
		items = append(items, models.LineItem{
			ID:                 stringValue(obj["id"]),
			Name:               stringValue(obj["name"]),
			Quantity:           Quantity(obj["quantity"]),
			Price:              Money(obj["price"]),
			CustomizationNotes: stringValue(obj["customizationNotes"]),
		})
	}
	return items, nil
}

// Money coerces a price-like value to a non-negative decimal.
//
// Numbers are used as-is; strings are stripped of everything that is not
// a digit or decimal point before parsing. Anything that still fails to
// parse, is not finite, or is negative coerces to zero.
func Money(v any) decimal.Decimal {
	switch t := v.(type) {
	case decimal.Decimal:
		return clampMoney(t)
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero
		}
		return clampMoney(d)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero
		}
		return clampMoney(decimal.NewFromFloat(t))
	case float32:
		return Money(float64(t))
	case int:
		return clampMoney(decimal.NewFromInt(int64(t)))
	case int32:
		return clampMoney(decimal.NewFromInt(int64(t)))
	case int64:
		return clampMoney(decimal.NewFromInt(t))
	case string:
		d, err := decimal.NewFromString(stripNonNumeric(t))
		if err != nil {
			return decimal.Zero
		}
		return clampMoney(d)
	default:
		return decimal.Zero
	}
}

// Quantity coerces a quantity-like value to a non-negative integer.
// Fractional numeric input is truncated; failed coercion yields zero.
func Quantity(v any) int64 {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return Quantity(f)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t >= math.MaxInt64 {
			return 0
		}
		return int64(t)
	case float32:
		return Quantity(float64(t))
	case int:
		return Quantity(int64(t))
	case int32:
		return Quantity(int64(t))
	case int64:
		if t < 0 {
			return 0
		}
		return t
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		n := d.IntPart()
		if n < 0 {
			return 0
		}
		return n
	default:
		return 0
	}
}

// instantLayouts are tried in order for string timestamps. RFC 3339
// first, then the lenient shapes POS exports have been seen to emit.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Instant converts a timestamp-like value into a point in time.
//
// A value exposing an AsTime capability is used directly; strings are
// parsed against a small set of layouts. Everything else counts as
// absent and yields nil. No timezone correction beyond what the layouts
// themselves carry.
func Instant(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return &t
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		ts := *t
		return &ts
	case store.Timestamped:
		ts := t.AsTime()
		if ts.IsZero() {
			return nil
		}
		return &ts
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		for _, layout := range instantLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return &ts
			}
		}
		return nil
	default:
		return nil
	}
}

func clampMoney(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// stripNonNumeric drops every rune that is not a digit or decimal point,
// so "₹45.50" and "1,299.00" both parse cleanly.
func stripNonNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stringValue renders any scalar as a string; numeric table numbers from
// the POS become their decimal text. Non-scalar values yield "".
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return decimal.NewFromFloat(t).String()
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}
