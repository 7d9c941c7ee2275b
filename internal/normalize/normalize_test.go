package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefroast/billboard/internal/models"
	"github.com/firefroast/billboard/internal/store"
)

func TestMoney(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "plain float", in: 45.5, want: "45.5"},
		{name: "integer", in: 20, want: "20"},
		{name: "numeric string", in: "45.50", want: "45.5"},
		{name: "currency prefixed string", in: "₹45.50", want: "45.5"},
		{name: "thousands separators", in: "1,299.00", want: "1299"},
		{name: "trailing space", in: "20.00 ", want: "20"},
		{name: "non-numeric string", in: "N/A", want: "0"},
		{name: "empty string", in: "", want: "0"},
		{name: "nil", in: nil, want: "0"},
		{name: "bool", in: true, want: "0"},
		{name: "negative clamps to zero", in: -3.5, want: "0"},
		{name: "minus sign stripped like any other symbol", in: "-12.00", want: "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Money(tt.in)
			want, err := decimal.NewFromString(tt.want)
			if err != nil {
				t.Fatalf("bad want value %q: %v", tt.want, err)
			}
			if !got.Equal(want) {
				t.Errorf("Money(%v) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{name: "integer", in: 2, want: 2},
		{name: "float truncates", in: 2.9, want: 2},
		{name: "numeric string", in: "12", want: 12},
		{name: "string with trailing space", in: "12 ", want: 12},
		{name: "non-numeric string", in: "lots", want: 0},
		{name: "nil", in: nil, want: 0},
		{name: "negative clamps to zero", in: -4, want: 0},
		{name: "negative string clamps to zero", in: "-4", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quantity(tt.in); got != tt.want {
				t.Errorf("Quantity(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

// fakeTimestamp mimics a store-native timestamp value that exposes the
// calendar-instant capability.
type fakeTimestamp struct{ ts time.Time }

func (f fakeTimestamp) AsTime() time.Time { return f.ts }

func TestInstant(t *testing.T) {
	ref := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want *time.Time
	}{
		{name: "time value", in: ref, want: &ref},
		{name: "store-native timestamp", in: fakeTimestamp{ts: ref}, want: &ref},
		{name: "rfc3339 string", in: "2024-01-01T10:00:00Z", want: &ref},
		{name: "date-only string", in: "2024-01-01", want: timePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
		{name: "unparseable string", in: "yesterday-ish", want: nil},
		{name: "numeric value treated as absent", in: 1704103200.0, want: nil},
		{name: "nil", in: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Instant(tt.in)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Instant(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("Instant(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func timePtr(ts time.Time) *time.Time { return &ts }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		rec          store.RawRecord
		wantErr      bool
		validateFunc func(t *testing.T, bill models.Bill)
	}{
		{
			name: "full POS record with string-encoded numerics",
			rec: store.RawRecord{
				ID: "b1",
				Fields: map[string]any{
					"id": "spoofed-id",
					"items": []any{
						map[string]any{"id": "i1", "name": "Tea", "quantity": "2", "price": "₹20.00"},
					},
					"subtotal":    "40.00",
					"gstAmount":   "2.00",
					"grandTotal":  "42.00",
					"tableNumber": "5",
					"timestamp":   "2024-01-01T10:00:00Z",
					"status":      "active",
				},
			},
			validateFunc: func(t *testing.T, bill models.Bill) {
				if bill.ID != "b1" {
					t.Errorf("ID = %q, want store-assigned %q", bill.ID, "b1")
				}
				if len(bill.Items) != 1 {
					t.Fatalf("got %d items, want 1", len(bill.Items))
				}
				if !bill.Items[0].Price.Equal(decimal.NewFromInt(20)) {
					t.Errorf("item price = %s, want 20", bill.Items[0].Price)
				}
				if bill.Items[0].Quantity != 2 {
					t.Errorf("item quantity = %d, want 2", bill.Items[0].Quantity)
				}
				if !bill.GrandTotal.Equal(decimal.NewFromInt(42)) {
					t.Errorf("grand total = %s, want 42", bill.GrandTotal)
				}
				if bill.Status != models.StatusActive {
					t.Errorf("status = %q, want active", bill.Status)
				}
				if bill.Timestamp == nil || !bill.Timestamp.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
					t.Errorf("timestamp = %v, want 2024-01-01T10:00:00Z", bill.Timestamp)
				}
			},
		},
		{
			name: "garbage price degrades to zero, rest of bill survives",
			rec: store.RawRecord{
				ID: "b2",
				Fields: map[string]any{
					"items": []any{
						map[string]any{"id": "i1", "name": "Soup", "quantity": 1, "price": "abc"},
						map[string]any{"id": "i2", "name": "Naan", "quantity": 3, "price": 15.0},
					},
					"subtotal":    45.0,
					"gstAmount":   2.25,
					"grandTotal":  47.25,
					"tableNumber": 7,
					"status":      "active",
				},
			},
			validateFunc: func(t *testing.T, bill models.Bill) {
				if !bill.Items[0].Price.IsZero() {
					t.Errorf("malformed price = %s, want 0", bill.Items[0].Price)
				}
				if !bill.Items[1].Price.Equal(decimal.NewFromInt(15)) {
					t.Errorf("good price = %s, want 15", bill.Items[1].Price)
				}
				if bill.TableNumber != "7" {
					t.Errorf("table number = %q, want \"7\"", bill.TableNumber)
				}
				if bill.Timestamp != nil {
					t.Errorf("timestamp = %v, want nil for absent field", bill.Timestamp)
				}
			},
		},
		{
			name: "missing items yields empty bill",
			rec: store.RawRecord{
				ID:     "b3",
				Fields: map[string]any{"tableNumber": "2", "status": "active"},
			},
			validateFunc: func(t *testing.T, bill models.Bill) {
				if bill.Items == nil || len(bill.Items) != 0 {
					t.Errorf("items = %v, want empty non-nil slice", bill.Items)
				}
			},
		},
		{
			name:    "nil fields is malformed",
			rec:     store.RawRecord{ID: "b4"},
			wantErr: true,
		},
		{
			name: "items with wrong shape is malformed",
			rec: store.RawRecord{
				ID:     "b5",
				Fields: map[string]any{"items": "not-a-list"},
			},
			wantErr: true,
		},
		{
			name: "item element with wrong shape is malformed",
			rec: store.RawRecord{
				ID:     "b6",
				Fields: map[string]any{"items": []any{"tea"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bill, err := Normalize(tt.rec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var malformed *MalformedRecordError
				if !errors.As(err, &malformed) {
					t.Fatalf("error = %T, want *MalformedRecordError", err)
				}
				if malformed.RecordID != tt.rec.ID {
					t.Errorf("error record id = %q, want %q", malformed.RecordID, tt.rec.ID)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if tt.validateFunc != nil {
				tt.validateFunc(t, bill)
			}
		})
	}
}

// Normalizing the same record twice must give identical values but
// distinct item containers.
func TestNormalizeIdempotentDistinctContainers(t *testing.T) {
	rec := store.RawRecord{
		ID: "b1",
		Fields: map[string]any{
			"items": []any{
				map[string]any{"id": "i1", "name": "Tea", "quantity": "2", "price": "₹20.00"},
			},
			"subtotal":   "40.00",
			"grandTotal": "42.00",
			"status":     "active",
		},
	}

	first, err := Normalize(rec)
	if err != nil {
		t.Fatalf("first Normalize failed: %v", err)
	}
	second, err := Normalize(rec)
	if err != nil {
		t.Fatalf("second Normalize failed: %v", err)
	}

	if len(first.Items) != len(second.Items) {
		t.Fatalf("item counts differ: %d vs %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		if first.Items[i].Name != second.Items[i].Name ||
			first.Items[i].Quantity != second.Items[i].Quantity ||
			!first.Items[i].Price.Equal(second.Items[i].Price) {
			t.Errorf("item %d differs between runs: %+v vs %+v", i, first.Items[i], second.Items[i])
		}
	}

	// Mutating one output must not leak into the other.
	first.Items[0].Name = "Coffee"
	if second.Items[0].Name == "Coffee" {
		t.Error("item slices are shared between normalizations")
	}
}
