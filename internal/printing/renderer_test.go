package printing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefroast/billboard/internal/models"
)

func sampleBill() models.Bill {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	return models.Bill{
		ID:          "b1",
		TableNumber: "5",
		Items: []models.LineItem{
			{ID: "i1", Name: "Tea", Quantity: 2, Price: decimal.RequireFromString("20.00")},
			{ID: "i2", Name: "Paneer Tikka Masala Special", Quantity: 1, Price: decimal.RequireFromString("249.50")},
		},
		Subtotal:   decimal.RequireFromString("289.50"),
		GSTAmount:  decimal.RequireFromString("14.48"),
		GrandTotal: decimal.RequireFromString("303.98"),
		Timestamp:  &ts,
		Status:     models.StatusActive,
	}
}

func TestTextRendererRender(t *testing.T) {
	r, err := NewTextRenderer(DefaultStyle())
	if err != nil {
		t.Fatalf("NewTextRenderer failed: %v", err)
	}

	bill := sampleBill()
	doc, err := r.Render(context.Background(), &bill)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if doc.BillID != "b1" {
		t.Errorf("document bill id = %q, want b1", doc.BillID)
	}

	receipt := string(doc.Data)
	for _, want := range []string{
		"Fire & Froast",
		"Order Snap",
		"Date: 01/01/2024 | Time: 10:00:00 am",
		"Table: 5",
		"₹20.00",    // unit price, two decimal places
		"₹40.00",    // line total
		"₹303.98",   // grand total
		"GST (5%):", // tax line label
	} {
		if !strings.Contains(receipt, want) {
			t.Errorf("receipt missing %q:\n%s", want, receipt)
		}
	}

	// Long item names are truncated to keep the 40-column layout.
	if strings.Contains(receipt, "Paneer Tikka Masala Special") {
		t.Errorf("receipt should truncate long item names:\n%s", receipt)
	}
}

func TestTextRendererZeroValues(t *testing.T) {
	r, err := NewTextRenderer(DefaultStyle())
	if err != nil {
		t.Fatalf("NewTextRenderer failed: %v", err)
	}

	// A bill with no timestamp and zeroed money must still render; the
	// normalizer guarantees finite values, not meaningful ones.
	bill := models.Bill{ID: "b2", TableNumber: "1", Items: []models.LineItem{}}
	doc, err := r.Render(context.Background(), &bill)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	receipt := string(doc.Data)
	if strings.Contains(receipt, "Date:") {
		t.Errorf("receipt should omit the date line without a timestamp:\n%s", receipt)
	}
	if !strings.Contains(receipt, "₹0.00") {
		t.Errorf("zero money should render as ₹0.00:\n%s", receipt)
	}
}

func TestRenderHTML(t *testing.T) {
	bill := sampleBill()
	html, err := renderHTML(DefaultStyle(), &bill)
	if err != nil {
		t.Fatalf("renderHTML failed: %v", err)
	}

	for _, want := range []string{
		"Fire &amp; Froast",
		"₹303.98",
		"Table 5",
		"<td>Tea</td>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML receipt missing %q", want)
		}
	}
}
