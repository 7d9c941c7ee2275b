package printing

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefroast/billboard/internal/models"
)

// Document is a rendered bill, ready for a printer backend.
type Document struct {
	BillID      string
	ContentType string
	Data        []byte
}

// Renderer lays a bill snapshot out for an output device.
type Renderer interface {
	Render(ctx context.Context, bill *models.Bill) (*Document, error)
}

// ReceiptStyle carries the presentation constants a receipt needs.
type ReceiptStyle struct {
	// RestaurantName is printed at the top of every receipt.
	RestaurantName string
	// CurrencySymbol prefixes every money value.
	CurrencySymbol string
}

// DefaultStyle matches the dine-in receipt the dashboard prints.
func DefaultStyle() ReceiptStyle {
	return ReceiptStyle{
		RestaurantName: "Fire & Froast",
		CurrencySymbol: "₹",
	}
}

const receiptWidth = 40

// textReceipt is the 40-column receipt for line/thermal printers.
const textReceipt = `{{center .Style.RestaurantName}}
{{center "Order Snap"}}
{{if .Bill.Timestamp}}{{center (printf "Date: %s | Time: %s" (formatDate .Bill.Timestamp) (formatTime .Bill.Timestamp))}}
{{end}}Table: {{.Bill.TableNumber}}{{if .Bill.ID}}  Bill: {{.Bill.ID}}{{end}}
{{rule}}
{{padRight "ITEM" 16}}{{padLeft "QTY" 4}}{{padLeft "PRICE" 9}}{{padLeft "TOTAL" 11}}
{{range .Bill.Items -}}
{{padRight (truncate .Name 16) 16}}{{padLeft (printf "%d" .Quantity) 4}}{{padLeft (money .Price) 9}}{{padLeft (money .Total) 11}}
{{end -}}
{{rule}}
{{padRight "Subtotal:" 29}}{{padLeft (money .Bill.Subtotal) 11}}
{{padRight "GST (5%):" 29}}{{padLeft (money .Bill.GSTAmount) 11}}
{{padRight "Grand Total:" 29}}{{padLeft (money .Bill.GrandTotal) 11}}
`

// TextRenderer renders plain-text receipts.
type TextRenderer struct {
	style ReceiptStyle
	tmpl  *template.Template
}

// NewTextRenderer builds a text receipt renderer with the given style.
func NewTextRenderer(style ReceiptStyle) (*TextRenderer, error) {
	r := &TextRenderer{style: style}
	tmpl, err := template.New("receipt").Funcs(r.funcMap()).Parse(textReceipt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse receipt template: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// Render lays the bill out as a plain-text receipt.
func (r *TextRenderer) Render(ctx context.Context, bill *models.Bill) (*Document, error) {
	var buf bytes.Buffer
	data := struct {
		Style ReceiptStyle
		Bill  *models.Bill
	}{Style: r.style, Bill: bill}

	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render receipt for bill %s: %w", bill.ID, err)
	}

	return &Document{
		BillID:      bill.ID,
		ContentType: "text/plain; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}

func (r *TextRenderer) funcMap() template.FuncMap {
	return template.FuncMap{
		"money":      func(d decimal.Decimal) string { return r.style.CurrencySymbol + d.StringFixed(2) },
		"formatDate": func(ts *time.Time) string { return ts.Format("02/01/2006") },
		"formatTime": func(ts *time.Time) string { return strings.ToLower(ts.Format("3:04:05 PM")) },
		"center":     centerText,
		"rule":       func() string { return strings.Repeat("-", receiptWidth) },
		"padLeft":    padLeft,
		"padRight":   padRight,
		"truncate":   truncate,
	}
}

func centerText(s string) string {
	n := len([]rune(s))
	if n >= receiptWidth {
		return s
	}
	return strings.Repeat(" ", (receiptWidth-n)/2) + s
}

func padLeft(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
