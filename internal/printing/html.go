package printing

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefroast/billboard/internal/models"
)

// htmlReceipt is the receipt layout used for PDF output. It mirrors the
// printed order snap: header, item table, totals block.
const htmlReceipt = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: sans-serif; color: #333; margin: 0; padding: 16px; }
  .header { text-align: center; margin-bottom: 24px; }
  .header h1 { margin: 0; font-size: 28px; color: #4F642A; }
  .header .sub { letter-spacing: 1px; }
  .header .when { font-size: 12px; color: #888; }
  table { width: 100%; border-collapse: collapse; font-size: 13px; }
  th { text-align: left; font-weight: normal; color: #888; padding: 6px 0; border-bottom: 2px solid #EAF0E5; }
  th.num, td.num { text-align: right; }
  th.qty, td.qty { text-align: center; }
  td { padding: 8px 0; border-bottom: 1px dashed #ddd; }
  .totals { margin-top: 24px; font-size: 13px; }
  .totals div { display: flex; justify-content: space-between; padding: 3px 0; }
  .totals .grand { font-weight: bold; font-size: 18px; margin-top: 10px; }
</style>
</head>
<body>
  <div class="header">
    <h1>{{.Style.RestaurantName}}</h1>
    <p class="sub">Order Snap</p>
    {{if .Bill.Timestamp}}<p class="when">Date: {{formatDate .Bill.Timestamp}} | Time: {{formatTime .Bill.Timestamp}}</p>{{end}}
    <p class="when">Table {{.Bill.TableNumber}} · Bill {{.Bill.ID}}</p>
  </div>
  <table>
    <thead>
      <tr><th>ITEM</th><th class="qty">QTY</th><th class="num">UNIT PRICE</th><th class="num">TOTAL</th></tr>
    </thead>
    <tbody>
      {{range .Bill.Items}}
      <tr>
        <td>{{.Name}}</td>
        <td class="qty">{{.Quantity}}</td>
        <td class="num">{{money .Price}}</td>
        <td class="num">{{money .Total}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
  <div class="totals">
    <div><span>Subtotal:</span><span>{{money .Bill.Subtotal}}</span></div>
    <div><span>GST (5%):</span><span>{{money .Bill.GSTAmount}}</span></div>
    <div class="grand"><span>Grand Total:</span><span>{{money .Bill.GrandTotal}}</span></div>
  </div>
</body>
</html>`

// renderHTML produces the HTML document the PDF renderer feeds to the
// browser.
func renderHTML(style ReceiptStyle, bill *models.Bill) (string, error) {
	tmpl, err := template.New("receipt").Funcs(template.FuncMap{
		"money":      func(d decimal.Decimal) string { return style.CurrencySymbol + d.StringFixed(2) },
		"formatDate": func(ts *time.Time) string { return ts.Format("02/01/2006") },
		"formatTime": func(ts *time.Time) string { return strings.ToLower(ts.Format("3:04:05 PM")) },
	}).Parse(htmlReceipt)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML receipt template: %w", err)
	}

	var buf bytes.Buffer
	data := struct {
		Style ReceiptStyle
		Bill  *models.Bill
	}{Style: style, Bill: bill}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render HTML receipt for bill %s: %w", bill.ID, err)
	}
	return buf.String(), nil
}
