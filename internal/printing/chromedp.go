package printing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/firefroast/billboard/internal/models"
)

const (
	defaultRenderTimeout = 30 * time.Second

	// 80mm thermal receipt paper, expressed in inches for the DevTools
	// printToPDF call. Height is generous; the printer cuts to content.
	receiptPaperWidthIn  = 80.0 / 25.4
	receiptPaperHeightIn = 297.0 / 25.4
)

// PDFRenderer renders receipts to PDF via Chrome DevTools Protocol.
// It keeps one browser allocator alive across renders; Close releases it.
type PDFRenderer struct {
	style    ReceiptStyle
	timeout  time.Duration
	allocCtx context.Context
	cancel   context.CancelFunc
}

// PDFOption configures the renderer.
type PDFOption func(*PDFRenderer)

// WithRenderTimeout bounds a single render.
func WithRenderTimeout(d time.Duration) PDFOption {
	return func(r *PDFRenderer) { r.timeout = d }
}

// NewPDFRenderer launches a headless browser allocator for receipt
// rendering.
func NewPDFRenderer(style ReceiptStyle, opts ...PDFOption) *PDFRenderer {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true), // Important for Docker
		chromedp.Flag("no-sandbox", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	r := &PDFRenderer{
		style:    style,
		timeout:  defaultRenderTimeout,
		allocCtx: allocCtx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close releases the browser allocator.
func (r *PDFRenderer) Close() error {
	r.cancel()
	return nil
}

// Render lays the bill out as a PDF receipt.
func (r *PDFRenderer) Render(ctx context.Context, bill *models.Bill) (*Document, error) {
	html, err := renderHTML(r.style, bill)
	if err != nil {
		return nil, err
	}

	browserCtx, browserCancel := chromedp.NewContext(r.allocCtx)
	defer browserCancel()

	// The browser context descends from the allocator, not the caller;
	// propagate caller cancellation by hand.
	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	runCtx, cancel := context.WithTimeout(browserCtx, r.timeout)
	defer cancel()

	start := time.Now()
	var pdf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(receiptPaperWidthIn).
				WithPaperHeight(receiptPaperHeightIn).
				WithMarginTop(0).
				WithMarginRight(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("PDF render for bill %s timed out after %v: %w", bill.ID, r.timeout, err)
		}
		return nil, fmt.Errorf("PDF render for bill %s failed: %w", bill.ID, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("PDF render for bill %s produced an empty document", bill.ID)
	}

	slog.Debug("Rendered receipt PDF",
		"bill_id", bill.ID,
		"bytes", len(pdf),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Document{
		BillID:      bill.ID,
		ContentType: "application/pdf",
		Data:        pdf,
	}, nil
}
