package cvtemplate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromedpRenderer はHTMLプレビューをヘッドレスChromeで印刷してPDFにするレンダラー。
type ChromedpRenderer struct {
	execPath string
	timeout  time.Duration
}

// NewChromedpRenderer はChromedpRendererを生成する。
// execPathが空の場合はchromedpの既定の探索に任せる。
func NewChromedpRenderer(execPath string, timeout time.Duration) *ChromedpRenderer {
	return &ChromedpRenderer{execPath: execPath, timeout: timeout}
}

// Name はレンダラー名を返す。
func (r *ChromedpRenderer) Name() string { return "chromedp" }

// RenderPDF はプレビューHTMLを一時ファイルに書き出し、A4でPDFに印刷する。
func (r *ChromedpRenderer) RenderPDF(ctx context.Context, tmpl *Template, doc Document) ([]byte, error) {
	var html bytes.Buffer
	if err := tmpl.Preview(&html, doc); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "cv-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	htmlPath := filepath.Join(tmpDir, "index.html")
	if err := os.WriteFile(htmlPath, html.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write preview: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancel := context.WithTimeout(browserCtx, r.timeout)
	defer cancel()

	var pdf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("file://"+htmlPath),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			// A4: 210mm x 297mm = 8.27in x 11.69in
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to print pdf: %w", err)
	}
	return pdf, nil
}

var _ PDFRenderer = (*ChromedpRenderer)(nil)
