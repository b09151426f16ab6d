// Package render adapts the host platform's page renderer to what the
// dispatch engine needs: per-locale HTML plus a derived plaintext form,
// with a cache purge before the first render of each page in a run and the
// platform's outer wrapper element stripped.
package render

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"pagenotify/internal/cms"
	"pagenotify/internal/mailer"
	"pagenotify/internal/types"
)

// Rendered is one page rendering: the HTML body and its plaintext form.
type Rendered struct {
	HTML string
	Text string
}

// Adapter wraps a cms.PageRenderer with the engine's rendering policy.
// One Adapter serves a whole scheduler run; BeginRun resets the purge
// bookkeeping between runs.
type Adapter struct {
	renderer cms.PageRenderer
	logger   types.Logger

	mu     sync.Mutex
	purged map[int64]bool
}

// NewAdapter creates an Adapter over the platform renderer.
func NewAdapter(renderer cms.PageRenderer, logger types.Logger) *Adapter {
	return &Adapter{
		renderer: renderer,
		logger:   logger,
		purged:   map[int64]bool{},
	}
}

// BeginRun clears the purge bookkeeping so the next render of every page
// is preceded by a fresh cache purge. Called once per scheduler run.
func (a *Adapter) BeginRun() {
	a.mu.Lock()
	a.purged = map[int64]bool{}
	a.mu.Unlock()
}

// RenderPage renders the page in the given locale. The platform's render
// cache is purged before the first render of the page in this run so every
// recipient in the batch sees the freshest content; subsequent renders
// (per-recipient locales) reuse the already-purged state. The single outer
// wrapping paragraph the markup renderer emits is stripped, and a
// plaintext form is derived from the HTML.
func (a *Adapter) RenderPage(ctx context.Context, pageID int64, locale string) (Rendered, error) {
	a.purgeOnce(ctx, pageID)

	html, err := a.renderer.RenderPage(ctx, pageID, locale)
	if err != nil {
		return Rendered{}, err
	}

	html = StripOuterParagraph(html)
	return Rendered{
		HTML: html,
		Text: mailer.HTMLToText(html),
	}, nil
}

// RenderSubject treats the subject as an inline markup template, renders
// it in the recipient's locale, and flattens the result to a single line
// of plaintext. Subjects can therefore carry user-specific substitutions.
func (a *Adapter) RenderSubject(ctx context.Context, template string, locale string) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", nil
	}
	html, err := a.renderer.RenderInline(ctx, template, locale)
	if err != nil {
		return "", err
	}
	text := mailer.HTMLToText(StripOuterParagraph(html))
	// Subjects are single-line by definition.
	return strings.Join(strings.Fields(text), " "), nil
}

func (a *Adapter) purgeOnce(ctx context.Context, pageID int64) {
	a.mu.Lock()
	done := a.purged[pageID]
	if !done {
		a.purged[pageID] = true
	}
	a.mu.Unlock()
	if done {
		return
	}
	// A failed purge only risks slightly stale content; rendering decides
	// whether the page is usable at all.
	if err := a.renderer.PurgePage(ctx, pageID); err != nil {
		a.logger.Warn("page cache purge failed", "page_id", pageID, "error", err.Error())
	}
}

// outerParagraphRe matches markup wrapped in exactly one outer <p> block,
// tolerating attributes on the opening tag and trailing whitespace.
var outerParagraphRe = regexp.MustCompile(`(?s)^<p[^>]*>(.*)</p>\s*$`)

// StripOuterParagraph removes a single wrapping paragraph element if the
// markup renderer emitted one. Content containing multiple sibling
// paragraphs is left untouched.
func StripOuterParagraph(html string) string {
	trimmed := strings.TrimSpace(html)
	m := outerParagraphRe.FindStringSubmatch(trimmed)
	if m == nil {
		return html
	}
	inner := m[1]
	// A nested closing tag means the match spans siblings; keep as-is.
	if strings.Contains(inner, "</p>") || strings.Contains(inner, "<p") {
		return html
	}
	return strings.TrimSpace(inner)
}
