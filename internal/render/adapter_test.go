package render

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagenotify/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (n nopLogger) With(...any) types.Logger { return n }

type mockPlatformRenderer struct {
	pageHTML   string
	pageErr    error
	inlineHTML string
	inlineErr  error
	purgeErr   error

	purgeCalls  []int64
	renderCalls int
}

func (m *mockPlatformRenderer) RenderPage(_ context.Context, _ int64, _ string) (string, error) {
	m.renderCalls++
	return m.pageHTML, m.pageErr
}

func (m *mockPlatformRenderer) RenderInline(_ context.Context, _ string, _ string) (string, error) {
	return m.inlineHTML, m.inlineErr
}

func (m *mockPlatformRenderer) PurgePage(_ context.Context, pageID int64) error {
	m.purgeCalls = append(m.purgeCalls, pageID)
	return m.purgeErr
}

func TestRenderPagePurgesOncePerRun(t *testing.T) {
	mock := &mockPlatformRenderer{pageHTML: "<p>hello</p>"}
	a := NewAdapter(mock, nopLogger{})

	_, err := a.RenderPage(context.Background(), 42, "en")
	require.NoError(t, err)
	_, err = a.RenderPage(context.Background(), 42, "de")
	require.NoError(t, err)

	// Two renders, one purge: the per-recipient re-render reuses the
	// already purged cache state.
	assert.Equal(t, 2, mock.renderCalls)
	assert.Equal(t, []int64{42}, mock.purgeCalls)

	// A new run purges again.
	a.BeginRun()
	_, err = a.RenderPage(context.Background(), 42, "en")
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 42}, mock.purgeCalls)
}

func TestRenderPageStripsWrapperAndDerivesText(t *testing.T) {
	mock := &mockPlatformRenderer{pageHTML: "<p>The page <b>changed</b> today.</p>\n"}
	a := NewAdapter(mock, nopLogger{})

	out, err := a.RenderPage(context.Background(), 1, "en")
	require.NoError(t, err)
	assert.Equal(t, "The page <b>changed</b> today.", out.HTML)
	assert.Contains(t, out.Text, "The page")
	assert.Contains(t, out.Text, "changed")
	assert.NotContains(t, out.Text, "<b>")
}

func TestRenderPagePurgeFailureIsNotFatal(t *testing.T) {
	mock := &mockPlatformRenderer{pageHTML: "<p>x</p>", purgeErr: errors.New("api timeout")}
	a := NewAdapter(mock, nopLogger{})

	out, err := a.RenderPage(context.Background(), 1, "en")
	require.NoError(t, err)
	assert.Equal(t, "x", out.HTML)
}

func TestRenderPagePropagatesRenderError(t *testing.T) {
	mock := &mockPlatformRenderer{pageErr: types.NewAppError(types.ErrCodePageInvalid, "no such page", nil)}
	a := NewAdapter(mock, nopLogger{})

	_, err := a.RenderPage(context.Background(), 1, "en")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodePageInvalid, appErr.Code)
}

func TestRenderSubject(t *testing.T) {
	mock := &mockPlatformRenderer{inlineHTML: "<p>Digest for   <i>you</i>\n</p>"}
	a := NewAdapter(mock, nopLogger{})

	subject, err := a.RenderSubject(context.Background(), "Digest for {{USER}}", "en")
	require.NoError(t, err)
	assert.Equal(t, "Digest for you", subject)
}

func TestRenderSubjectEmptyTemplate(t *testing.T) {
	mock := &mockPlatformRenderer{inlineErr: errors.New("should not be called")}
	a := NewAdapter(mock, nopLogger{})

	subject, err := a.RenderSubject(context.Background(), "   ", "en")
	require.NoError(t, err)
	assert.Equal(t, "", subject)
}

func TestStripOuterParagraph(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single wrapper", "<p>inner</p>", "inner"},
		{"wrapper with attributes", `<p class="mw-parser-output">inner</p>`, "inner"},
		{"trailing newline", "<p>inner</p>\n", "inner"},
		{"sibling paragraphs preserved", "<p>a</p><p>b</p>", "<p>a</p><p>b</p>"},
		{"nested paragraph preserved", "<p>a<p>b</p></p>", "<p>a<p>b</p></p>"},
		{"no wrapper", "<div>x</div>", "<div>x</div>"},
		{"plain text", "hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripOuterParagraph(tt.in))
		})
	}
}
