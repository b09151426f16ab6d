package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbsolutizeImageURLs(t *testing.T) {
	const host = "https://wiki.example.test"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "relative src is prefixed",
			in:   `<img src="/images/a.png"/>`,
			want: `src="https://wiki.example.test/images/a.png"`,
		},
		{
			name: "already absolute src untouched",
			in:   `<img src="https://wiki.example.test/images/a.png"/>`,
			want: `src="https://wiki.example.test/images/a.png"`,
		},
		{
			name: "srcset descriptors preserved",
			in:   `<img srcset="/images/a.png 1x, /images/b.png 2x"/>`,
			want: `srcset="https://wiki.example.test/images/a.png 1x, https://wiki.example.test/images/b.png 2x"`,
		},
		{
			name: "nested images rewritten",
			in:   `<div><a href="/page"><img src="/thumb.png"/></a></div>`,
			want: `src="https://wiki.example.test/thumb.png"`,
		},
		{
			name: "image-free fragment passes through",
			in:   `<b>hello</b>`,
			want: `<b>hello</b>`,
		},
		{
			name: "protocol-relative src untouched",
			in:   `<img src="//cdn.example.net/a.png"/>`,
			want: `src="//cdn.example.net/a.png"`,
		},
		{
			name: "relative src mentioning the host is still prefixed",
			in:   `<img src="/a.png?ref=https://wiki.example.test"/>`,
			want: `src="https://wiki.example.test/a.png?ref=https://wiki.example.test"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := AbsolutizeImageURLs(host, tt.in)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestAbsolutizeLeavesNonImageURLsAlone(t *testing.T) {
	out, err := AbsolutizeImageURLs("https://wiki.example.test", `<a href="/page">link</a>`)
	require.NoError(t, err)
	assert.Contains(t, out, `href="/page"`)
}

func TestAbsolutizeEmptyInputs(t *testing.T) {
	out, err := AbsolutizeImageURLs("", `<img src="/a.png"/>`)
	require.NoError(t, err)
	assert.Equal(t, `<img src="/a.png"/>`, out)

	out, err = AbsolutizeImageURLs("https://wiki.example.test", "")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestHTMLToText(t *testing.T) {
	text := HTMLToText("<p>Hello <b>world</b></p><p>Second paragraph</p>")
	assert.Contains(t, text, "Hello world")
	assert.Contains(t, text, "Second paragraph")
	assert.NotContains(t, text, "<")
}

func TestHTMLToTextKeepsLinkText(t *testing.T) {
	text := HTMLToText(`see the <a href="https://example.test/change">change log</a>`)
	assert.Contains(t, text, "change log")
}

func TestStripTagsFallback(t *testing.T) {
	assert.Equal(t, "plain", stripTags("<x>plain</x>"))
	assert.Equal(t, "a  b", stripTags("a <br> b"))
}
