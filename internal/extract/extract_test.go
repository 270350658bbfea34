package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextUTF8(t *testing.T) {
	out, err := Text("terms.TXT", []byte("\xef\xbb\xbfPodmínky užívání"))
	require.NoError(t, err)
	assert.Equal(t, "Podmínky užívání", out)
}

func TestTextLatin1Fallback(t *testing.T) {
	// "café" in ISO-8859-1
	out, err := Text("terms.txt", []byte{'c', 'a', 'f', 0xe9})
	require.NoError(t, err)
	assert.Equal(t, "café", out)
}

func TestTextUnsupported(t *testing.T) {
	_, err := Text("terms.pdf", []byte("%PDF-1.4"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Text("terms", []byte("x"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestHTMLBlocks(t *testing.T) {
	page := `<html><head><title>T&amp;C</title><style>p{color:red}</style></head>
<body>
  <h1>Terms</h1>
  <p>1. We may   change these <b>terms</b> at any time.</p>
  <script>alert("x")</script>
  <ul><li>2. We share data with partners.</li><li>3. No refunds.</li></ul>
</body></html>`

	out, err := Text("page.htm", []byte(page))
	require.NoError(t, err)
	assert.Equal(t,
		"Terms\n\n1. We may change these terms at any time.\n\n2. We share data with partners.\n\n3. No refunds.",
		out)
	assert.NotContains(t, out, "alert")
	assert.NotContains(t, out, "color")
}

func TestHTMLEmpty(t *testing.T) {
	out, err := HTML([]byte("<html><body><script>x()</script></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, out)
}
