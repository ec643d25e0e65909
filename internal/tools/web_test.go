package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripMarkupDropsScriptsAndStyles(t *testing.T) {
	page := `<html><head><title>t</title><style>body{color:red}</style></head>
<body><h1>Docs</h1><script>alert(1)</script><p>content</p><noscript>enable js</noscript></body></html>`

	out, err := stripMarkup(strings.NewReader(page))
	require.NoError(t, err)
	require.Contains(t, out, "<h1>Docs</h1>")
	require.Contains(t, out, "<p>content</p>")
	require.NotContains(t, out, "alert(1)")
	require.NotContains(t, out, "color:red")
	require.NotContains(t, out, "enable js")
}

func TestStripMarkupWithoutBody(t *testing.T) {
	out, err := stripMarkup(strings.NewReader("<p>fragment</p>"))
	require.NoError(t, err)
	require.Contains(t, out, "fragment")
}
