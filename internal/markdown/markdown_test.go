package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTML(t *testing.T) {
	out, err := ToHTML("**Leak** under the sink\n\n- [ ] shut valve")
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>Leak</strong>")
	assert.Contains(t, out, `type="checkbox"`)
}

func TestToHTMLDropsRawHTML(t *testing.T) {
	out, err := ToHTML("hello <script>alert(1)</script>")
	require.NoError(t, err)
	assert.False(t, strings.Contains(out, "<script>"), out)
}

func TestToHTMLEmpty(t *testing.T) {
	out, err := ToHTML("")
	require.NoError(t, err)
	assert.Empty(t, out)
}
