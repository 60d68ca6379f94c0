package yaml

import (
	"strings"

	"github.com/goccy/go-yaml/token"
)

// excerpt returns the lines of src that lie within context lines of the
// one-based line, along with the number of the first returned line.
func excerpt(src string, line, context int) (string, int) {
	lines := strings.Split(strings.TrimRight(src, "\n"), "\n")
	if line < 1 || line > len(lines) {
		return "", 0
	}

	first := max(line-context, 1)
	last := min(line+context, len(lines))

	return strings.Join(lines[first-1:last], "\n"), first
}

// tokenSource rebuilds the document text a token was lexed from. Each token's
// Origin carries the whitespace that preceded it, so the chain joins back
// into the original source.
func tokenSource(tk *token.Token) string {
	for tk.Prev != nil {
		tk = tk.Prev
	}

	var sb strings.Builder
	for ; tk != nil; tk = tk.Next {
		sb.WriteString(tk.Origin)
	}

	return sb.String()
}
