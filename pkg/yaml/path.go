package yaml

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/token"
)

// RootPath returns the path of the document root, "$".
func RootPath() *yaml.Path {
	return (&yaml.PathBuilder{}).Root().Build()
}

// PathOf builds a [yaml.Path] from location segments. Segments that parse as
// non-negative integers select sequence items; all others select map keys.
func PathOf(segments ...string) *yaml.Path {
	pb := (&yaml.PathBuilder{}).Root()

	for _, seg := range segments {
		idx, err := strconv.ParseUint(seg, 10, 0)
		if err == nil {
			pb = pb.Index(uint(idx))

			continue
		}

		pb = pb.Child(seg)
	}

	return pb.Build()
}

// keyFinder locates the mapping key whose value is a given node.
type keyFinder struct {
	value ast.Node
	key   *token.Token
}

func (f *keyFinder) Visit(node ast.Node) ast.Visitor {
	if f.key != nil {
		return nil
	}

	mv, ok := node.(*ast.MappingValueNode)
	if ok && mv.Value == f.value {
		f.key = mv.Key.GetToken()

		return nil
	}

	return f
}

// tokenAt returns the token that best marks path within source. For map
// values this is the key, since that is what a reader looks for.
func tokenAt(source []byte, path *yaml.Path) (*token.Token, error) {
	file, err := parseFile(source)
	if err != nil {
		return nil, err
	}

	node, err := path.FilterFile(file)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", path, err)
	}

	f := &keyFinder{value: node}
	for _, doc := range file.Docs {
		ast.Walk(f, doc)
	}

	if f.key != nil {
		return f.key, nil
	}

	return node.GetToken(), nil
}

// column converts a token's one-based column to a zero-based offset.
func column(tk *token.Token) int {
	if tk == nil {
		return 0
	}

	return max(tk.Position.Column-1, 0)
}
