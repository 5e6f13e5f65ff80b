package ast

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes the tree rooted at n, one node per line, children indented
// by two spaces. Empty productions are skipped.
func Dump(w io.Writer, n *Node) error {
	return dump(w, n, 0)
}

func dump(w io.Writer, n *Node, depth int) error {
	if n == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := dump(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}
