package taxonomy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
)

// Node is one category with its children attached.
type Node struct {
	store.Category
	Children []*Node
}

// BuildTree links a flat category list into a forest of root nodes. Roots
// and children are ordered by article count, then name.
func BuildTree(cats []store.Category) []*Node {
	nodes := make(map[int64]*Node, len(cats))
	for _, c := range cats {
		nodes[c.ID] = &Node{Category: c}
	}

	var roots []*Node
	for _, c := range cats {
		n := nodes[c.ID]
		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}

	sortNodes(roots)
	for _, n := range nodes {
		sortNodes(n.Children)
	}
	return roots
}

func sortNodes(ns []*Node) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].ArticleCount != ns[j].ArticleCount {
			return ns[i].ArticleCount > ns[j].ArticleCount
		}
		return ns[i].Name < ns[j].Name
	})
}

// RenderContext formats the top two levels of the tree for inclusion in a
// classification prompt, largest categories first, capped at maxLines lines.
func RenderContext(cats []store.Category, maxLines int) string {
	if maxLines <= 0 {
		maxLines = 50
	}
	var b strings.Builder
	lines := 0
	for _, root := range BuildTree(cats) {
		if lines >= maxLines {
			break
		}
		fmt.Fprintf(&b, "- %s (%d)\n", root.Name, root.ArticleCount)
		lines++
		for _, child := range root.Children {
			if lines >= maxLines {
				break
			}
			fmt.Fprintf(&b, "  - %s (%d)\n", child.Name, child.ArticleCount)
			lines++
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderTree formats the full tree for terminal display.
func RenderTree(cats []store.Category) string {
	var b strings.Builder
	for _, root := range BuildTree(cats) {
		writeNode(&b, root, 0)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeNode(b *strings.Builder, n *Node, depth int) {
	if depth == 0 {
		fmt.Fprintf(b, "%s (%d)\n", n.Name, n.ArticleCount)
	} else {
		fmt.Fprintf(b, "%s├─ %s (%d)\n", strings.Repeat("  ", depth), n.Name, n.ArticleCount)
	}
	for _, child := range n.Children {
		writeNode(b, child, depth+1)
	}
}
