// Package export writes the contents of a catalog in formats understood by
// external tools: Graphviz DOT, Cypher queries, neo4j-admin import CSV files
// and TOML.
package export

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/mewmew/allplay/internal/catalog"
	"github.com/pkg/errors"
)

// nixStorePrefix is trimmed from paths in addition to the scan root.
const nixStorePrefix = "/nix/store/"

// TrimPath returns s with the given prefix, the Nix store prefix and any
// leading slash removed.
func TrimPath(s, prefix string) string {
	if len(prefix) > 0 {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, nixStorePrefix)
	return strings.TrimPrefix(s, "/")
}

// basename returns the last element of the slash separated path s.
func basename(s string) string {
	return path.Base(s)
}

// Graph is a directed graph with string keyed nodes.
type Graph struct {
	nodes []node
	// Node index by key.
	index map[string]int
	edges [][2]int
}

// node is a node of a graph.
type node struct {
	key   string
	label string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode adds a node with the given key and label, unless a node with the
// same key already exists.
func (g *Graph) AddNode(key, label string) {
	if _, ok := g.index[key]; ok {
		return
	}
	g.index[key] = len(g.nodes)
	g.nodes = append(g.nodes, node{key: key, label: label})
}

// AddEdge adds an edge between the nodes with the given keys.
func (g *Graph) AddEdge(from, to string) error {
	i, ok := g.index[from]
	if !ok {
		return errors.Errorf("unable to locate node %q", from)
	}
	j, ok := g.index[to]
	if !ok {
		return errors.Errorf("unable to locate node %q", to)
	}
	g.edges = append(g.edges, [2]int{i, j})
	return nil
}

// WriteDOT writes the graph in Graphviz DOT format to w.
func (g *Graph) WriteDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("digraph G {\n")
	bw.WriteString("rankdir=LR;\n")
	bw.WriteString("newrank=true;\n")
	bw.WriteString("overlap=false;\n")
	bw.WriteString("outputorder=edgesfirst;\n")
	bw.WriteString("compound=true;\n")
	bw.WriteString("node [shape=record];\n")
	for i, n := range g.nodes {
		fmt.Fprintf(bw, "Node %d [label=%q];\n", i, n.label)
	}
	for _, e := range g.edges {
		fmt.Fprintf(bw, "Node %d -> Node %d;\n", e[0], e[1])
	}
	bw.WriteString("}\n")
	return errors.WithStack(bw.Flush())
}

// BuildGraph returns the graph of bundles and the modules they contain. Paths
// are trimmed of the given prefix (e.g. the scan root).
func BuildGraph(c *catalog.Catalog, prefix string) (*Graph, error) {
	g := NewGraph()
	label := func(key string) string {
		// Drop the leading path element; e.g. the Nix store hash.
		if i := strings.IndexByte(key, '/'); i != -1 {
			return key[i+1:]
		}
		return key
	}
	addNode := func(s string) string {
		key := TrimPath(s, prefix)
		g.AddNode(key, label(key))
		return key
	}
	for _, bd := range c.Bundles {
		addNode(bd.Path)
	}
	for _, mi := range c.Modules {
		addNode(mi.Location())
	}
	for _, bd := range c.Bundles {
		from := TrimPath(bd.Path, prefix)
		for _, mi := range c.BundleModules(bd) {
			if err := g.AddEdge(from, TrimPath(mi.Location(), prefix)); err != nil {
				return nil, errors.WithStack(err)
			}
		}
	}
	return g, nil
}
