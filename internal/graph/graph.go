// Package graph renders an assembly as a DOT or Mermaid dependency graph.
//
// Stacks are clusters labeled with their region. Edges point from a
// producer to its consumer: solid for same-region imports, dashed for
// cross-region parameter bindings.
package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/emicklei/dot"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/app"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator creates dependency graphs from an assembly.
type Generator struct {
	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// Resources draws every resource and the edges between resources of
	// the same stack instead of one node per stack.
	Resources bool
}

// Generate creates the graph and writes it to w.
func (g *Generator) Generate(a *app.Assembly, w io.Writer) error {
	graph := g.buildGraph(a)

	var output string
	switch g.Format {
	case FormatDOT, "":
		output = graph.String()
	case FormatMermaid:
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	default:
		return fmt.Errorf("unsupported graph format %q", g.Format)
	}

	_, err := io.WriteString(w, output)
	return err
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(a *app.Assembly) (string, error) {
	var sb strings.Builder
	if err := g.Generate(a, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) buildGraph(a *app.Assembly) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")
	graph.Attr("compound", "true")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	// anchors holds the node standing for each stack in cross-stack edges.
	anchors := make(map[string]dot.Node, len(a.Units))
	for _, u := range a.Units {
		cluster := graph.Subgraph(u.Name, dot.ClusterOption{})
		cluster.Attr("label", fmt.Sprintf("%s\\n%s", u.Name, u.Stack.Region))
		cluster.Attr("style", "rounded")
		cluster.Attr("bgcolor", "lightyellow")

		if !g.Resources || u.Stack.Len() == 0 {
			n := cluster.Node(u.Name)
			n.Label(fmt.Sprintf("%s\\n%d resources", u.Name, u.Stack.Len()))
			anchors[u.Name] = n
			continue
		}

		order, err := u.Stack.Order()
		if err != nil {
			continue
		}
		nodes := make(map[string]dot.Node, len(order))
		for _, id := range order {
			r, _ := u.Stack.Resource(id)
			n := cluster.Node(nodeID(u.Name, id))
			n.Label(id + "\\n[" + r.Type + "]")
			nodes[id] = n
		}
		for _, edge := range u.Stack.Edges() {
			e := graph.Edge(nodes[edge.From], nodes[edge.To])
			if edge.Explicit {
				e.Attr("color", "blue")
			}
		}
		anchors[u.Name] = nodes[order[0]]
	}

	for _, u := range a.Units {
		bound := make(map[string]string)
		for _, b := range u.Stack.Bindings() {
			bound[b.FromStack] = b.Parameter
		}
		for _, dep := range u.Stack.Dependencies() {
			from, ok := anchors[dep]
			if !ok {
				continue
			}
			e := graph.Edge(from, anchors[u.Name])
			if g.Resources {
				e.Attr("ltail", clusterID(dep))
				e.Attr("lhead", clusterID(u.Name))
			}
			if param, ok := bound[dep]; ok {
				e.Attr("style", "dashed")
				e.Label(param)
			}
		}
	}

	return graph
}

func nodeID(stack, resource string) string {
	return stack + "/" + resource
}

func clusterID(stack string) string {
	return "cluster_" + stack
}
