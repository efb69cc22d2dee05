package model

// Graph is a serializable view of the dependency index used by the web API and
// the DOT/JSON exporters. It is derived data; the analyzer never reads it back.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// Node is either a compilation unit or a declared symbol.
type Node struct {
	ID       string                 `json:"id"`
	Label    string                 `json:"label"`
	Type     string                 `json:"type"`             // "unit" or "symbol"
	Parent   string                 `json:"parent,omitempty"` // owning unit of a symbol
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Edge connects a dependent unit to a symbol it depends on.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
	Member string   `json:"member,omitempty"`
}

// AddNode adds a node to the graph. If a node with the same ID exists, it is replaced.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]interface{})
	}
	g.Nodes[node.ID] = node
}

// AddEdge adds an edge to the graph, creating placeholder nodes for unknown endpoints.
func (g *Graph) AddEdge(edge *Edge) {
	if _, ok := g.Nodes[edge.Source]; !ok {
		g.AddNode(&Node{ID: edge.Source, Label: edge.Source, Type: "unit"})
	}
	if _, ok := g.Nodes[edge.Target]; !ok {
		g.AddNode(&Node{ID: edge.Target, Label: edge.Target, Type: "symbol"})
	}
	g.Edges = append(g.Edges, edge)
}
