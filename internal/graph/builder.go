package graph

import (
	"fmt"
	"sort"
)

type edgeKind int

const (
	edgeStatic edgeKind = iota
	edgeConditional
)

// edgeSpec 是 Builder 中登记的一条边：普通边带 to，条件边带 router。
type edgeSpec struct {
	kind    edgeKind
	from    string
	to      string
	router  Router
	targets []string
}

type branch struct {
	router  Router
	allowed map[string]bool
}

// Builder 逐步登记节点与边，Compile 时统一校验并生成不可变的 Graph。
type Builder struct {
	name  string
	nodes map[string]Node
	order []string
	entry string
	edges []edgeSpec
	// 登记阶段遇到的第一个错误，Compile 时返回
	err *BuildError
}

func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]Node),
	}
}

func (b *Builder) fail(reason, node string) {
	if b.err == nil {
		b.err = &BuildError{Reason: reason, Node: node}
	}
}

// AddNode 登记节点，ID 必须唯一且不能为 END。
func (b *Builder) AddNode(n Node) *Builder {
	if n == nil {
		b.fail("nil node", "")
		return b
	}
	id := n.ID()
	switch {
	case id == "":
		b.fail("node id is empty", "")
	case id == END:
		b.fail("node id is reserved", id)
	case b.nodes[id] != nil:
		b.fail("duplicate node id", id)
	default:
		b.nodes[id] = n
		b.order = append(b.order, id)
	}
	return b
}

func (b *Builder) SetEntryPoint(id string) *Builder {
	b.entry = id
	return b
}

// AddEdge 登记一条普通边，to 可以是 END。
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges = append(b.edges, edgeSpec{kind: edgeStatic, from: from, to: to})
	return b
}

// AddConditionalEdge 登记一条条件边。targets 为可选的目标白名单，
// 给出时 Compile 会校验它们存在，运行时路由结果也必须落在其中。
func (b *Builder) AddConditionalEdge(from string, router Router, targets ...string) *Builder {
	b.edges = append(b.edges, edgeSpec{kind: edgeConditional, from: from, router: router, targets: targets})
	return b
}

// Compile 校验并冻结图。返回的错误总是 *BuildError。
func (b *Builder) Compile() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.entry == "" {
		return nil, &BuildError{Reason: "entry point not set"}
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, &BuildError{Reason: "entry point references unknown node", Node: b.entry}
	}

	g := &Graph{
		name:     b.name,
		nodes:    make(map[string]Node, len(b.nodes)),
		order:    append([]string(nil), b.order...),
		entry:    b.entry,
		edges:    make(map[string]string),
		branches: make(map[string]*branch),
	}
	for id, n := range b.nodes {
		g.nodes[id] = n
	}

	for _, e := range b.edges {
		if _, ok := b.nodes[e.from]; !ok {
			return nil, &BuildError{Reason: "edge references unknown source node", Node: e.from}
		}

		switch e.kind {
		case edgeStatic:
			if !b.knownTarget(e.to) {
				return nil, &BuildError{Reason: fmt.Sprintf("edge references unknown target node %q", e.to), Node: e.from}
			}
			if _, dup := g.edges[e.from]; dup {
				return nil, &BuildError{Reason: "multiple unconditional edges from the same node", Node: e.from}
			}
			if _, dup := g.branches[e.from]; dup {
				return nil, &BuildError{Reason: "node has both conditional and unconditional edges", Node: e.from}
			}
			g.edges[e.from] = e.to

		case edgeConditional:
			if e.router == nil {
				return nil, &BuildError{Reason: "conditional edge without router", Node: e.from}
			}
			if _, dup := g.branches[e.from]; dup {
				return nil, &BuildError{Reason: "multiple conditional edges from the same node", Node: e.from}
			}
			if _, dup := g.edges[e.from]; dup {
				return nil, &BuildError{Reason: "node has both conditional and unconditional edges", Node: e.from}
			}
			br := &branch{router: e.router}
			if len(e.targets) > 0 {
				br.allowed = make(map[string]bool, len(e.targets))
				for _, t := range e.targets {
					if !b.knownTarget(t) {
						return nil, &BuildError{Reason: fmt.Sprintf("conditional edge references unknown target node %q", t), Node: e.from}
					}
					br.allowed[t] = true
				}
			}
			g.branches[e.from] = br
		}
	}

	return g, nil
}

func (b *Builder) knownTarget(id string) bool {
	if id == END {
		return true
	}
	_, ok := b.nodes[id]
	return ok
}

// Graph 是编译后的不可变执行计划，可被多个运行并发共享。
type Graph struct {
	name     string
	nodes    map[string]Node
	order    []string
	entry    string
	edges    map[string]string
	branches map[string]*branch
}

func (g *Graph) Name() string  { return g.name }
func (g *Graph) Entry() string { return g.entry }

// Nodes 按登记顺序返回节点 ID。
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edges 返回普通边 from->to 的副本，主要用于展示。
func (g *Graph) Edges() map[string]string {
	out := make(map[string]string, len(g.edges))
	for k, v := range g.edges {
		out[k] = v
	}
	return out
}

// ConditionalSources 返回挂有条件边的节点 ID（已排序）。
func (g *Graph) ConditionalSources() []string {
	out := make([]string, 0, len(g.branches))
	for k := range g.branches {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
