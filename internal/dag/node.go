package dag

import "fmt"

// Kind discriminates the two variable kinds of a conditional Gaussian model.
type Kind string

const (
	KindContinuous Kind = "continuous"
	KindDiscrete   Kind = "discrete"
)

// Role marks whether a node is observed in the output data.
type Role string

const (
	RoleMeasured Role = "measured"
	RoleLatent   Role = "latent"
)

// Node is an immutable graph variable. Re-typing a node produces a new value.
type Node struct {
	name       string
	kind       Kind
	categories int
	role       Role
}

// NewContinuous returns a continuous node.
func NewContinuous(name string, role Role) Node {
	return Node{name: name, kind: KindContinuous, role: role}
}

// NewDiscrete returns a discrete node with the given number of categories.
func NewDiscrete(name string, categories int, role Role) (Node, error) {
	if categories < 2 {
		return Node{}, fmt.Errorf("node %s: discrete variables need at least 2 categories, got %d", name, categories)
	}
	return Node{name: name, kind: KindDiscrete, categories: categories, role: role}, nil
}

func (n Node) Name() string    { return n.name }
func (n Node) Kind() Kind      { return n.kind }
func (n Node) Role() Role      { return n.role }
func (n Node) Latent() bool    { return n.role == RoleLatent }
func (n Node) Discrete() bool  { return n.kind == KindDiscrete }
func (n Node) Categories() int { return n.categories }

// WithKind returns a copy of n carrying the given kind. categories is ignored
// for continuous nodes.
func (n Node) WithKind(kind Kind, categories int) (Node, error) {
	if kind == KindDiscrete {
		return NewDiscrete(n.name, categories, n.role)
	}
	return NewContinuous(n.name, n.role), nil
}

func (n Node) String() string {
	if n.kind == KindDiscrete {
		return fmt.Sprintf("%s(%s,%d)", n.name, n.kind, n.categories)
	}
	return fmt.Sprintf("%s(%s)", n.name, n.kind)
}
