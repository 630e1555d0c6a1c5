// Package sem builds the structural-parameter schema of the continuous part of
// a conditional Gaussian model. Parameters are opaque handles; their numeric
// values are drawn lazily by the sampler.
package sem

import (
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
)

var (
	ErrNotContinuous = errors.New("sem: schema graph must contain only continuous nodes")
	ErrNoParameter   = errors.New("sem: no such parameter")
)

// ParamType discriminates the structural constants of a node.
type ParamType string

const (
	ParamMean  ParamType = "mean"
	ParamCoef  ParamType = "coef"
	ParamShape ParamType = "shape"
	ParamVar   ParamType = "var"
)

// Parameter is a stable handle for one structural constant.
type Parameter struct {
	ID   string
	Type ParamType
}

// Schema exposes the parameter handles of every node and edge of a continuous graph.
type Schema struct {
	means  map[string]Parameter
	vars   map[string]Parameter
	coefs  map[dag.Edge]Parameter
	shapes map[dag.Edge]Parameter
}

// Build creates a schema for g. Every node of g must be continuous.
func Build(g *dag.Graph) (*Schema, error) {
	s := &Schema{
		means:  make(map[string]Parameter, g.NodeCount()),
		vars:   make(map[string]Parameter, g.NodeCount()),
		coefs:  make(map[dag.Edge]Parameter, g.EdgeCount()),
		shapes: make(map[dag.Edge]Parameter, g.EdgeCount()),
	}
	for _, n := range g.Nodes() {
		if n.Kind() != dag.KindContinuous {
			return nil, fmt.Errorf("%w: %s", ErrNotContinuous, n)
		}
		s.means[n.Name()] = Parameter{ID: "mean(" + n.Name() + ")", Type: ParamMean}
		s.vars[n.Name()] = Parameter{ID: "var(" + n.Name() + ")", Type: ParamVar}
	}
	for _, e := range g.Edges() {
		label := e.From + "->" + e.To
		s.coefs[e] = Parameter{ID: "coef(" + label + ")", Type: ParamCoef}
		s.shapes[e] = Parameter{ID: "shape(" + label + ")", Type: ParamShape}
	}
	return s, nil
}

// MeanParam returns the bias handle of node.
func (s *Schema) MeanParam(node string) (Parameter, error) {
	p, ok := s.means[node]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: mean of %s", ErrNoParameter, node)
	}
	return p, nil
}

// VarParam returns the noise-scale handle of node.
func (s *Schema) VarParam(node string) (Parameter, error) {
	p, ok := s.vars[node]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: variance of %s", ErrNoParameter, node)
	}
	return p, nil
}

// CoefParam returns the linear coefficient handle of parent → child.
func (s *Schema) CoefParam(parent, child string) (Parameter, error) {
	p, ok := s.coefs[dag.Edge{From: parent, To: child}]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: coefficient of %s -> %s", ErrNoParameter, parent, child)
	}
	return p, nil
}

// ShapeParam returns the nonlinearity magnitude handle of parent → child.
func (s *Schema) ShapeParam(parent, child string) (Parameter, error) {
	p, ok := s.shapes[dag.Edge{From: parent, To: child}]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: shape of %s -> %s", ErrNoParameter, parent, child)
	}
	return p, nil
}

// NumParameters returns how many handles the schema holds.
func (s *Schema) NumParameters() int {
	return len(s.means) + len(s.vars) + len(s.coefs) + len(s.shapes)
}
