// Package assets loads COLLADA scenes into a node tree that visualizers bind
// to mechanism bodies.
package assets

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/mechanism"
)

// Model is a scene node.
type Model struct {
	Name          string
	Transform     mgl64.Mat4
	BaseTransform mgl64.Mat4
	Geometry      []*Geometry
	Children      []*Model
	Parent        *Model
	Unit          float64
}

// Geometry is a named triangle mesh.
type Geometry struct {
	Name      string
	Triangles *Triangles
}

// Triangles holds flat vertex and normal arrays indexed by Index.
type Triangles struct {
	VertexData []float64
	NormalData []float64
	Index      []int
}

// Count returns the number of vertex positions.
func (t *Triangles) Count() int { return len(t.VertexData) / 3 }

// NewGeometry ...
func NewGeometry(name string, triangles *Triangles) *Geometry {
	return &Geometry{Name: name, Triangles: triangles}
}

// NewModel ...
func NewModel(name string, children []*Model, geometry []*Geometry, transform mgl64.Mat4) *Model {
	model := &Model{
		Name:          name,
		Transform:     transform,
		BaseTransform: transform,
		Geometry:      geometry,
		Children:      children,
	}
	for _, child := range children {
		child.Parent = model
	}
	return model
}

// EmptyModel ...
func EmptyModel(name string) *Model {
	return NewModel(name, nil, nil, mgl64.Ident4())
}

// AddChild ...
func (model *Model) AddChild(child *Model) {
	child.Parent = model
	model.Children = append(model.Children, child)
}

// Find returns the first node named name, depth first.
func (model *Model) Find(name string) (*Model, bool) {
	if model.Name == name {
		return model, true
	}
	for _, child := range model.Children {
		if m, found := child.Find(name); found {
			return m, true
		}
	}
	return nil, false
}

// WorldTransform ...
func (model *Model) WorldTransform() mgl64.Mat4 {
	t := model.Transform
	for parent := model.Parent; parent != nil; parent = parent.Parent {
		t = parent.Transform.Mul4(t)
	}
	return t
}

// Pose splits the world transform into a position and an orientation.
func (model *Model) Pose() mechanism.Pose {
	t := model.WorldTransform()
	return mechanism.Pose{
		Position:    t.Col(3).Vec3(),
		Orientation: mgl64.Mat4ToQuat(t).Normalize(),
	}
}

// Triangles counts the vertex positions of the node and its children.
func (model *Model) Triangles() int {
	n := 0
	for _, g := range model.Geometry {
		if g.Triangles != nil {
			n += g.Triangles.Count()
		}
	}
	for _, child := range model.Children {
		n += child.Triangles()
	}
	return n
}

// Binding attaches a scene node to a body. Offset is the node pose relative
// to the body's pose at build time.
type Binding struct {
	Body   mechanism.BodyID
	Model  *Model
	Offset mechanism.Pose
}

// Bind matches bodies to scene nodes, by body name first, then by group.
// Bodies without a node are left unbound.
func Bind(m *mechanism.Mechanism, scene *Model) []Binding {
	if scene == nil {
		return nil
	}
	var out []Binding
	for i := 0; i < m.NumBodies(); i++ {
		spec := m.Body(mechanism.BodyID(i))
		node, ok := scene.Find(spec.Name)
		if !ok && spec.Group != "" {
			node, ok = scene.Find(spec.Group)
		}
		if !ok {
			continue
		}
		np := node.Pose()
		inv := spec.Pose.Orientation.Inverse()
		offset := mechanism.Pose{
			Position:    geometry.Rotate(inv, np.Position.Sub(spec.Pose.Position)),
			Orientation: geometry.Compose(inv, np.Orientation),
		}
		out = append(out, Binding{Body: mechanism.BodyID(i), Model: node, Offset: offset})
	}
	return out
}
