package mechanism

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/nobonobo/rigsim/geometry"
)

// BodyID indexes a body in its Mechanism.
type BodyID int

// JointID indexes a joint in its Mechanism.
type JointID int

// BodyState is the dynamic state of a body as reported by a backend.
type BodyState struct {
	Position     geometry.Vec3 `json:"position"`
	Velocity     geometry.Vec3 `json:"velocity"`
	Acceleration geometry.Vec3 `json:"acceleration"`
	Orientation  geometry.Quat `json:"orientation"`
}

// Mechanism owns an ordered arena of bodies and joints. Its structure never
// changes after Build; only the per-joint bindings do.
type Mechanism struct {
	name     string
	bodies   []BodySpec
	joints   []JointSpec
	ends     [][2]BodyID
	bodyIdx  map[string]BodyID
	jointIdx map[string]JointID
	bindings []Binding
	topology *simple.UndirectedGraph
}

// Builder accumulates specs and validates them as they are added.
type Builder struct {
	name     string
	bodies   []BodySpec
	joints   []JointSpec
	bodyIdx  map[string]BodyID
	jointIdx map[string]JointID
	err      error
}

// NewBuilder ...
func NewBuilder(name string) *Builder {
	return &Builder{
		name:     name,
		bodyIdx:  make(map[string]BodyID),
		jointIdx: make(map[string]JointID),
	}
}

// AddBody adds a body. Returns an error if the name is empty, already used by
// another body, or the shape is degenerate.
func (b *Builder) AddBody(spec BodySpec) (BodyID, error) {
	if spec.Name == "" {
		return -1, &InvalidSpecError{Kind: "body", Reason: "empty name"}
	}
	if _, exists := b.bodyIdx[spec.Name]; exists {
		return -1, &DuplicateIDError{Kind: "body", Name: spec.Name}
	}
	if !spec.Shape.valid() {
		return -1, &InvalidSpecError{Kind: "body", Name: spec.Name, Reason: "non-positive " + spec.Shape.Kind.String() + " dimensions"}
	}
	if spec.Pose.Orientation == (geometry.Quat{}) {
		spec.Pose.Orientation = geometry.Identity()
	}
	id := BodyID(len(b.bodies))
	b.bodies = append(b.bodies, spec)
	b.bodyIdx[spec.Name] = id
	return id, nil
}

// AddJoint adds a joint. Both bodies must already be present.
func (b *Builder) AddJoint(spec JointSpec) (JointID, error) {
	if spec.Name == "" {
		return -1, &InvalidSpecError{Kind: "joint", Reason: "empty name"}
	}
	if _, exists := b.jointIdx[spec.Name]; exists {
		return -1, &DuplicateIDError{Kind: "joint", Name: spec.Name}
	}
	a, ok := b.bodyIdx[spec.BodyA]
	if !ok {
		return -1, &DanglingReferenceError{Joint: spec.Name, Body: spec.BodyA}
	}
	if _, ok := b.bodyIdx[spec.BodyB]; !ok {
		return -1, &DanglingReferenceError{Joint: spec.Name, Body: spec.BodyB}
	}
	if spec.BodyA == spec.BodyB {
		return -1, &InvalidSpecError{Kind: "joint", Name: spec.Name, Reason: "connects body " + spec.BodyA + " to itself"}
	}
	if spec.Anchor.Orientation == (geometry.Quat{}) {
		spec.Anchor.Orientation = geometry.Identity()
	}
	if spec.Relative {
		ref := b.bodies[a].Pose
		spec.Anchor = Pose{
			Position:    ref.Apply(spec.Anchor.Position),
			Orientation: geometry.Compose(ref.Orientation, spec.Anchor.Orientation),
		}
		spec.Target = ref.Apply(spec.Target)
		spec.Relative = false
	}
	id := JointID(len(b.joints))
	b.joints = append(b.joints, spec)
	b.jointIdx[spec.Name] = id
	return id, nil
}

// Body records the first error instead of returning it, for table-driven
// construction. The error surfaces from Build.
func (b *Builder) Body(spec BodySpec) BodyID {
	if b.err != nil {
		return -1
	}
	id, err := b.AddBody(spec)
	if err != nil {
		b.err = err
	}
	return id
}

// Joint is the deferred-error form of AddJoint.
func (b *Builder) Joint(spec JointSpec) JointID {
	if b.err != nil {
		return -1
	}
	id, err := b.AddJoint(spec)
	if err != nil {
		b.err = err
	}
	return id
}

// Build freezes the accumulated specs into a Mechanism.
func (b *Builder) Build() (*Mechanism, error) {
	if b.err != nil {
		return nil, fmt.Errorf("building %s: %w", b.name, b.err)
	}
	m := &Mechanism{
		name:     b.name,
		bodies:   append([]BodySpec(nil), b.bodies...),
		joints:   append([]JointSpec(nil), b.joints...),
		ends:     make([][2]BodyID, len(b.joints)),
		bodyIdx:  make(map[string]BodyID, len(b.bodyIdx)),
		jointIdx: make(map[string]JointID, len(b.jointIdx)),
		bindings: make([]Binding, len(b.joints)),
		topology: simple.NewUndirectedGraph(),
	}
	for name, id := range b.bodyIdx {
		m.bodyIdx[name] = id
	}
	for name, id := range b.jointIdx {
		m.jointIdx[name] = id
	}
	for i := range m.bodies {
		m.topology.AddNode(simple.Node(i))
	}
	for i, j := range m.joints {
		a, c := b.bodyIdx[j.BodyA], b.bodyIdx[j.BodyB]
		m.ends[i] = [2]BodyID{a, c}
		m.bindings[i] = j.Drive
		if !m.topology.HasEdgeBetween(int64(a), int64(c)) {
			m.topology.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(c)})
		}
	}
	return m, nil
}

// Build validates bodies and joints in order and returns the Mechanism.
// The first duplicate name or dangling body reference aborts the build.
func Build(name string, bodies []BodySpec, joints []JointSpec) (*Mechanism, error) {
	b := NewBuilder(name)
	for _, body := range bodies {
		if _, err := b.AddBody(body); err != nil {
			return nil, fmt.Errorf("building %s: %w", name, err)
		}
	}
	for _, joint := range joints {
		if _, err := b.AddJoint(joint); err != nil {
			return nil, fmt.Errorf("building %s: %w", name, err)
		}
	}
	return b.Build()
}

// Name ...
func (m *Mechanism) Name() string { return m.name }

// NumBodies ...
func (m *Mechanism) NumBodies() int { return len(m.bodies) }

// NumJoints ...
func (m *Mechanism) NumJoints() int { return len(m.joints) }

// Body returns the spec of body id.
func (m *Mechanism) Body(id BodyID) BodySpec { return m.bodies[id] }

// Joint returns the spec of joint id.
func (m *Mechanism) Joint(id JointID) JointSpec { return m.joints[id] }

// Ends returns the bodies joint id connects.
func (m *Mechanism) Ends(id JointID) (BodyID, BodyID) {
	e := m.ends[id]
	return e[0], e[1]
}

// BodyByName ...
func (m *Mechanism) BodyByName(name string) (BodyID, bool) {
	id, ok := m.bodyIdx[name]
	return id, ok
}

// JointByName ...
func (m *Mechanism) JointByName(name string) (JointID, bool) {
	id, ok := m.jointIdx[name]
	return id, ok
}

// BodiesInGroup returns, in arena order, the bodies tagged with group.
func (m *Mechanism) BodiesInGroup(group string) []BodyID {
	var ids []BodyID
	for i, b := range m.bodies {
		if b.Group == group {
			ids = append(ids, BodyID(i))
		}
	}
	return ids
}

// JointsInGroup returns, in arena order, the joints tagged with group.
func (m *Mechanism) JointsInGroup(group string) []JointID {
	var ids []JointID
	for i, j := range m.joints {
		if j.Group == group {
			ids = append(ids, JointID(i))
		}
	}
	return ids
}

// Binding returns the current actuation of joint id.
func (m *Mechanism) Binding(id JointID) Binding { return m.bindings[id] }

// Bind replaces the mode and/or control of joint id. A nil argument keeps the
// current value. Leaving a terminal mode returns ErrInvalidTransition.
func (m *Mechanism) Bind(id JointID, mode *ActuatorMode, control *ControlFunction) (Binding, error) {
	if int(id) < 0 || int(id) >= len(m.joints) {
		return Binding{}, fmt.Errorf("joint %d out of range", id)
	}
	cur := m.bindings[id]
	next := cur
	if mode != nil {
		if !CanTransition(cur.Mode, *mode) {
			return cur, fmt.Errorf("joint %q %s -> %s: %w", m.joints[id].Name, cur.Mode, *mode, ErrInvalidTransition)
		}
		next.Mode = *mode
	}
	if control != nil {
		next.Control = *control
	}
	m.bindings[id] = next
	return next, nil
}

// Connected reports whether a joint links bodies a and b directly.
func (m *Mechanism) Connected(a, b BodyID) bool {
	return m.topology.HasEdgeBetween(int64(a), int64(b))
}

// Islands returns the sets of bodies linked by joints, each sorted by id,
// ordered by their smallest member.
func (m *Mechanism) Islands() [][]BodyID {
	comps := topo.ConnectedComponents(m.topology)
	islands := make([][]BodyID, 0, len(comps))
	for _, c := range comps {
		ids := make([]BodyID, len(c))
		for i, n := range c {
			ids[i] = BodyID(n.ID())
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		islands = append(islands, ids)
	}
	sort.Slice(islands, func(i, j int) bool { return islands[i][0] < islands[j][0] })
	return islands
}
