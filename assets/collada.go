package assets

import (
	"fmt"
	"math"

	"github.com/GlenKelley/go-collada"
	"github.com/go-gl/mathgl/mgl64"
)

// zUp turns a Z-up document into the simulation's Y-up frame.
var zUp = mgl64.HomogRotate3DX(-math.Pi / 2).Mul4(mgl64.HomogRotate3DZ(math.Pi / 2))

// LoadScene reads a COLLADA document into a model tree rooted at "scene".
func LoadScene(filename string) (*Model, error) {
	doc, err := collada.LoadDocument(filename)
	if err != nil {
		return nil, fmt.Errorf("assets: %s: %w", filename, err)
	}
	index, err := NewIndex(doc)
	if err != nil {
		return nil, fmt.Errorf("assets: %s: %w", filename, err)
	}
	model := EmptyModel("scene")
	if doc.Asset != nil && doc.Asset.Unit != nil {
		model.Unit = doc.Asset.Unit.Meter
	}
	if doc.Asset != nil && doc.Asset.UpAxis == collada.Zup {
		model.Transform = zUp
		model.BaseTransform = zUp
	}

	templates := make(map[collada.Id][]*Geometry)
	for id, mesh := range index.Mesh {
		var geoms []*Geometry
		for _, tr := range mesh.Triangles {
			geoms = append(geoms, NewGeometry(string(id), tr))
		}
		if len(geoms) > 0 {
			templates[id] = geoms
		}
	}
	if index.VisualScene == nil {
		return model, nil
	}
	for _, node := range index.VisualScene.Node {
		if child, ok := loadNode(index, node, templates); ok {
			model.AddChild(child)
		}
	}
	return model, nil
}

// loadNode keeps only nodes that carry geometry, directly or below.
func loadNode(index *Index, node *collada.Node, templates map[collada.Id][]*Geometry) (*Model, bool) {
	transform, ok := index.Transforms[node.Id]
	if !ok {
		transform = NodeTransform(node)
	}
	var geoms []*Geometry
	for _, inst := range node.InstanceGeometry {
		id, _ := inst.Url.Id()
		geoms = append(geoms, templates[id]...)
	}
	var children []*Model
	for _, childNode := range node.Node {
		if child, ok := loadNode(index, childNode, templates); ok {
			children = append(children, child)
		}
	}
	name := node.Name
	if name == "" {
		name = string(node.Id)
	}
	return NewModel(name, children, geoms, transform), len(geoms) > 0 || len(children) > 0
}

// Index resolves ids across a document's libraries.
type Index struct {
	Collada     *collada.Collada
	Id          map[collada.Id]interface{}
	Data        map[collada.Id][]float64
	Mesh        map[collada.Id]*Mesh
	Transforms  map[collada.Id]mgl64.Mat4
	VisualScene *collada.VisualScene
}

// Mesh ...
type Mesh struct {
	VerticesId string
	Triangles  []*Triangles
}

// NewIndex ...
func NewIndex(c *collada.Collada) (*Index, error) {
	index := &Index{
		Collada:    c,
		Id:         make(map[collada.Id]interface{}),
		Data:       make(map[collada.Id][]float64),
		Mesh:       make(map[collada.Id]*Mesh),
		Transforms: make(map[collada.Id]mgl64.Mat4),
	}
	if err := index.init(); err != nil {
		return nil, err
	}
	return index, nil
}

func (index *Index) addId(id collada.Id, obj interface{}) error {
	if prev, ok := index.Id[id]; ok && prev != obj {
		return fmt.Errorf("object id %q already defined", id)
	}
	index.Id[id] = obj
	return nil
}

func (index *Index) init() error {
	if err := index.indexVisualScenes(); err != nil {
		return err
	}
	if err := index.indexGeometry(); err != nil {
		return err
	}
	if index.Collada.Scene == nil || index.Collada.Scene.InstanceVisualScene == nil {
		return nil
	}
	if id, ok := index.Collada.Scene.InstanceVisualScene.Url.Id(); ok {
		vs, ok := index.Id[id].(*collada.VisualScene)
		if !ok {
			return fmt.Errorf("visual scene %q not found", id)
		}
		index.VisualScene = vs
	}
	return nil
}

// NodeTransform composes a node's matrix, translate, rotate and scale
// elements in document order.
func NodeTransform(node *collada.Node) mgl64.Mat4 {
	transform := mgl64.Ident4()
	for _, matrix := range node.Matrix {
		v := matrix.F()
		// COLLADA matrices are row major.
		transform = transform.Mul4(mgl64.Mat4{
			v[0], v[1], v[2], v[3],
			v[4], v[5], v[6], v[7],
			v[8], v[9], v[10], v[11],
			v[12], v[13], v[14], v[15],
		}.Transpose())
	}
	for _, translate := range node.Translate {
		v := translate.F()
		transform = transform.Mul4(mgl64.Translate3D(v[0], v[1], v[2]))
	}
	for _, rotation := range node.Rotate {
		v := rotation.F()
		transform = transform.Mul4(mgl64.HomogRotate3D(mgl64.DegToRad(v[3]), mgl64.Vec3{v[0], v[1], v[2]}.Normalize()))
	}
	for _, scale := range node.Scale {
		v := scale.F()
		transform = transform.Mul4(mgl64.Scale3D(v[0], v[1], v[2]))
	}
	return transform
}

func (index *Index) indexVisualScenes() error {
	for _, lib := range index.Collada.LibraryVisualScenes {
		for _, vs := range lib.VisualScene {
			if len(vs.Id) != 0 {
				if err := index.addId(vs.Id, vs); err != nil {
					return err
				}
			}
			for _, node := range vs.Node {
				if err := index.indexNode(node); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (index *Index) indexNode(node *collada.Node) error {
	if len(node.Id) != 0 {
		if err := index.addId(node.Id, node); err != nil {
			return err
		}
		index.Transforms[node.Id] = NodeTransform(node)
	}
	for _, child := range node.Node {
		if err := index.indexNode(child); err != nil {
			return err
		}
	}
	return nil
}

func (index *Index) indexGeometry() error {
	for _, lib := range index.Collada.LibraryGeometries {
		for _, g := range lib.Geometry {
			if len(g.Id) != 0 {
				if err := index.addId(g.Id, g); err != nil {
					return err
				}
			}
			if g.Mesh == nil {
				continue
			}
			mesh, err := index.createMesh(g.Mesh)
			if err != nil {
				return fmt.Errorf("geometry %q: %w", g.Id, err)
			}
			index.Mesh[g.Id] = mesh
		}
	}
	return nil
}

func (index *Index) createMesh(m *collada.Mesh) (*Mesh, error) {
	for _, source := range m.Source {
		if source.FloatArray != nil {
			index.Data[source.Id] = source.FloatArray.F()
		}
	}
	vertices := map[string]collada.Id{}
	for _, in := range m.Vertices.Input {
		vertices[in.Semantic], _ = in.Source.Id()
	}
	mesh := &Mesh{
		VerticesId: string(m.Vertices.Id),
		Triangles:  make([]*Triangles, len(m.Triangles)),
	}
	for k, pl := range m.Triangles {
		tr, err := index.createTriangles(pl, vertices)
		if err != nil {
			return nil, err
		}
		mesh.Triangles[k] = tr
	}
	return mesh, nil
}

func (index *Index) createTriangles(pl *collada.Triangles, vertices map[string]collada.Id) (*Triangles, error) {
	tr := &Triangles{Index: pl.P.I()}
	for _, in := range pl.Input {
		switch in.Semantic {
		case "VERTEX":
			data, ok := index.Data[vertices["POSITION"]]
			if !ok {
				return nil, fmt.Errorf("missing vertex positions")
			}
			tr.VertexData = data
		case "NORMAL":
			id, _ := in.Source.Id()
			tr.NormalData = index.Data[id]
		}
	}
	return tr, nil
}
