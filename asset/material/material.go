package material

import (
	"fmt"

	"github.com/achilleasa/vega/types"
)

// Materials use the metallic/roughness parameterization. Scalar parameters
// describe the entire surface unless they are paired with a texture; texture
// fields hold resource paths which the scene compiler resolves relative to
// the scene file and bakes into texture indices.
type Material struct {
	Name string

	// Base color in linear space.
	Albedo types.Vec3

	// Radiant exitance. Any non-zero component flags the material as a
	// light source; emissive surfaces are treated as single-sided.
	Emissive types.Vec3

	// 0 is a dielectric and 1 a conductor.
	Metallic float32

	// Microfacet roughness; 0 is a perfect mirror.
	Roughness float32

	AlbedoTexture    string
	MetallicTexture  string
	RoughnessTexture string
	NormalTexture    string
}

// Create a material with the default surface parameters. Primitives that do
// not reference a material are assigned a copy of this one.
func Default() *Material {
	return &Material{
		Name:      "default",
		Albedo:    types.XYZ(0.7, 0.7, 0.7),
		Roughness: 1.0,
	}
}

// Check material parameters for values that would make the path integrator
// misbehave.
func (m *Material) Validate() error {
	for i := 0; i < 3; i++ {
		if m.Albedo[i] < 0 || m.Albedo[i] > 1.0 {
			return fmt.Errorf("material %q: values for albedo must be in the [0, 1] range", m.Name)
		}
		if m.Emissive[i] < 0 {
			return fmt.Errorf("material %q: values for emissive must be positive", m.Name)
		}
	}
	if m.Metallic < 0 || m.Metallic > 1.0 {
		return fmt.Errorf("material %q: value for metallic must be in the [0, 1] range", m.Name)
	}
	if m.Roughness < 0 || m.Roughness > 1.0 {
		return fmt.Errorf("material %q: value for roughness must be in the [0, 1] range", m.Name)
	}
	return nil
}

// True if the material emits light.
func (m *Material) IsEmissive() bool {
	return m.Emissive[0] != 0 || m.Emissive[1] != 0 || m.Emissive[2] != 0
}
