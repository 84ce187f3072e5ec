package texture

import (
	"fmt"
	"image"
	"unsafe"

	_ "image/jpeg"
	_ "image/png"

	"github.com/achilleasa/vega/asset"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
	"github.com/mdouchement/hdr"
	_ "github.com/mdouchement/hdr/codec/rgbe"
	_ "golang.org/x/image/bmp"
)

// A texture image and its metadata.
type Texture struct {
	Format Format

	Width  uint32
	Height uint32

	Data []byte
}

// Create a new texture from a Resource. The set of supported image formats
// is determined by the registered image codecs; radiance (.hdr) images are
// decoded into Rgba32F textures and retain their high dynamic range.
func New(res *asset.Resource) (*Texture, error) {
	img, _, err := image.Decode(res)
	if err != nil {
		return nil, fmt.Errorf("texture: could not decode %s: %s", res.Path(), err.Error())
	}

	bounds := img.Bounds()
	tex := &Texture{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}

	switch t := img.(type) {
	case hdr.Image:
		tex.Format = Rgba32F
		data := make([]float32, tex.Width*tex.Height*4)
		wOffset := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := t.HDRAt(x, y).HDRRGBA()
				data[wOffset] = float32(r)
				data[wOffset+1] = float32(g)
				data[wOffset+2] = float32(b)
				data[wOffset+3] = 1.0
				wOffset += 4
			}
		}
		tex.Data = floatToByteSlice(data)
	case *image.Gray:
		tex.Format = Luminance8
		data := make([]byte, tex.Width*tex.Height)
		wOffset := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				data[wOffset] = t.GrayAt(x, y).Y
				wOffset++
			}
		}
		tex.Data = data
	case *image.Gray16:
		tex.Format = Luminance32F
		data := make([]float32, tex.Width*tex.Height)
		wOffset := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				data[wOffset] = float32(t.Gray16At(x, y).Y) / 65535.0
				wOffset++
			}
		}
		tex.Data = floatToByteSlice(data)
	case *image.RGBA64, *image.NRGBA64:
		tex.Format = Rgba32F
		data := make([]float32, tex.Width*tex.Height*4)
		wOffset := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, a := img.At(x, y).RGBA()
				data[wOffset] = float32(r) / 65535.0
				data[wOffset+1] = float32(g) / 65535.0
				data[wOffset+2] = float32(b) / 65535.0
				data[wOffset+3] = float32(a) / 65535.0
				wOffset += 4
			}
		}
		tex.Data = floatToByteSlice(data)
	default:
		tex.Format = Rgba8
		data := make([]byte, tex.Width*tex.Height*4)
		wOffset := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, a := img.At(x, y).RGBA()
				data[wOffset] = byte(r >> 8)
				data[wOffset+1] = byte(g >> 8)
				data[wOffset+2] = byte(b >> 8)
				data[wOffset+3] = byte(a >> 8)
				wOffset += 4
			}
		}
		tex.Data = data
	}

	return tex, nil
}

// Fetch the texel at (x, y). The caller is expected to pass coordinates
// inside the texture bounds.
func (t *Texture) Texel(x, y int) types.Vec4 {
	switch t.Format {
	case Luminance8:
		l := float32(t.Data[y*int(t.Width)+x]) / 255.0
		return types.XYZW(l, l, l, 1)
	case Luminance32F:
		l := byteToFloatSlice(t.Data)[y*int(t.Width)+x]
		return types.XYZW(l, l, l, 1)
	case Rgba8:
		off := (y*int(t.Width) + x) << 2
		return types.XYZW(
			float32(t.Data[off])/255.0,
			float32(t.Data[off+1])/255.0,
			float32(t.Data[off+2])/255.0,
			float32(t.Data[off+3])/255.0,
		)
	default:
		off := (y*int(t.Width) + x) << 2
		data := byteToFloatSlice(t.Data)
		return types.XYZW(data[off], data[off+1], data[off+2], data[off+3])
	}
}

// Sample the texture at the given UV coordinates using nearest filtering.
// Coordinates outside the [0, 1] range wrap around.
func (t *Texture) Sample(uv types.Vec2) types.Vec4 {
	u := uv[0] - math32.Floor(uv[0])
	v := uv[1] - math32.Floor(uv[1])

	x := int(u * float32(t.Width))
	if x > int(t.Width)-1 {
		x = int(t.Width) - 1
	}
	y := int(v * float32(t.Height))
	if y > int(t.Height)-1 {
		y = int(t.Height) - 1
	}
	return t.Texel(x, y)
}

// Linear returns a texture whose color channels have been raised to the
// given gamma exponent, expanding 8-bit formats to float RGBA. Textures in
// float formats are returned unchanged as they already hold linear values.
func (t *Texture) Linear(gamma float32) *Texture {
	switch t.Format {
	case Luminance32F, Rgba32F:
		return t
	}

	data := make([]float32, t.Width*t.Height*4)
	wOffset := 0
	for y := 0; y < int(t.Height); y++ {
		for x := 0; x < int(t.Width); x++ {
			texel := t.Texel(x, y)
			data[wOffset] = math32.Pow(texel[0], gamma)
			data[wOffset+1] = math32.Pow(texel[1], gamma)
			data[wOffset+2] = math32.Pow(texel[2], gamma)
			data[wOffset+3] = texel[3]
			wOffset += 4
		}
	}

	return &Texture{
		Format: Rgba32F,
		Width:  t.Width,
		Height: t.Height,
		Data:   floatToByteSlice(data),
	}
}

// Cast a float32 slice to a byte slice without copying (1 float32 = 4 bytes).
func floatToByteSlice(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)<<2)
}

// Cast a byte slice to a float32 slice without copying.
func byteToFloatSlice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)>>2)
}
