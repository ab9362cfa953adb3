package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type CardDirection uint8

const (
	CardPosX CardDirection = iota
	CardNegX
	CardPosY
	CardNegY
	CardPosZ
	CardNegZ
)

// MaxCardsPerMesh is one card per face direction.
const MaxCardsPerMesh = 6

func (d CardDirection) String() string {
	return [...]string{"+X", "-X", "+Y", "-Y", "+Z", "-Z"}[d]
}

// SurfaceCardTemplate is the static, mesh-local description of one card.
type SurfaceCardTemplate struct {
	Direction   CardDirection
	LocalOrigin mgl32.Vec3 // center of the card plane
	LocalNormal mgl32.Vec3
	AxisX       mgl32.Vec3
	AxisY       mgl32.Vec3
	LocalSize   mgl32.Vec2
	Resolution  [2]uint32 // recommended pixel size
}

type cardFace struct {
	dir          CardDirection
	normal       mgl32.Vec3
	axisX, axisY mgl32.Vec3
	sizeAxes     [2]int // extent components spanning the face
}

var cardFaces = [MaxCardsPerMesh]cardFace{
	{CardPosX, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}, [2]int{1, 2}},
	{CardNegX, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, 1}, [2]int{1, 2}},
	{CardPosY, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, [2]int{0, 2}},
	{CardNegY, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}, [2]int{0, 2}},
	{CardPosZ, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, [2]int{0, 1}},
	{CardNegZ, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, -1, 0}, [2]int{0, 1}},
}

// BuildCardTemplates derives up to six axis-aligned cards from a mesh's local bounds.
// Faces with no visible area are skipped.
func BuildCardTemplates(bounds AABB, texelDensity float32, minRes, maxRes uint32) []SurfaceCardTemplate {
	if bounds.IsEmpty() {
		return nil
	}
	ext := bounds.Extent()
	center := bounds.Center()

	templates := make([]SurfaceCardTemplate, 0, MaxCardsPerMesh)
	for _, f := range cardFaces {
		size := mgl32.Vec2{ext[f.sizeAxes[0]], ext[f.sizeAxes[1]]}
		if size.X() <= 0 || size.Y() <= 0 {
			continue
		}

		// Push the origin out to the face along the normal.
		origin := center
		for axis := 0; axis < 3; axis++ {
			if f.normal[axis] > 0 {
				origin[axis] = bounds.Max[axis]
			} else if f.normal[axis] < 0 {
				origin[axis] = bounds.Min[axis]
			}
		}

		templates = append(templates, SurfaceCardTemplate{
			Direction:   f.dir,
			LocalOrigin: origin,
			LocalNormal: f.normal,
			AxisX:       f.axisX,
			AxisY:       f.axisY,
			LocalSize:   size,
			Resolution: [2]uint32{
				cardResolution(size.X(), texelDensity, minRes, maxRes),
				cardResolution(size.Y(), texelDensity, minRes, maxRes),
			},
		})
	}
	return templates
}

func cardResolution(size, density float32, minRes, maxRes uint32) uint32 {
	texels := uint32(math.Ceil(float64(size * density)))
	res := nextPow2(texels)
	if res < minRes {
		res = minRes
	}
	if maxRes > 0 && res > maxRes {
		res = maxRes
	}
	return res
}

func nextPow2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}
