package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ObjectId identifies a scene object owned by the host scene.
type ObjectId uint64

type LightId uint32

// MeshId keys the card template library. Templates are built once per mesh asset.
type MeshId = uuid.UUID

func NewMeshId() MeshId {
	return uuid.New()
}

// Handle is a stable arena index paired with the generation it was issued in.
// The zero Handle never refers to a live slot.
type Handle struct {
	Index      uint32
	Generation uint32
}

var InvalidHandle = Handle{}

func (h Handle) IsValid() bool {
	return h.Generation != 0
}

// Less orders handles by slot index, then generation.
func (h Handle) Less(o Handle) bool {
	if h.Index != o.Index {
		return h.Index < o.Index
	}
	return h.Generation < o.Generation
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "card(invalid)"
	}
	return fmt.Sprintf("card(%d#%d)", h.Index, h.Generation)
}

type CardId = Handle

// TextureHandle and BufferHandle are opaque references into a rendering backend.
type TextureHandle uint32
type BufferHandle uint32

// AtlasResources is the pair of backend resources that make up the card atlas.
type AtlasResources struct {
	Texture  TextureHandle
	Metadata BufferHandle
}
