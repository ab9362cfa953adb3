package atlas

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/draw"
)

var (
	freeColor     = color.RGBA{24, 24, 32, 255}
	occupiedColor = color.RGBA{80, 200, 120, 255}
)

// OccupancyImage renders one pixel per tile, upscaled by scale.
func OccupancyImage(a *TileAllocator, scale int) *image.RGBA {
	gw, gh := a.GridSize()
	small := image.NewRGBA(image.Rect(0, 0, gw, gh))
	for y := 0; y < gh; y++ {
		for x := 0; x < gw; x++ {
			c := freeColor
			if a.IsOccupied(TileCoord{X: x, Y: y}) {
				c = occupiedColor
			}
			small.SetRGBA(x, y, c)
		}
	}
	if scale <= 1 {
		return small
	}

	dst := image.NewRGBA(image.Rect(0, 0, gw*scale, gh*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), draw.Src, nil)
	return dst
}

// FormatFromPath maps a file extension to a WriteOccupancy format.
func FormatFromPath(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// CheckFormat reports whether WriteOccupancy can encode format.
func CheckFormat(format string) error {
	switch format {
	case "webp", "tga", "png", "":
		return nil
	}
	return fmt.Errorf("unsupported occupancy format %q", format)
}

// WriteOccupancy encodes img as webp, tga or png.
func WriteOccupancy(w io.Writer, img image.Image, format string) error {
	switch format {
	case "webp":
		if err := nativewebp.Encode(w, img, nil); err != nil {
			return fmt.Errorf("failed to encode webp: %w", err)
		}
	case "tga":
		if err := tga.Encode(w, img); err != nil {
			return fmt.Errorf("failed to encode tga: %w", err)
		}
	case "png", "":
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("failed to encode png: %w", err)
		}
	default:
		return CheckFormat(format)
	}
	return nil
}
