package shaders

import (
	_ "embed"
)

//go:embed capture.wgsl
var CaptureWGSL string

//go:embed probe_update.wgsl
var ProbeUpdateWGSL string

//go:embed fullscreen.wgsl
var FullscreenWGSL string
