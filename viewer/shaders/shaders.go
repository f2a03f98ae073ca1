package shaders

import (
	_ "embed"
)

//go:embed raymarch.wgsl
var RaymarchWGSL string

//go:embed fullscreen.wgsl
var FullscreenWGSL string

//go:embed text.wgsl
var TextWGSL string
