// voxviewer renders a voxel collider asset with the GPU ray-march kernel
// and flies a capsule probe through it so the CPU queries and the GPU
// traversal are exercised against the same data.
package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"
	"strings"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/shaneholloman/supersplat-viewer/viewer"
	"github.com/shaneholloman/supersplat-viewer/voxel"
)

func init() {
	runtime.LockOSThread()
}

const (
	probeHalfHeight = 0.4
	probeRadius     = 0.3
)

func main() {
	asset := flag.String("asset", "", "path or URL of a .voxel.json asset (repeatable via comma separation)")
	font := flag.String("font", "", "TTF font for the HUD (optional)")
	debug := flag.Bool("debug", false, "enable debug logging")
	noclip := flag.Bool("noclip", false, "disable the collision probe")
	flag.Parse()

	log := viewer.NewDefaultLogger("voxviewer", *debug)

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "voxviewer", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	app := viewer.NewApp(window, log)

	first := loadAssets(app, *asset, log)
	if first == "" {
		// Nothing loaded; fall back to a built-in scene so the window is
		// never empty and collision still has geometry to push against.
		log.Infof("no asset loaded, using built-in demo grid")
		first = app.Assets.Register("demo", demoGrid())
	}
	app.SetGrid(first)

	if err := app.Init(*font); err != nil {
		panic(err)
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		app.Resize(width, height)
	})

	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if app.MouseCaptured {
			dx := float32(xpos - app.MouseX)
			dy := float32(ypos - app.MouseY)
			app.Camera.Yaw += dx * app.Camera.Sensitivity
			app.Camera.Pitch -= dy * app.Camera.Sensitivity
			app.Camera.ClampPitch()
		}
		app.MouseX = xpos
		app.MouseY = ypos
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyTab:
			app.MouseCaptured = !app.MouseCaptured
			if app.MouseCaptured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		case glfw.KeyH:
			if app.Mode == viewer.ModeWireframe {
				app.Mode = viewer.ModeHeatmap
			} else {
				app.Mode = viewer.ModeWireframe
			}
			log.Infof("display mode: %s", app.Mode)
		case glfw.KeyG:
			app.CycleGrid()
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		}
	})

	lastTime := glfw.GetTime()
	for !window.ShouldClose() {
		glfw.PollEvents()

		now := glfw.GetTime()
		dt := float32(now - lastTime)
		lastTime = now
		if dt > 0.1 {
			dt = 0.1
		}

		moveCamera(app, window, dt, *noclip)

		app.ClearText()
		if app.TextRenderer != nil {
			app.DrawText(hudText(app), 10, 10, 0.6, [4]float32{1, 1, 0, 1})
		}

		app.Update()
		app.Render()
	}
}

func loadAssets(app *viewer.App, refs string, log viewer.Logger) viewer.AssetId {
	var first viewer.AssetId
	for _, ref := range strings.Split(refs, ",") {
		if ref == "" {
			continue
		}
		id, err := app.Assets.LoadGrid(context.Background(), ref)
		if err != nil {
			// The viewer keeps running without this collider.
			log.Warnf("skipping asset: %v", err)
			continue
		}
		if first == "" {
			first = id
		}
	}
	return first
}

func moveCamera(app *viewer.App, window *glfw.Window, dt float32, noclip bool) {
	cam := app.Camera
	velocity := cam.Speed * dt

	forward := cam.Forward()
	right := cam.Right()

	if window.GetKey(glfw.KeyW) == glfw.Press {
		cam.Position = cam.Position.Add(forward.Mul(velocity))
	}
	if window.GetKey(glfw.KeyS) == glfw.Press {
		cam.Position = cam.Position.Sub(forward.Mul(velocity))
	}
	if window.GetKey(glfw.KeyD) == glfw.Press {
		cam.Position = cam.Position.Add(right.Mul(velocity))
	}
	if window.GetKey(glfw.KeyA) == glfw.Press {
		cam.Position = cam.Position.Sub(right.Mul(velocity))
	}
	if window.GetKey(glfw.KeySpace) == glfw.Press {
		cam.Position[1] += velocity
	}
	if window.GetKey(glfw.KeyLeftShift) == glfw.Press {
		cam.Position[1] -= velocity
	}

	if noclip || app.Grid == nil {
		return
	}

	// Capsule probe around the camera. A successful query yields the push
	// that separates the probe from the voxels it overlaps.
	center := mgl64.Vec3{float64(cam.Position[0]), float64(cam.Position[1]), float64(cam.Position[2])}
	var push mgl64.Vec3
	if app.Grid.QueryCapsule(center, probeHalfHeight, probeRadius, &push) {
		cam.Position[0] += float32(push.X())
		cam.Position[1] += float32(push.Y())
		cam.Position[2] += float32(push.Z())
	}
}

func hudText(app *viewer.App) string {
	name := "-"
	if asset, ok := app.Assets.Get(app.CurrentAsset); ok {
		name = asset.Name
	}
	captured := "free"
	if app.MouseCaptured {
		captured = "captured"
	}
	return fmt.Sprintf("FPS %.1f  mode %s  grid %s  cursor %s\nTab capture  H mode  G grid  WASD/Space/Shift move",
		app.FPS, app.Mode, name, captured)
}

func demoGrid() *voxel.Grid {
	b, err := voxel.NewBuilder(mgl64.Vec3{-16, 0, -16}, mgl64.Vec3{16, 16, 16}, 0.5)
	if err != nil {
		panic(err)
	}
	// Floor plane plus a few pillars and a hollow box to fly through.
	for x := 0; x < 64; x++ {
		for z := 0; z < 64; z++ {
			b.SetSolid(x, 0, z)
		}
	}
	for _, p := range [][2]int{{10, 10}, {10, 50}, {50, 10}, {50, 50}} {
		for y := 1; y < 12; y++ {
			b.SetSolid(p[0], y, p[1])
			b.SetSolid(p[0]+1, y, p[1])
			b.SetSolid(p[0], y, p[1]+1)
			b.SetSolid(p[0]+1, y, p[1]+1)
		}
	}
	for x := 24; x < 40; x++ {
		for y := 1; y < 10; y++ {
			for z := 24; z < 40; z++ {
				edge := x == 24 || x == 39 || z == 24 || z == 39 || y == 9
				door := y < 5 && z >= 30 && z <= 33 && x == 24
				if edge && !door {
					b.SetSolid(x, y, z)
				}
			}
		}
	}
	return b.Build()
}
