package cmd

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/urfave/cli"

	"github.com/gekko3d/gicache/gi/app"
	"github.com/gekko3d/gicache/gi/demo"
)

// View opens a window showing the live card atlas of the demo scene.
func View(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	opts := demo.DefaultOptions()
	opts.Boxes = ctx.Int("boxes")
	opts.Lights = ctx.Int("lights")
	opts.Seed = ctx.Int64("seed")

	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(ctx.Int("width"), ctx.Int("height"), "gicache", nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	application := app.NewApp(window, cfg, opts, logger)
	if err := application.Init(); err != nil {
		return err
	}
	defer application.Release()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
			return
		}
		application.HandleKey(key, action)
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		application.Render()
	}
	return nil
}
