// helixview renders a G-code toolpath and a bed mesh surface into a
// software canvas and presents it with SDL2.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/pellcorp/helixscreen/internal/config"
	"github.com/pellcorp/helixscreen/internal/logger"
	"github.com/pellcorp/helixscreen/internal/meminfo"
	"github.com/pellcorp/helixscreen/internal/render"
	"github.com/pellcorp/helixscreen/internal/window"
	"github.com/pellcorp/helixscreen/pkg/bedmesh"
	"github.com/pellcorp/helixscreen/pkg/gcode"
	"github.com/pellcorp/helixscreen/pkg/geometry"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	gcode.SetLogger(logger.Log)

	app, err := newApp(cfg, flag.Arg(0))
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer app.Close()

	app.Run()
}

// App owns the window, the loaded toolpath and the bed mesh view.
type App struct {
	cfg *config.Config
	win *window.Window

	canvas *render.Canvas
	camera *bedmesh.Camera

	meshRenderer *bedmesh.Renderer
	grid         *bedmesh.Grid

	model     *ToolpathView
	showMesh  bool
	needFrame bool
}

// ToolpathView tracks the open model and which layer is displayed.
type ToolpathView struct {
	model   *gcode.ToolpathModel
	current int
	mesh    *geometry.TriangleMesh
}

func newApp(cfg *config.Config, gcodeArg string) (*App, error) {
	win, err := window.New(window.Config{
		Title:  "HelixView",
		Width:  cfg.Display.Width,
		Height: cfg.Display.Height,
		VSync:  true,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:       cfg,
		win:       win,
		canvas:    render.NewCanvas(cfg.Display.Width, cfg.Display.Height),
		camera:    bedmesh.NewCamera(),
		grid:      demoGrid(),
		showMesh:  true,
		needFrame: true,
	}

	app.camera.FOVScale = cfg.BedMesh.FOVScale
	app.camera.SetPitch(-1.0)
	app.camera.FitToGrid(app.grid)

	app.meshRenderer = bedmesh.NewRenderer()
	app.meshRenderer.Camera = app.camera
	app.meshRenderer.Opacity = uint8(cfg.BedMesh.Opacity * 255)

	if gcodeArg != "" {
		if err := app.openToolpath(gcodeArg); err != nil {
			win.Close()
			return nil, err
		}
	}
	return app, nil
}

// openToolpath opens a local file, or a file on the configured
// Moonraker host when the argument is not a local path.
func (app *App) openToolpath(arg string) error {
	ctx := context.Background()

	var source gcode.DataSource
	if _, err := os.Stat(arg); err == nil {
		fs, err := gcode.OpenFile(arg)
		if err != nil {
			return err
		}
		source = fs
	} else if strings.HasSuffix(arg, ".gcode") {
		source = gcode.NewMoonrakerSource(app.cfg.Moonraker.URL, arg, app.cfg.Moonraker.Timeout)
	} else {
		return fmt.Errorf("no such file: %s", arg)
	}

	builder := geometry.NewBuilder()
	builder.ExtrusionWidth = app.cfg.GCodeViewer.ExtrusionWidthMM
	builder.Mode = geometry.ColorPerTool

	mode := gcode.ResolveStreamingMode(app.cfg.GCodeViewer.StreamingMode)
	model, err := gcode.OpenModel(ctx, source, mode, gcode.ModelOptions{
		Builder:          builder,
		Dispatcher:       gcode.SyncDispatcher{},
		AvailableKB:      meminfo.AvailableKB(),
		ThresholdPercent: app.cfg.GCodeViewer.StreamingThresholdPercent,
		Events: gcode.ControllerEvents{
			OnProgress: func(fraction float64) {
				logger.Debug("indexing", zap.Float64("fraction", fraction))
			},
			OnReady: func(ix *gcode.LayerIndex) {
				logger.Info("toolpath ready", zap.Int("layers", ix.LayerCount()))
				app.needFrame = true
			},
			OnError: func(err error) {
				logger.Error("toolpath failed", zap.Error(err))
			},
		},
	})
	if err != nil {
		return err
	}

	app.model = &ToolpathView{model: model}
	app.showMesh = false
	app.win.SetTitle("HelixView - " + arg)
	return app.refreshLayer()
}

// refreshLayer fetches the mesh for the current layer (or the full
// model when not streaming).
func (app *App) refreshLayer() error {
	v := app.model
	if v == nil {
		return nil
	}
	if !v.model.Streaming() {
		if m, ok := v.model.FullMesh().(*geometry.TriangleMesh); ok {
			v.mesh = m
		}
		app.needFrame = true
		return nil
	}
	if !v.model.Ready() {
		return nil
	}
	if v.current >= v.model.LayerCount() {
		v.current = v.model.LayerCount() - 1
	}
	if v.current < 0 {
		v.current = 0
	}
	mesh, err := v.model.RequestLayer(context.Background(), v.current)
	if err != nil {
		return err
	}
	if m, ok := mesh.(*geometry.TriangleMesh); ok {
		v.mesh = m
	}
	app.needFrame = true
	return nil
}

// Run drives the event loop until quit.
func (app *App) Run() {
	running := true
	for running {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				running = false
			case *sdl.KeyboardEvent:
				if e.Type == sdl.KEYDOWN {
					running = app.handleKey(e.Keysym.Sym)
				}
			}
		}

		if app.needFrame {
			app.needFrame = false
			app.drawFrame()
		}
		sdl.Delay(16)
	}
}

func (app *App) handleKey(key sdl.Keycode) bool {
	switch key {
	case sdl.K_ESCAPE, sdl.K_q:
		return false
	case sdl.K_TAB:
		app.showMesh = !app.showMesh
		app.needFrame = true
	case sdl.K_LEFT:
		app.camera.SetYaw(app.camera.Yaw() - 0.1)
		app.needFrame = true
	case sdl.K_RIGHT:
		app.camera.SetYaw(app.camera.Yaw() + 0.1)
		app.needFrame = true
	case sdl.K_UP:
		app.camera.SetPitch(app.camera.Pitch() - 0.1)
		app.needFrame = true
	case sdl.K_DOWN:
		app.camera.SetPitch(app.camera.Pitch() + 0.1)
		app.needFrame = true
	case sdl.K_PAGEUP:
		if app.model != nil {
			app.model.current++
			if err := app.refreshLayer(); err != nil {
				logger.Warn("layer request failed", zap.Error(err))
			}
		}
	case sdl.K_PAGEDOWN:
		if app.model != nil {
			app.model.current--
			if err := app.refreshLayer(); err != nil {
				logger.Warn("layer request failed", zap.Error(err))
			}
		}
	}
	return true
}

func (app *App) drawFrame() {
	app.canvas.Clear(0xFF282828)
	w, h := app.win.Size()

	if app.showMesh || app.model == nil {
		app.meshRenderer.Render(app.canvas, app.grid, w, h)
	} else if app.model.mesh != nil {
		drawToolpath(app.canvas, app.camera, app.model.mesh, w, h)
	}

	if err := app.win.Present(app.canvas.Pix); err != nil {
		logger.Error("present failed", zap.Error(err))
	}
}

// drawToolpath projects the tube mesh with the bed-mesh camera and
// paints triangles back to front.
func drawToolpath(canvas *render.Canvas, cam *bedmesh.Camera, mesh *geometry.TriangleMesh, w, h int) {
	center := mesh.Bounds.Center()

	type tri struct {
		p     [3]bedmesh.ScreenPoint
		color uint32
		depth float32
	}
	tris := make([]tri, 0, mesh.TriangleCount())

	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		var t tri
		behind := false
		var depth float32
		for j := 0; j < 3; j++ {
			v := mesh.Vertices[mesh.Indices[i+j]]
			p := cam.Project(v.Position.Sub(center), w, h)
			if p.Behind() {
				behind = true
				break
			}
			t.p[j] = p
			depth += p.Depth
		}
		if behind {
			continue
		}
		t.color = mesh.Vertices[mesh.Indices[i]].Color
		t.depth = depth / 3
		tris = append(tris, t)
	}

	sort.Slice(tris, func(i, j int) bool { return tris[i].depth > tris[j].depth })
	for i := range tris {
		bedmesh.FillSolid(canvas, tris[i].p[0], tris[i].p[1], tris[i].p[2], tris[i].color, 0xFF)
	}
}

// demoGrid returns a 7x7 dome-shaped probe grid, the shape a slightly
// convex bed typically produces.
func demoGrid() *bedmesh.Grid {
	g := bedmesh.NewGrid(7, 7)
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			dx := float32(col-3) / 3
			dy := float32(row-3) / 3
			g.Set(row, col, 0.3*(1-(dx*dx+dy*dy)/2))
		}
	}
	return g
}

// Close releases the model and the window.
func (app *App) Close() {
	if app.model != nil {
		if err := app.model.model.Close(); err != nil {
			logger.Warn("model close failed", zap.Error(err))
		}
	}
	if app.win != nil {
		app.win.Close()
	}
}
