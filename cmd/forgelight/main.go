package main

import (
	"context"
	"flag"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/pkg/profile"

	"forgelight/internal/ecs"
	"forgelight/internal/framegraph"
	"forgelight/internal/gpu"
	"forgelight/internal/render/ebitendevice"
)

var profileMode = flag.String("profile", "", "enable profiling: cpu or mem")

// Game wires a World tick and a per-frame graph compile/submit into
// ebiten's run loop, replacing the teacher's placeholder
// core.Game.Update/Draw/Layout trio with the real engine loop.
type Game struct {
	world   *ecs.World
	device  *gpu.Device
	window  *ebitendevice.Window
	persist *framegraph.PersistentStore
	cancel  context.CancelFunc
}

// NewGame constructs the device, starts its lifetime collector, and builds
// an empty World ready for systems to register against.
func NewGame() (*Game, error) {
	backend := ebitendevice.NewBackend()
	device, err := gpu.NewDevice(
		backend,
		gpu.Limits{MaxImageDimension2D: 8192, MaxDescriptorSets: 4096, MaxBoundDescriptorSets: 8},
		gpu.QueueFamily{Name: "main", Graphics: true, Compute: true, Transfer: true},
		[]gpu.MemoryType{
			{Name: "device-local", DeviceLocal: true},
			{Name: "host-visible", HostVisible: true},
		},
		gpu.WithRayTracing(false),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := device.Start(ctx); err != nil {
			log.Printf("forgelight: lifetime manager stopped: %v", err)
		}
	}()

	return &Game{
		world:   ecs.NewWorld(ecs.DefaultWorldConfig()),
		device:  device,
		window:  &ebitendevice.Window{},
		persist: framegraph.NewPersistentStore(),
		cancel:  cancel,
	}, nil
}

// Update advances the world one tick and drains its deferred-change queue
// (spec §4.8: Tick and ProcessDeferredChanges are distinct calls).
func (g *Game) Update() error {
	if err := g.world.Tick(context.Background()); err != nil {
		return err
	}
	return g.world.ProcessDeferredChanges()
}

// Draw builds one frame's graph against the screen ebiten handed us and
// compiles it; a real pass would record draw calls through r.Image, this
// demo pass only exercises the compile pipeline end to end.
func (g *Game) Draw(screen *ebiten.Image) {
	g.window.SetScreen(screen)

	bounds := screen.Bounds()
	graph := framegraph.NewGraph(g.device, g.persist)
	graph.AddPass("present", func(b *framegraph.PassBuilder) {
		target := b.DeclareImage(framegraph.FormatRGBA8, framegraph.ImageExtent{
			Width:     uint32(bounds.Dx()),
			Height:    uint32(bounds.Dy()),
			MipLevels: 1,
		}, "")
		b.AddColorOutput(target)
	}, func(r *framegraph.Recorder) {
		r.RecordCommand()
	})

	if _, err := framegraph.Compile(graph); err != nil {
		log.Printf("forgelight: frame graph compile failed: %v", err)
	}
}

// Layout reports a fixed logical screen size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 1280, 720
}

func main() {
	flag.Parse()
	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	}

	game, err := NewGame()
	if err != nil {
		log.Fatal(err)
	}
	defer game.cancel()

	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle("forgelight")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
