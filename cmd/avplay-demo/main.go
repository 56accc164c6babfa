// Command avplay-demo plays a local media file in a window, driven by
// avplay's Read/Decode/Render pipeline.
package main

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/erparts/avplay"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: go run main.go path/to/video.mp4\n")
		os.Exit(1)
	}

	path, err := filepath.Abs(os.Args[1])
	if err != nil {
		panic(err)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Printf("'%s' not found.", path)
			os.Exit(1)
		}
		panic(err)
	}

	if err := avplay.CreateAudioContextForMedia(path); err != nil {
		panic(err)
	}
	engine, err := avplay.Open(path, avplay.MediaOptions{})
	if err != nil {
		panic(err)
	}
	if err := engine.Play(); err != nil {
		panic(err)
	}

	ebiten.SetWindowTitle("avplay/demo")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(1280, 720)

	game := &demoGame{engine: engine, path: path, duration: engine.Duration()}
	if err := ebiten.RunGame(game); err != nil {
		panic(err)
	}
}

type demoGame struct {
	engine   *avplay.Engine
	path     string
	frame    *ebiten.Image
	position time.Duration
	duration time.Duration
}

func (g *demoGame) Layout(_, _ int) (int, int) {
	panic("Layout() should not be called when LayoutF() exists")
}

func (g *demoGame) LayoutF(w, h float64) (float64, float64) {
	scaleFactor := ebiten.Monitor().DeviceScaleFactor()
	return w * scaleFactor, h * scaleFactor
}

func (g *demoGame) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		if g.engine.State() == avplay.Playing {
			if err := g.engine.Pause(); err != nil {
				return err
			}
		} else if err := g.engine.Play(); err != nil {
			return err
		}
	}

	var err error
	g.frame, err = g.engine.CurrentFrame()
	if err != nil {
		return err
	}
	g.position = g.engine.Position()
	return nil
}

func (g *demoGame) Draw(canvas *ebiten.Image) {
	canvas.Fill(color.Black)
	avplay.Draw(canvas, g.frame)
	ebitenutil.DebugPrint(canvas, fmt.Sprintf("%s / %s  [space: play/pause, esc: quit]", g.position.Round(time.Second), g.duration.Round(time.Second)))
}
