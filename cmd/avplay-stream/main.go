// Command avplay-stream plays a network stream (e.g. RTSP) in a window,
// exercising avplay's live/network-source options.
package main

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"github.com/erparts/avplay"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: go run main.go rtsp://host/stream\n")
		os.Exit(1)
	}
	url := os.Args[1]

	engine, err := avplay.OpenWithoutAudio(url, avplay.MediaOptions{
		IsLive:               true,
		IsNetwork:            true,
		NetworkBufferHardCap: 64 * 1024 * 1024,
		ReadTimeout:          5 * time.Second,
	})
	if err != nil {
		panic(err)
	}
	if err := engine.Play(); err != nil {
		panic(err)
	}

	ebiten.SetWindowTitle("avplay/stream")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(1280, 720)

	game := &streamGame{engine: engine}
	if err := ebiten.RunGame(game); err != nil {
		panic(err)
	}
}

type streamGame struct {
	engine *avplay.Engine
	frame  *ebiten.Image
}

func (g *streamGame) Layout(w, h int) (int, int) {
	return w, h
}

func (g *streamGame) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	var err error
	g.frame, err = g.engine.CurrentFrame()
	if err != nil {
		return err
	}
	return nil
}

func (g *streamGame) Draw(canvas *ebiten.Image) {
	canvas.Fill(color.Black)
	avplay.Draw(canvas, g.frame)
	ebitenutil.DebugPrint(canvas, fmt.Sprintf("state: %s  [esc: quit]", g.engine.State()))
}
