//go:build !tinygo

package hal

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freemono"

	"picorom/internal/buildinfo"
)

const (
	panelWidth  = 320
	panelHeight = 200
	panelScale  = 2
)

// panelFB is a small RGBA framebuffer for the host front panel. It
// satisfies the displayer contract tinyfont draws on.
type panelFB struct {
	mu  sync.Mutex
	pix []byte
}

func newPanelFB() *panelFB {
	return &panelFB{pix: make([]byte, panelWidth*panelHeight*4)}
}

func (f *panelFB) Size() (int16, int16) { return panelWidth, panelHeight }

func (f *panelFB) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || x >= panelWidth || y < 0 || y >= panelHeight {
		return
	}
	f.mu.Lock()
	off := (int(y)*panelWidth + int(x)) * 4
	f.pix[off+0] = c.R
	f.pix[off+1] = c.G
	f.pix[off+2] = c.B
	f.pix[off+3] = 0xFF
	f.mu.Unlock()
}

func (f *panelFB) Display() error { return nil }

func (f *panelFB) clear() {
	f.mu.Lock()
	for i := range f.pix {
		f.pix[i] = 0
	}
	f.mu.Unlock()
}

func (f *panelFB) snapshot(dst []byte) {
	f.mu.Lock()
	copy(dst, f.pix)
	f.mu.Unlock()
}

// RunPanel opens a desktop window showing the device status lines. It
// blocks until the window closes; closing it is not an error.
func RunPanel(status func() []string) error {
	g := &panelGame{fb: newPanelFB(), status: status}
	ebiten.SetWindowTitle("picorom (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(panelWidth*panelScale, panelHeight*panelScale)
	ebiten.SetTPS(30)
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

type panelGame struct {
	fb     *panelFB
	status func() []string

	img   *image.RGBA
	fbImg *ebiten.Image
}

var panelInk = color.RGBA{R: 0x30, G: 0xE0, B: 0x60, A: 0xFF}

func (g *panelGame) Update() error {
	g.fb.clear()
	y := int16(20)
	for _, line := range g.status() {
		tinyfont.WriteLine(g.fb, &freemono.Regular9pt7b, 8, y, line, panelInk)
		y += 20
	}
	return nil
}

func (g *panelGame) Draw(screen *ebiten.Image) {
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, panelWidth, panelHeight))
		g.fbImg = ebiten.NewImage(panelWidth, panelHeight)
	}
	g.fb.snapshot(g.img.Pix)
	g.fbImg.ReplacePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *panelGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return panelWidth, panelHeight
}
