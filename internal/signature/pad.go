// Package signature captures free-hand signatures as PNG rasters.
package signature

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
)

const (
	DefaultWidth  = 600
	DefaultHeight = 200
	penRadius     = 2
)

var (
	background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	ink        = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
)

// Point is a pointer position in pad coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pad accumulates pointer-drag strokes into a raster. There is no undo
// beyond Clear.
type Pad struct {
	mu      sync.Mutex
	img     *image.RGBA
	last    image.Point
	drawing bool
	inked   bool
}

func NewPad(width, height int) *Pad {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	p := &Pad{img: image.NewRGBA(image.Rect(0, 0, width, height))}
	p.fill()
	return p
}

func (p *Pad) fill() {
	draw.Draw(p.img, p.img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)
}

// Begin starts a stroke (pointer down). A single tap leaves a dot.
func (p *Pad) Begin(pt Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drawing = true
	p.last = p.clamp(pt)
	p.dot(p.last)
}

// Move extends the current stroke. Moves without a Begin are ignored.
func (p *Pad) Move(pt Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.drawing {
		return
	}
	next := p.clamp(pt)
	p.line(p.last, next)
	p.last = next
}

// End finishes the stroke (pointer up) and returns the committed raster as a
// PNG data URL.
func (p *Pad) End() (string, error) {
	p.mu.Lock()
	p.drawing = false
	snapshot := image.NewRGBA(p.img.Bounds())
	copy(snapshot.Pix, p.img.Pix)
	p.mu.Unlock()
	return Encode(snapshot)
}

// Clear resets the raster to blank.
func (p *Pad) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fill()
	p.drawing = false
	p.inked = false
}

// Load replaces the raster with img drawn at the origin. Pixels outside the
// pad are cropped. A blank image leaves the pad empty.
func (p *Pad) Load(img image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fill()
	draw.Draw(p.img, p.img.Bounds(), img, img.Bounds().Min, draw.Over)
	p.drawing = false
	p.inked = p.hasInk()
}

func (p *Pad) hasInk() bool {
	b := p.img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if p.img.RGBAAt(x, y) != background {
				return true
			}
		}
	}
	return false
}

// clamp pins pt just outside the canvas, far enough that the pen leaves no
// ink there. Strokes through the void stay bounded by the pad size.
func (p *Pad) clamp(pt Point) image.Point {
	b := p.img.Bounds().Inset(-(penRadius + 1))
	return image.Pt(min(max(pt.X, b.Min.X), b.Max.X-1), min(max(pt.Y, b.Min.Y), b.Max.Y-1))
}

// Empty reports whether nothing has been drawn since the last Clear.
func (p *Pad) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.inked
}

// line walks from a to b (Bresenham) stamping the pen at every step.
func (p *Pad) line(a, b image.Point) {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		p.dot(a)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func (p *Pad) dot(c image.Point) {
	b := p.img.Bounds()
	for y := c.Y - penRadius; y <= c.Y+penRadius; y++ {
		for x := c.X - penRadius; x <= c.X+penRadius; x++ {
			if (x-c.X)*(x-c.X)+(y-c.Y)*(y-c.Y) > penRadius*penRadius {
				continue
			}
			if !image.Pt(x, y).In(b) {
				continue
			}
			p.img.SetRGBA(x, y, ink)
			p.inked = true
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
