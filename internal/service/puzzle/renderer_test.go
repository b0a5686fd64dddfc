package puzzle

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

const backRankFEN = "3r2k1/5ppp/8/8/8/8/4RPPP/4R1K1 w - - 0 1"

func renderBoard(t *testing.T, opts RenderOptions) image.Image {
	t.Helper()
	data, err := NewSVGBoardRenderer().RenderPNG(context.Background(), backRankFEN, opts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func TestRenderPNGHighlight(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}

	img := renderBoard(t, RenderOptions{
		Highlights: map[string]string{"e4": "rgba(255, 0, 0, 1)", "zz": "#ffffff"},
		HUDHeader:  "퍼즐 #4",
		HUDTurn:    "백 차례",
	})
	if got := img.Bounds(); got.Dx() != 648 || got.Dy() != 722 {
		t.Fatalf("unexpected bounds %v", got)
	}
	if got := rgbaAt(img, 360, 434); got != red {
		t.Fatalf("e4 centre = %v, want red", got)
	}

	flipped := renderBoard(t, RenderOptions{
		Highlights: map[string]string{"e4": "#ff0000"},
		Flip:       true,
	})
	if got := rgbaAt(flipped, 288, 362); got != red {
		t.Fatalf("flipped e4 centre = %v, want red", got)
	}
	if got := rgbaAt(flipped, 360, 434); got == red {
		t.Fatal("unflipped e4 square should not be highlighted on a flipped board")
	}
}

func TestRenderPNGErrors(t *testing.T) {
	r := NewSVGBoardRenderer()
	if _, err := r.RenderPNG(context.Background(), "not a fen", RenderOptions{}); err == nil {
		t.Fatal("expected invalid FEN error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderPNG(ctx, backRankFEN, RenderOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBoardGeometryFlip(t *testing.T) {
	geo := boardGeometry{origin: image.Pt(36, 110), squareSize: 72}
	a1 := nchess.NewSquare(nchess.FileA, nchess.Rank1)

	if got, want := geo.squareRect(a1), image.Rect(36, 614, 108, 686); got != want {
		t.Fatalf("a1 = %v, want %v", got, want)
	}
	geo.flip = true
	if got, want := geo.squareRect(a1), image.Rect(540, 110, 612, 182); got != want {
		t.Fatalf("flipped a1 = %v, want %v", got, want)
	}
}

func TestParseCSSColor(t *testing.T) {
	cases := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#10ff20", color.NRGBA{R: 16, G: 255, B: 32, A: 255}, true},
		{" RGB(1, 2, 3) ", color.NRGBA{R: 1, G: 2, B: 3, A: 255}, true},
		{"rgba(0, 128, 0, 0)", color.NRGBA{G: 128}, true},
		{"rgba(0, 0, 0, 1.5)", color.NRGBA{}, false},
		{"rgb(256, 0, 0)", color.NRGBA{}, false},
		{"rgba(1, 2, 3)", color.NRGBA{}, false},
		{"hsl(1, 2, 3)", color.NRGBA{}, false},
		{"#fff", color.NRGBA{}, false},
	}
	for _, tc := range cases {
		got, ok := parseCSSColor(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseCSSColor(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseSquare(t *testing.T) {
	sq, ok := parseSquare(" H8 ")
	if !ok || sq != nchess.NewSquare(nchess.FileH, nchess.Rank8) {
		t.Fatalf("parseSquare(H8) = %v, %v", sq, ok)
	}
	for _, bad := range []string{"", "i1", "a9", "a10"} {
		if _, ok := parseSquare(bad); ok {
			t.Errorf("parseSquare(%q) accepted", bad)
		}
	}
}
