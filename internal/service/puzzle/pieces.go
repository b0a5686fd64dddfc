package puzzle

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece silhouettes on a 45x45 view box. %[1]s is the fill, %[2]s the outline.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5.5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<path d="M17 33 C17 26 19 22 22.5 20 C26 22 28 26 28 33 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<path d="M11 38 L34 38 L32 33 L13 33 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Rook: `<path d="M11 12 L15 12 L15 15 L20 15 L20 12 L25 12 L25 15 L30 15 L30 12 L34 12 L34 18 L30 21 L30 32 L15 32 L15 21 L11 18 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<path d="M10 38 L35 38 L33 32 L12 32 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Knight: `<path d="M22 10 C32 11 36 20 34 38 L14 38 C14 30 21 28 20 22 C18 24 14 25 12 27 C9 27 8 24 10 21 C13 16 16 12 22 10 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<circle cx="18" cy="16" r="1.4" fill="%[2]s"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="9" r="2.5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<path d="M22.5 12 C30 17 31 25 27 30 L18 30 C14 25 15 17 22.5 12 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<path d="M10 38 C16 36 20 35 22.5 33 C25 35 29 36 35 38 L35 39 L10 39 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<path d="M17 30 L28 30 L28 33 L17 33 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Queen: `<path d="M9 14 L14 29 L16 13 L20 28 L22.5 11 L25 28 L29 13 L31 29 L36 14 L32 34 L13 34 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<circle cx="9" cy="12" r="2" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<circle cx="16" cy="11" r="2" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<circle cx="22.5" cy="9" r="2" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<circle cx="29" cy="11" r="2" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<circle cx="36" cy="12" r="2" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<path d="M12 34 L33 34 L34 39 L11 39 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.King: `<path d="M21 5 L24 5 L24 8 L27 8 L27 11 L24 11 L24 15 L21 15 L21 11 L18 11 L18 8 L21 8 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.2"/>
<path d="M22.5 15 C16 15 9 18 10 25 C11 30 14 32 14 34 L31 34 C31 32 34 30 35 25 C36 18 29 15 22.5 15 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<path d="M12 34 L33 34 L34 39 L11 39 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceSVG(piece nchess.Piece) ([]byte, error) {
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return nil, fmt.Errorf("no shape for piece %v", piece)
	}
	fill, stroke := "#ffffff", "#1c1f2e"
	if piece.Color() == nchess.Black {
		fill, stroke = "#2b2d35", "#0b0c10"
	}
	var buf bytes.Buffer
	buf.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">`)
	fmt.Fprintf(&buf, shape, fill, stroke)
	buf.WriteString(`</svg>`)
	return buf.Bytes(), nil
}

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	data, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}
