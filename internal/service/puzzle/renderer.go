package puzzle

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type MoveHighlight struct {
	From string
	To   string
}

type RenderOptions struct {
	// Highlights maps squares to CSS colours ("rgba(r, g, b, a)" or "#rrggbb").
	Highlights  map[string]string
	LastMove    *MoveHighlight
	Flip        bool
	HUDHeader   string
	HUDProgress string
	HUDTurn     string
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, fen string, opts RenderOptions) ([]byte, error)
}

type svgBoardRenderer struct {
	face font.Face
}

func NewSVGBoardRenderer() BoardRenderer {
	return &svgBoardRenderer{face: basicfont.Face7x13}
}

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, fen string, opts RenderOptions) ([]byte, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("render board: %w", err)
	}
	board := nchess.NewGame(opt).Position().Board()

	const (
		squareSize           = 72
		boardSquares         = 8
		boardSize            = squareSize * boardSquares
		sideMargin           = 36
		topMargin            = 110
		bottomMargin         = 36
		titleHeight          = 40
		secondaryPanelHeight = 32
		gapBetweenPanels     = 14
		gapToBoard           = 22
		panelRadius          = 12
		shadowOffsetY        = 6
	)

	totalWidth := boardSize + sideMargin*2
	totalHeight := boardSize + topMargin + bottomMargin
	geo := boardGeometry{
		origin:     image.Point{X: sideMargin, Y: topMargin},
		squareSize: squareSize,
		flip:       opts.Flip,
	}
	boardRect := image.Rect(geo.origin.X, geo.origin.Y, geo.origin.X+boardSize, geo.origin.Y+boardSize)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	r.drawHUD(img, opts, boardRect, hudLayout{
		radius:          panelRadius,
		titleHeight:     titleHeight,
		secondaryHeight: secondaryPanelHeight,
		gapPanels:       gapBetweenPanels,
		gapToBoard:      gapToBoard,
		shadowOffsetY:   shadowOffsetY,
	})
	drawBoardShadow(img, boardRect)
	drawSquares(img, geo)
	drawLastMove(img, board, opts.LastMove, geo)
	drawHighlights(img, opts.Highlights, geo)
	if err := drawPieces(img, board, geo); err != nil {
		return nil, err
	}
	r.drawCoordinates(img, geo, sideMargin)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

var (
	backgroundColor           = color.RGBA{R: 20, G: 22, B: 33, A: 255}
	lightSquare               = color.RGBA{233, 207, 163, 255}
	darkSquare                = color.RGBA{187, 136, 96, 255}
	whiteMoveHighlightFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveHighlightArrow   = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	neutralMoveHighlightArrow = color.NRGBA{R: 182, G: 184, B: 190, A: 140}
	hudPanelColor             = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTurnPanelColor         = color.NRGBA{R: 32, G: 35, B: 52, A: 245}
	hudShadowColor            = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary            = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTurnTextColor          = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor          = color.NRGBA{0, 0, 0, 60}
	coordinateTextColor       = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

type boardGeometry struct {
	origin     image.Point
	squareSize int
	flip       bool
}

func (g boardGeometry) squareRect(sq nchess.Square) image.Rectangle {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	if g.flip {
		col, row = 7-col, 7-row
	}
	x := g.origin.X + col*g.squareSize
	y := g.origin.Y + row*g.squareSize
	return image.Rect(x, y, x+g.squareSize, y+g.squareSize)
}

func (g boardGeometry) center(sq nchess.Square) image.Point {
	r := g.squareRect(sq)
	return image.Pt(r.Min.X+g.squareSize/2, r.Min.Y+g.squareSize/2)
}

func allSquares() []nchess.Square {
	out := make([]nchess.Square, 0, 64)
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			out = append(out, nchess.NewSquare(file, rank))
		}
	}
	return out
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadowRect := image.Rect(
		boardRect.Min.X+4,
		boardRect.Min.Y+8,
		boardRect.Max.X+10,
		boardRect.Max.Y+12,
	)
	imagedraw.Draw(img, shadowRect, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst imagedraw.Image, geo boardGeometry) {
	for _, sq := range allSquares() {
		imagedraw.Draw(dst, geo.squareRect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, geo boardGeometry) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := renderPieceImage(piece, geo.squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, geo.squareRect(sq), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

// drawHighlights tints hinted squares. Unknown squares and colours are skipped.
func drawHighlights(img *image.RGBA, highlights map[string]string, geo boardGeometry) {
	for name, style := range highlights {
		sq, ok := parseSquare(name)
		if !ok {
			continue
		}
		clr, ok := parseCSSColor(style)
		if !ok {
			continue
		}
		drawSquareOverlay(img, sq, geo, clr)
	}
}

func drawLastMove(img *image.RGBA, board *nchess.Board, last *MoveHighlight, geo boardGeometry) {
	if last == nil {
		return
	}
	from, okFrom := parseSquare(last.From)
	to, okTo := parseSquare(last.To)
	if !okFrom || !okTo {
		return
	}
	switch moverColor, ok := moverColorAt(board, from, to); {
	case ok && moverColor == nchess.Black:
		drawArrow(img, from, to, geo, blackMoveHighlightArrow)
	case ok && moverColor == nchess.White:
		drawSquareOverlay(img, from, geo, whiteMoveHighlightFill)
		drawSquareOverlay(img, to, geo, whiteMoveHighlightFill)
	default:
		drawArrow(img, from, to, geo, neutralMoveHighlightArrow)
	}
}

func moverColorAt(board *nchess.Board, from, to nchess.Square) (nchess.Color, bool) {
	if board == nil {
		return nchess.NoColor, false
	}
	if piece := board.Piece(to); piece != nchess.NoPiece {
		return piece.Color(), true
	}
	if piece := board.Piece(from); piece != nchess.NoPiece {
		return piece.Color(), true
	}
	return nchess.NoColor, false
}

type hudLayout struct {
	radius          int
	titleHeight     int
	secondaryHeight int
	gapPanels       int
	gapToBoard      int
	shadowOffsetY   int
}

func (r *svgBoardRenderer) drawHUD(img *image.RGBA, opts RenderOptions, boardRect image.Rectangle, l hudLayout) {
	const (
		titlePaddingX    = 28
		progressPaddingX = 24
		turnPaddingX     = 20
		titleMinWidth    = 320
		progressMinWidth = 96
		turnMinWidth     = 140
	)
	drawer := &font.Drawer{Dst: img, Face: r.face}

	title := strings.TrimSpace(opts.HUDHeader)
	if title == "" {
		title = "Mate puzzle"
	}
	progress := strings.TrimSpace(opts.HUDProgress)
	if progress == "" {
		progress = "-"
	}
	turnText := strings.TrimSpace(opts.HUDTurn)
	if turnText == "" {
		turnText = "Turn"
	}

	turnBottom := boardRect.Min.Y - l.gapToBoard
	turnTop := turnBottom - l.secondaryHeight
	titleBottom := turnTop - l.gapPanels
	titleTop := titleBottom - l.titleHeight

	titleWidth := maxInt(titleMinWidth, drawer.MeasureString(title).Round()+titlePaddingX*2)
	progressWidth := maxInt(progressMinWidth, drawer.MeasureString(progress).Round()+progressPaddingX*2)
	turnWidth := maxInt(turnMinWidth, drawer.MeasureString(turnText).Round()+turnPaddingX*2)

	if limit := maxInt(titleMinWidth, boardRect.Dx()-progressWidth-24); titleWidth > limit {
		titleWidth = limit
	}
	if limit := boardRect.Dx() - 40; turnWidth > limit {
		turnWidth = limit
	}

	titleRect := image.Rect(boardRect.Min.X, titleTop, boardRect.Min.X+titleWidth, titleBottom)
	progressRect := image.Rect(boardRect.Max.X-progressWidth, titleTop, boardRect.Max.X, titleBottom)
	turnLeft := boardRect.Min.X + (boardRect.Dx()-turnWidth)/2
	turnRect := image.Rect(turnLeft, turnTop, turnLeft+turnWidth, turnBottom)

	shadow := image.Pt(0, l.shadowOffsetY)
	drawRoundedPanel(img, titleRect.Add(shadow), l.radius, hudShadowColor)
	drawRoundedPanel(img, progressRect.Add(shadow), l.radius, hudShadowColor)
	drawRoundedPanel(img, turnRect.Add(shadow), l.radius, hudShadowColor)

	title = truncateWithEllipsis(r.face, title, titleRect.Dx()-titlePaddingX*2)
	turnText = truncateWithEllipsis(r.face, turnText, turnRect.Dx()-turnPaddingX*2)

	drawRoundedPanel(img, titleRect, l.radius, hudPanelColor)
	drawRoundedPanel(img, progressRect, l.radius, hudPanelColor)
	drawRoundedPanel(img, turnRect, l.radius, hudTurnPanelColor)

	drawCenteredString(drawer, titleRect, title, hudTextPrimary)
	drawCenteredString(drawer, progressRect, progress, hudTextPrimary)
	drawCenteredString(drawer, turnRect, turnText, hudTurnTextColor)
}

func (r *svgBoardRenderer) drawCoordinates(dst imagedraw.Image, geo boardGeometry, margin int) {
	drawer := &font.Drawer{Dst: dst, Face: r.face, Src: image.NewUniform(coordinateTextColor)}
	ascent := r.face.Metrics().Ascent.Ceil()
	boardEndY := geo.origin.Y + 8*geo.squareSize

	for i := 0; i < 8; i++ {
		rankSq := nchess.NewSquare(nchess.FileA, nchess.Rank(i))
		rc := geo.center(rankSq)
		drawCenteredText(drawer, nchess.Rank(i).String(), geo.origin.X-margin/2, rc.Y+ascent/2)

		fileSq := nchess.NewSquare(nchess.File(i), nchess.Rank1)
		fc := geo.center(fileSq)
		drawCenteredText(drawer, nchess.File(i).String(), fc.X, boardEndY+ascent+4)
	}
}

func drawSquareOverlay(img *image.RGBA, sq nchess.Square, geo boardGeometry, clr color.Color) {
	imagedraw.Draw(img, geo.squareRect(sq), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawArrow(img *image.RGBA, from, to nchess.Square, geo boardGeometry, clr color.Color) {
	if from == to {
		return
	}
	start := geo.center(from)
	end := geo.center(to)
	squareSize := float64(geo.squareSize)

	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}

	dirX := dx / length
	dirY := dy / length
	perpX := -dirY
	perpY := dirX

	baseLength := length - squareSize*0.45
	if baseLength < squareSize*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := squareSize * 0.18
	headWidth := squareSize * 0.32

	baseX := float64(start.X) + dirX*baseLength
	baseY := float64(start.Y) + dirY*baseLength

	fillQuad(img,
		pointF{X: float64(start.X) - perpX*halfWidth, Y: float64(start.Y) - perpY*halfWidth},
		pointF{X: float64(start.X) + perpX*halfWidth, Y: float64(start.Y) + perpY*halfWidth},
		pointF{X: baseX + perpX*halfWidth, Y: baseY + perpY*halfWidth},
		pointF{X: baseX - perpX*halfWidth, Y: baseY - perpY*halfWidth},
		clr,
	)
	fillTriangleF(img,
		pointF{X: float64(end.X), Y: float64(end.Y)},
		pointF{X: baseX - perpX*headWidth/2, Y: baseY - perpY*headWidth/2},
		pointF{X: baseX + perpX*headWidth/2, Y: baseY + perpY*headWidth/2},
		clr,
	)
}

// parseCSSColor reads "rgba(r, g, b, a)", "rgb(r, g, b)" and "#rrggbb".
func parseCSSColor(s string) (color.NRGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "#") && len(s) == 7 {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return color.NRGBA{}, false
		}
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
	}
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return color.NRGBA{}, false
	}
	fn := s[:open]
	parts := strings.Split(s[open+1:len(s)-1], ",")
	if (fn == "rgb" && len(parts) != 3) || (fn == "rgba" && len(parts) != 4) || (fn != "rgb" && fn != "rgba") {
		return color.NRGBA{}, false
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 || v > 255 {
			return color.NRGBA{}, false
		}
		ch[i] = uint8(v)
	}
	alpha := uint8(255)
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return color.NRGBA{}, false
		}
		alpha = floatToUint8(a * 255)
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: alpha}, true
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}
	ellipsis := "..."
	if drawer.MeasureString(ellipsis).Round() > maxWidth {
		return ""
	}
	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	if radius < 0 {
		radius = 0
	}
	maxRadius := rect.Dx() / 2
	if r := rect.Dy() / 2; r < maxRadius {
		maxRadius = r
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	fill := image.NewUniform(clr)
	if radius == 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}

	core := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y)
	if core.Dx() > 0 {
		imagedraw.Draw(img, core, fill, image.Point{}, imagedraw.Over)
	}
	leftRect := image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius)
	if leftRect.Dx() > 0 {
		imagedraw.Draw(img, leftRect, fill, image.Point{}, imagedraw.Over)
	}
	rightRect := image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius)
	if rightRect.Dx() > 0 {
		imagedraw.Draw(img, rightRect, fill, image.Point{}, imagedraw.Over)
	}

	corners := []struct {
		center image.Point
		dx, dy int
	}{
		{image.Pt(rect.Min.X+radius, rect.Min.Y+radius), -1, -1},
		{image.Pt(rect.Max.X-radius-1, rect.Min.Y+radius), 1, -1},
		{image.Pt(rect.Min.X+radius, rect.Max.Y-radius-1), -1, 1},
		{image.Pt(rect.Max.X-radius-1, rect.Max.Y-radius-1), 1, 1},
	}
	for _, c := range corners {
		drawQuarterDisc(img, c.center, radius, c.dx, c.dy, clr)
	}
}

// drawQuarterDisc fills the quadrant of a disc pointing along (dx, dy).
func drawQuarterDisc(img *image.RGBA, center image.Point, radius, dx, dy int, clr color.Color) {
	rSquared := radius * radius
	for y := 1; y <= radius; y++ {
		for x := 1; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			blendPixel(img, center.X+x*dx, center.Y+y*dy, clr)
		}
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	// Premultiplied source over premultiplied destination.
	inv := 1 - float64(sa)/65535.0
	img.SetRGBA(x, y, color.RGBA{
		R: floatToUint8(float64(sr)/257.0 + float64(dst.R)*inv),
		G: floatToUint8(float64(sg)/257.0 + float64(dst.G)*inv),
		B: floatToUint8(float64(sb)/257.0 + float64(dst.B)*inv),
		A: floatToUint8(float64(sa)/257.0 + float64(dst.A)*inv),
	})
}

func floatToUint8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func fillQuad(img *image.RGBA, p0, p1, p2, p3 pointF, clr color.Color) {
	fillTriangleF(img, p0, p1, p2, clr)
	fillTriangleF(img, p0, p2, p3, clr)
}

func fillTriangleF(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if pointInTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func pointInTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	gamma := 1 - alpha - beta
	return alpha >= 0 && beta >= 0 && gamma >= 0
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type pointF struct {
	X float64
	Y float64
}
