package puzzle

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed problems.json
var defaultFiles embed.FS

var (
	ErrNoPuzzles      = errors.New("no puzzles available")
	ErrPuzzleNotFound = errors.New("puzzle not found")

	mateInDigitsRe = regexp.MustCompile(`mate in (\d+)`)
	squareMoveRe   = regexp.MustCompile(`^[a-h][1-8]-[a-h][1-8][qrbn]?$`)
)

var mateInWords = []struct {
	word string
	n    int
}{
	{"mate in one", 1},
	{"mate in two", 2},
	{"mate in three", 3},
	{"mate in four", 4},
	{"mate in five", 5},
}

// Catalog is an ordered, read-only puzzle set.
type Catalog struct {
	puzzles []Puzzle
	byID    map[string]int
}

func NewCatalog(puzzles []Puzzle) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(puzzles))}
	for _, p := range puzzles {
		p := p
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidPuzzle, p.ID)
		}
		c.byID[p.ID] = len(c.puzzles)
		c.puzzles = append(c.puzzles, p)
	}
	if len(c.puzzles) == 0 {
		return nil, ErrNoPuzzles
	}
	return c, nil
}

// Default returns the set embedded in the binary.
func Default() (*Catalog, error) {
	f, err := defaultFiles.Open("problems.json")
	if err != nil {
		return nil, fmt.Errorf("open embedded puzzles: %w", err)
	}
	defer f.Close()
	puzzles, err := LoadJSON(f)
	if err != nil {
		return nil, err
	}
	return NewCatalog(puzzles)
}

// LoadFile reads a puzzle set, choosing the decoder by extension.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open puzzle file: %w", err)
	}
	defer f.Close()

	var puzzles []Puzzle
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		puzzles, err = LoadYAML(f)
	default:
		puzzles, err = LoadJSON(f)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return NewCatalog(puzzles)
}

type jsonProblem struct {
	ProblemID json.RawMessage `json:"problemid"`
	ID        json.RawMessage `json:"id"`
	FEN       string          `json:"fen"`
	Type      string          `json:"type"`
	First     string          `json:"first"`
	Moves     string          `json:"moves"`
}

// LoadJSON reads the {"problems": [...]} export where moves are
// "f6-g7;g8-h8" and the mate depth is spelled out in "type".
func LoadJSON(r io.Reader) ([]Puzzle, error) {
	var doc struct {
		Problems []jsonProblem `json:"problems"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode puzzles: %w", err)
	}
	out := make([]Puzzle, 0, len(doc.Problems))
	for i, p := range doc.Problems {
		id := rawID(p.ProblemID)
		if id == "" {
			id = rawID(p.ID)
		}
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		var moves []HalfMove
		if raw := strings.TrimSpace(p.Moves); raw != "" {
			for _, tok := range strings.Split(raw, ";") {
				hm, err := ParseSquareMove(tok)
				if err != nil {
					return nil, fmt.Errorf("puzzle %s: %w", id, err)
				}
				moves = append(moves, hm)
			}
		}
		desc := strings.TrimSpace(p.First)
		if desc == "" {
			desc = "White to Move"
		}
		kind := p.Type
		if strings.TrimSpace(kind) == "" {
			kind = "Mate in One"
		}
		out = append(out, Puzzle{
			ID:          id,
			FEN:         strings.TrimSpace(p.FEN),
			MateIn:      MateInFromLabel(kind),
			Description: desc,
			Solution:    NewSolution(moves...),
		})
	}
	return out, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// MateInFromLabel maps "Mate in Two" or "mate in 7" to a depth; unknown
// labels count as mate in one.
func MateInFromLabel(label string) int {
	lower := strings.ToLower(label)
	for _, w := range mateInWords {
		if strings.Contains(lower, w.word) {
			return w.n
		}
	}
	if m := mateInDigitsRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

type yamlPuzzle struct {
	ID          string      `yaml:"id"`
	FEN         string      `yaml:"fen"`
	MateIn      int         `yaml:"mate_in"`
	Description string      `yaml:"description"`
	Solution    []yaml.Node `yaml:"solution"`
}

type yamlSquares struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Promotion string `yaml:"promotion"`
}

// LoadYAML reads a list of puzzles whose solution entries are either strings
// (notation, or "from-to" square pairs) or {from, to, promotion} maps.
func LoadYAML(r io.Reader) ([]Puzzle, error) {
	var doc []yamlPuzzle
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode puzzles: %w", err)
	}
	out := make([]Puzzle, 0, len(doc))
	for i, p := range doc {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		moves := make([]HalfMove, 0, len(p.Solution))
		for j := range p.Solution {
			hm, err := yamlHalfMove(&p.Solution[j])
			if err != nil {
				return nil, fmt.Errorf("puzzle %s ply %d: %w", id, j, err)
			}
			moves = append(moves, hm)
		}
		mateIn := p.MateIn
		if mateIn <= 0 {
			mateIn = (len(moves) + 1) / 2
		}
		desc := strings.TrimSpace(p.Description)
		if desc == "" {
			desc = "White to Move"
		}
		out = append(out, Puzzle{
			ID:          id,
			FEN:         strings.TrimSpace(p.FEN),
			MateIn:      mateIn,
			Description: desc,
			Solution:    NewSolution(moves...),
		})
	}
	return out, nil
}

func yamlHalfMove(node *yaml.Node) (HalfMove, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		text := strings.TrimSpace(node.Value)
		if squareMoveRe.MatchString(strings.ToLower(text)) {
			return ParseSquareMove(text)
		}
		if text == "" {
			return HalfMove{}, ErrInvalidHalfMove
		}
		return Notation(text), nil
	case yaml.MappingNode:
		var sq yamlSquares
		if err := node.Decode(&sq); err != nil {
			return HalfMove{}, err
		}
		return Squares(sq.From, sq.To, sq.Promotion)
	default:
		return HalfMove{}, fmt.Errorf("%w: unsupported yaml node", ErrInvalidHalfMove)
	}
}

func (c *Catalog) Len() int { return len(c.puzzles) }

func (c *Catalog) Get(id string) (Puzzle, error) {
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Puzzle{}, fmt.Errorf("%w: %s", ErrPuzzleNotFound, id)
	}
	return c.puzzles[i], nil
}

// Number is the 1-based position of the puzzle in the set, 0 if unknown.
func (c *Catalog) Number(id string) int {
	if i, ok := c.byID[strings.TrimSpace(id)]; ok {
		return i + 1
	}
	return 0
}

// Random picks a puzzle, restricted to mateIn when it is positive. When the
// filter matches nothing it falls back to the whole set and reports it.
func (c *Catalog) Random(rng *rand.Rand, mateIn int) (p Puzzle, fellBack bool) {
	pool := c.puzzles
	if mateIn > 0 {
		filtered := make([]Puzzle, 0, len(c.puzzles))
		for _, p := range c.puzzles {
			if p.MateIn == mateIn {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			fellBack = true
		} else {
			pool = filtered
		}
	}
	return pool[rng.Intn(len(pool))], fellBack
}

// MateInCounts lists the available depths with their puzzle counts.
func (c *Catalog) MateInCounts() map[int]int {
	out := make(map[int]int)
	for _, p := range c.puzzles {
		out[p.MateIn]++
	}
	return out
}

// Depths returns the available mate depths in ascending order.
func (c *Catalog) Depths() []int {
	counts := c.MateInCounts()
	out := make([]int, 0, len(counts))
	for n := range counts {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
