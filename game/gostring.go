package game

// GoString is a maximal 4-connected chain of same-colored stones together
// with its liberty set. Instances are treated as immutable: board mutation
// replaces strings rather than editing them, so ancestor GameStates can
// keep referencing old strings safely.
type GoString struct {
	Color     Color
	stones    map[Point]struct{}
	liberties map[Point]struct{}
}

func newGoString(color Color, stones []Point, liberties []Point) *GoString {
	s := &GoString{
		Color:     color,
		stones:    make(map[Point]struct{}, len(stones)),
		liberties: make(map[Point]struct{}, len(liberties)),
	}
	for _, p := range stones {
		s.stones[p] = struct{}{}
	}
	for _, p := range liberties {
		s.liberties[p] = struct{}{}
	}
	return s
}

// NumStones returns the chain size.
func (s *GoString) NumStones() int { return len(s.stones) }

// NumLiberties returns the number of distinct liberties.
func (s *GoString) NumLiberties() int { return len(s.liberties) }

// HasStone reports whether p belongs to the chain.
func (s *GoString) HasStone(p Point) bool {
	_, ok := s.stones[p]
	return ok
}

// HasLiberty reports whether p is a liberty of the chain.
func (s *GoString) HasLiberty(p Point) bool {
	_, ok := s.liberties[p]
	return ok
}

// Stones returns the chain's points. The slice is fresh; mutating it does
// not affect the string.
func (s *GoString) Stones() []Point {
	out := make([]Point, 0, len(s.stones))
	for p := range s.stones {
		out = append(out, p)
	}
	return out
}

// Liberties returns the liberty points as a fresh slice.
func (s *GoString) Liberties() []Point {
	out := make([]Point, 0, len(s.liberties))
	for p := range s.liberties {
		out = append(out, p)
	}
	return out
}

// WithoutLiberty returns a copy of the chain minus the liberty at p.
func (s *GoString) WithoutLiberty(p Point) *GoString {
	out := s.clone()
	delete(out.liberties, p)
	return out
}

// WithLiberty returns a copy of the chain with p added as a liberty.
func (s *GoString) WithLiberty(p Point) *GoString {
	out := s.clone()
	out.liberties[p] = struct{}{}
	return out
}

// MergedWith joins two same-colored chains. The merged liberty set is the
// union of both liberty sets minus the combined stones, which equals the
// empty 4-neighbors of the combined chain.
func (s *GoString) MergedWith(other *GoString) *GoString {
	out := &GoString{
		Color:     s.Color,
		stones:    make(map[Point]struct{}, len(s.stones)+len(other.stones)),
		liberties: make(map[Point]struct{}, len(s.liberties)+len(other.liberties)),
	}
	for p := range s.stones {
		out.stones[p] = struct{}{}
	}
	for p := range other.stones {
		out.stones[p] = struct{}{}
	}
	for p := range s.liberties {
		out.liberties[p] = struct{}{}
	}
	for p := range other.liberties {
		out.liberties[p] = struct{}{}
	}
	for p := range out.stones {
		delete(out.liberties, p)
	}
	return out
}

func (s *GoString) clone() *GoString {
	out := &GoString{
		Color:     s.Color,
		stones:    make(map[Point]struct{}, len(s.stones)),
		liberties: make(map[Point]struct{}, len(s.liberties)),
	}
	for p := range s.stones {
		out.stones[p] = struct{}{}
	}
	for p := range s.liberties {
		out.liberties[p] = struct{}{}
	}
	return out
}
