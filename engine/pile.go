package engine

// Pile is the shared discard stack. Only its top card constrains play.
type Pile struct {
	Stack [DeckSize]Card
	Len   uint8
}

// Top returns the last pushed card, if any.
func (p *Pile) Top() (Card, bool) {
	if p.Len == 0 {
		return EmptyCard, false
	}
	return p.Stack[p.Len-1], true
}

// TopRank returns the rank of the top card, or RankNone for an empty pile.
func (p *Pile) TopRank() Rank {
	c, ok := p.Top()
	if !ok {
		return RankNone
	}
	return c.Rank()
}

// Push places a card on top of the pile.
func (p *Pile) Push(c Card) {
	p.Stack[p.Len] = c
	p.Len++
}

// Burn clears the pile and returns the number of cards removed from play.
func (p *Pile) Burn() uint8 {
	n := p.Len
	p.Len = 0
	return n
}

// Cards returns the pile from bottom to top. The slice aliases the pile.
func (p *Pile) Cards() []Card {
	return p.Stack[:p.Len]
}
