package domain

import "encoding/json"

const DefaultMaxDecorations = 200

// Decoration is a glyph placed on the tree. Once created it never changes.
// X and Y are percentages of the canvas and are not range checked.
type Decoration struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// PlacementInput is what a client asks to place.
type PlacementInput struct {
	Symbol string  `json:"symbol"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// UnmarshalJSON accepts the legacy "emoji" key as an alias of "symbol".
func (p *PlacementInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Symbol string  `json:"symbol"`
		Emoji  string  `json:"emoji"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Symbol = raw.Symbol
	if p.Symbol == "" {
		p.Symbol = raw.Emoji
	}
	p.X, p.Y = raw.X, raw.Y
	return nil
}
