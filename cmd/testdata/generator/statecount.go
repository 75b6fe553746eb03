package generator

import (
	"fmt"
	"io"
	"math/rand/v2"
)

// PersonGenerator writes "person_id,state" lines. Person ids repeat, and a
// repeated id with a different state models a person who moved.
type PersonGenerator struct {
	PersonCount int
	rand        *rand.Rand
}

var states = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}

func (g *PersonGenerator) Init(r *rand.Rand) {
	g.rand = r
	if g.PersonCount <= 0 {
		g.PersonCount = 10000
	}
}

func (g *PersonGenerator) WriteLine(w io.Writer) error {
	_, err := fmt.Fprintf(w, "person_%d,%s\n", g.rand.IntN(g.PersonCount), pick(g.rand, states, 0))
	return err
}

func (g *PersonGenerator) Description() string {
	return "People and their state: person_id,state (ids repeat to model moves)"
}

func (g *PersonGenerator) DefaultCount() int64 {
	return 2e4
}
