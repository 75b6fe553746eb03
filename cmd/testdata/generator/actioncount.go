package generator

import (
	"io"
	"math/rand/v2"
	"strconv"
)

// ActionCountGenerator writes user action logs: "{user_id} did {action}".
type ActionCountGenerator struct {
	UserCount int
	rand      *rand.Rand
	linePool  [][]byte
}

var actions = []string{
	"login",
	"logout",
	"viewed product",
	"added to cart",
	"removed from cart",
	"purchased",
	"reviewed product",
	"updated profile",
	"changed password",
	"subscribed to newsletter",
}

const linePoolSize = 10000

func (g *ActionCountGenerator) Init(r *rand.Rand) {
	g.rand = r
	if g.UserCount <= 0 {
		g.UserCount = 100
	}

	g.linePool = make([][]byte, linePoolSize)
	for i := range g.linePool {
		user := "user_" + strconv.Itoa(r.IntN(g.UserCount))
		g.linePool[i] = []byte(user + " did " + pick(r, actions, 0) + "\n")
	}
}

func (g *ActionCountGenerator) WriteLine(w io.Writer) error {
	_, err := w.Write(g.linePool[g.rand.IntN(len(g.linePool))])
	return err
}

func (g *ActionCountGenerator) Description() string {
	return "User action logs: {user_id} did {action}"
}

func (g *ActionCountGenerator) DefaultCount() int64 {
	return 1e4
}
