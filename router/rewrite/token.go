package rewrite

import "sort"

type tokenKind int

const (
	tokenTable = tokenKind(iota)
	tokenPlaceholder
	tokenReplace
	tokenInsert
	tokenGeneratedKey
)

// token marks a piece of the original text to be substituted.
// SQL[start:stop] is dropped and replaced by the token's rendering;
// insertions have start == stop.
type token struct {
	start, stop int
	kind        tokenKind

	logical string // tokenTable
	param   int    // tokenPlaceholder
	text    string // tokenReplace, tokenInsert
	row     int    // tokenGeneratedKey
}

func sortTokens(toks []token) {
	sort.SliceStable(toks, func(i, j int) bool {
		return toks[i].start < toks[j].start
	})
}

// within returns tokens starting in [from, to).
func within(toks []token, from, to int) []token {
	var res []token
	for _, t := range toks {
		if t.start >= from && t.start < to {
			res = append(res, t)
		}
	}
	return res
}
