package interpreter

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Stripped is the result of replacing every literal in a query's text with
// a positional placeholder, so two queries that differ only in the literal
// values they embed (`WHERE n.age > 30` vs `WHERE n.age > 31`) share one
// cache entry keyed on Hash.
type Stripped struct {
	Text   string
	Params *gval.ParameterSet
	Hash   uint64
}

// Strip scans query the same way pkg/refplan/lexer.go tokenizes it, but
// instead of producing tokens it rewrites each number, string, and
// true/false/null literal into a `$__pN` placeholder and records the
// literal's value in a fresh ParameterSet, then hashes the rewritten text
// with FNV-1a. Grounded on cache.go's cacheKeyFNV, which hashes the raw
// query string; hashing the stripped text instead of the raw one is what
// makes literal-only variation cache-compatible.
//
// Strip is idempotent: stripping an already-stripped query (one with no
// literals left to replace) returns it unchanged with an empty ParameterSet.
func Strip(query string) Stripped {
	var out strings.Builder
	out.Grow(len(query))
	params := gval.NewParameterSet()
	n := 0
	runes := []rune(query)

	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != c {
				if runes[j] == '\\' && j+1 < len(runes) {
					j++
				}
				j++
			}
			if j < len(runes) {
				j++ // consume closing quote
			}
			lit := string(runes[i:j])
			params.SetPositional(n, gval.String(unquote(lit)))
			out.WriteString(placeholder(n))
			n++
			i = j

		case isDigitRune(c):
			j := i
			sawDot := false
			for j < len(runes) && (isDigitRune(runes[j]) || (runes[j] == '.' && !sawDot)) {
				if runes[j] == '.' {
					sawDot = true
				}
				j++
			}
			lit := string(runes[i:j])
			params.SetPositional(n, numberLiteral(lit))
			out.WriteString(placeholder(n))
			n++
			i = j

		case isIdentStartRune(c):
			j := i
			for j < len(runes) && isIdentPartRune(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToLower(word) {
			case "true":
				params.SetPositional(n, gval.Bool(true))
				out.WriteString(placeholder(n))
				n++
			case "false":
				params.SetPositional(n, gval.Bool(false))
				out.WriteString(placeholder(n))
				n++
			case "null":
				params.SetPositional(n, gval.Null)
				out.WriteString(placeholder(n))
				n++
			default:
				out.WriteString(word)
			}
			i = j

		default:
			out.WriteRune(c)
			i++
		}
	}

	text := out.String()
	return Stripped{Text: text, Params: params, Hash: fnvHash(text)}
}

func placeholder(n int) string { return "$__p" + strconv.Itoa(n) }

func unquote(lit string) string {
	if len(lit) < 2 {
		return lit
	}
	body := lit[1 : len(lit)-1]
	return strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`).Replace(body)
}

func numberLiteral(s string) gval.TypedValue {
	if !strings.Contains(s, ".") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return gval.Int(i)
		}
	}
	f, _ := strconv.ParseFloat(s, 64)
	return gval.Double(f)
}

func isDigitRune(c rune) bool      { return c >= '0' && c <= '9' }
func isIdentStartRune(c rune) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPartRune(c rune) bool  { return isIdentStartRune(c) || isDigitRune(c) }

// fnvHash mirrors cache.go's cacheKeyFNV: FNV-1a over the raw bytes, chosen
// there for being allocation-free and fast enough to run on every query
// rather than only cache misses.
func fnvHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
