// Package refplan is a minimal reference parser and planner: enough
// keyword and pattern recognition to turn a common subset of query shapes
// into a pkg/planpb.Plan, in the same hand-rolled parsing style as
// pkg/cypher/keyword_scan.go and executor.go. It is explicitly not a
// Cypher grammar; unrecognized clause combinations surface a Syntax error
// rather than falling back to a general parse.
package refplan

import (
	"strings"

	"github.com/nornic-labs/graphcore/pkg/cursor"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokNumber
	tokString
	tokParam  // $name or $0
	tokPunct  // single-char punctuation
	tokArrow  // -> or <-
	tokDotDot // ..
)

type token struct {
	kind tokenKind
	text string
}

// keywords recognized as reserved words rather than identifiers; matched
// case-insensitively, mirroring the asciiUpper comparisons in
// keyword_scan.go.
var keywords = map[string]bool{
	"MATCH": true, "OPTIONAL": true, "WHERE": true, "RETURN": true,
	"CREATE": true, "DELETE": true, "DETACH": true, "SET": true,
	"REMOVE": true, "MERGE": true, "ON": true, "UNWIND": true, "AS": true,
	"ORDER": true, "BY": true, "SKIP": true, "LIMIT": true, "DISTINCT": true,
	"ASC": true, "DESC": true, "AND": true, "OR": true, "XOR": true,
	"NOT": true, "IN": true, "IS": true, "NULL": true, "TRUE": true,
	"FALSE": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true,
	"END": true,
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}
func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '/' && i+1 < n && s[i+1] == '/':
			for i < n && s[i] != '\n' {
				i++
			}
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			var sb strings.Builder
			for j < n && s[j] != quote {
				if s[j] == '\\' && j+1 < n {
					sb.WriteByte(s[j+1])
					j += 2
					continue
				}
				sb.WriteByte(s[j])
				j++
			}
			if j >= n {
				return nil, cursor.New(cursor.KindSyntax, "unterminated string literal")
			}
			toks = append(toks, token{kind: tokString, text: sb.String()})
			i = j + 1
		case isDigit(c):
			j := i
			for j < n && (isDigit(s[j]) || (s[j] == '.' && !(j+1 < n && s[j+1] == '.'))) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: s[i:j]})
			i = j
		case c == '$':
			j := i + 1
			for j < n && isIdentPart(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokParam, text: s[i+1 : j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			upper := strings.ToUpper(word)
			if keywords[upper] {
				toks = append(toks, token{kind: tokKeyword, text: upper})
			} else {
				toks = append(toks, token{kind: tokIdent, text: word})
			}
			i = j
		case c == '.' && i+1 < n && s[i+1] == '.':
			toks = append(toks, token{kind: tokDotDot, text: ".."})
			i += 2
		case c == '-' && i+1 < n && s[i+1] == '>':
			toks = append(toks, token{kind: tokArrow, text: "->"})
			i += 2
		case c == '<' && i+1 < n && s[i+1] == '-':
			toks = append(toks, token{kind: tokArrow, text: "<-"})
			i += 2
		case c == '<' && i+1 < n && s[i+1] == '>':
			toks = append(toks, token{kind: tokPunct, text: "<>"})
			i += 2
		case c == '<' && i+1 < n && s[i+1] == '=':
			toks = append(toks, token{kind: tokPunct, text: "<="})
			i += 2
		case c == '>' && i+1 < n && s[i+1] == '=':
			toks = append(toks, token{kind: tokPunct, text: ">="})
			i += 2
		default:
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}
