// Package sparql parses queries just far enough to normalize them, compute
// stable cache fingerprints, and rewrite LIMIT/OFFSET clauses for paginated
// execution.
package sparql

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Form is the operation type of a query.
type Form string

const (
	FormSelect    Form = "SELECT"
	FormConstruct Form = "CONSTRUCT"
	FormDescribe  Form = "DESCRIBE"
	FormAsk       Form = "ASK"
)

// ParseError reports text that could not be recognized as a SPARQL query.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return e.Msg
}

// TypeNotAllowedError reports a SPARQL operation (an update, for example)
// that the proxy refuses to forward.
type TypeNotAllowedError struct {
	Keyword string
}

func (e *TypeNotAllowedError) Error() string {
	return fmt.Sprintf("operation type %s is not allowed", e.Keyword)
}

// updateForms are the operation keywords of SPARQL 1.1 Update.
var updateForms = map[string]bool{
	"INSERT": true,
	"DELETE": true,
	"LOAD":   true,
	"CLEAR":  true,
	"CREATE": true,
	"DROP":   true,
	"COPY":   true,
	"MOVE":   true,
	"ADD":    true,
	"WITH":   true,
}

// A Query is one parsed, immutable SPARQL query.
type Query struct {
	Form     Form
	preamble string
	// tokens holds the query body. For SELECT the top-level LIMIT/OFFSET
	// clauses are stripped out and tracked separately so they can be
	// rewritten.
	tokens   []token
	limit    *int64
	offset   *int64
	insertAt int
}

// Parse splits off the PREFIX/BASE preamble, tokenizes the remainder, and
// classifies the operation. It returns a *ParseError for unrecognizable
// text and a *TypeNotAllowedError for well-formed non-query operations.
func Parse(raw string) (*Query, error) {
	preamble, rest, err := splitPreamble(raw)
	if err != nil {
		return nil, err
	}
	tokens, err := lex(rest)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &ParseError{Msg: "empty query"}
	}
	first := tokens[0]
	if first.kind != tokenWord {
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected %q at start of query", first.text)}
	}
	var form Form
	switch keyword := strings.ToUpper(first.text); keyword {
	case "SELECT":
		form = FormSelect
	case "CONSTRUCT":
		form = FormConstruct
	case "DESCRIBE":
		form = FormDescribe
	case "ASK":
		form = FormAsk
	default:
		if updateForms[keyword] {
			return nil, &TypeNotAllowedError{Keyword: keyword}
		}
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected %q at start of query", first.text)}
	}
	if err := checkBalance(tokens); err != nil {
		return nil, err
	}
	if form != FormDescribe && !hasGroupPattern(tokens) {
		return nil, &ParseError{Msg: fmt.Sprintf("%s query has no group graph pattern", form)}
	}
	q := &Query{
		Form:     form,
		preamble: preamble,
		tokens:   tokens,
		insertAt: len(tokens),
	}
	if form == FormSelect {
		if err := q.extractLimitOffset(); err != nil {
			return nil, err
		}
	}
	return q, nil
}

var closers = map[string]string{"}": "{", ")": "(", "]": "["}

func checkBalance(tokens []token) error {
	var stack []string
	for _, t := range tokens {
		if t.kind != tokenPunct {
			continue
		}
		switch t.text {
		case "{", "(", "[":
			stack = append(stack, t.text)
		case "}", ")", "]":
			if len(stack) == 0 || stack[len(stack)-1] != closers[t.text] {
				return &ParseError{Msg: fmt.Sprintf("unbalanced %q", t.text)}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return &ParseError{Msg: fmt.Sprintf("unclosed %q", stack[len(stack)-1])}
	}
	return nil
}

func hasGroupPattern(tokens []token) bool {
	for _, t := range tokens {
		if t.kind == tokenPunct && t.text == "{" {
			return true
		}
	}
	return false
}

// extractLimitOffset removes the top-level LIMIT and OFFSET clauses from
// the token stream, remembering their values and where they belong, so the
// chunk executor can substitute its own bounds. Clauses inside subqueries
// are left alone.
func (q *Query) extractLimitOffset() error {
	depth := 0
	removed := make(map[int]bool)
	firstRemoved := -1
	for i := 0; i < len(q.tokens); i++ {
		t := q.tokens[i]
		if t.kind == tokenPunct {
			switch t.text {
			case "{", "(", "[":
				depth++
			case "}", ")", "]":
				depth--
			}
			continue
		}
		if depth != 0 || t.kind != tokenWord {
			continue
		}
		keyword := strings.ToUpper(t.text)
		if keyword != "LIMIT" && keyword != "OFFSET" {
			continue
		}
		if i+1 >= len(q.tokens) || q.tokens[i+1].kind != tokenNumber {
			return &ParseError{Msg: fmt.Sprintf("%s must be followed by an integer", keyword)}
		}
		n, err := strconv.ParseInt(q.tokens[i+1].text, 10, 64)
		if err != nil || n < 0 {
			return &ParseError{Msg: fmt.Sprintf("%s must be a non-negative integer", keyword)}
		}
		if keyword == "LIMIT" {
			if q.limit != nil {
				return &ParseError{Msg: "duplicate LIMIT clause"}
			}
			q.limit = &n
		} else {
			if q.offset != nil {
				return &ParseError{Msg: "duplicate OFFSET clause"}
			}
			q.offset = &n
		}
		removed[i] = true
		removed[i+1] = true
		if firstRemoved == -1 {
			firstRemoved = i
		}
		i++
	}
	if firstRemoved == -1 {
		q.insertAt = trailingValuesIndex(q.tokens)
		return nil
	}
	kept := make([]token, 0, len(q.tokens)-len(removed))
	for i, t := range q.tokens {
		if i == firstRemoved {
			q.insertAt = len(kept)
		}
		if !removed[i] {
			kept = append(kept, t)
		}
	}
	q.tokens = kept
	return nil
}

// trailingValuesIndex finds the start of a trailing top-level VALUES block,
// if the query has one; LIMIT/OFFSET belong before it. Otherwise the end of
// the stream.
func trailingValuesIndex(tokens []token) int {
	if len(tokens) == 0 || tokens[len(tokens)-1].text != "}" {
		return len(tokens)
	}
	depth := 0
	candidate := -1
	for i, t := range tokens {
		if t.kind == tokenPunct {
			switch t.text {
			case "{", "(", "[":
				depth++
			case "}", ")", "]":
				depth--
			}
			continue
		}
		if depth == 0 && t.kind == tokenWord && strings.EqualFold(t.text, "VALUES") {
			candidate = i
		}
	}
	if candidate == -1 {
		return len(tokens)
	}
	// The candidate only counts if its data block runs to the end of the
	// query.
	depth = 0
	for i := candidate; i < len(tokens); i++ {
		t := tokens[i]
		if t.kind != tokenPunct {
			continue
		}
		switch t.text {
		case "{", "(", "[":
			depth++
		case "}", ")", "]":
			depth--
			if depth == 0 && t.text == "}" {
				if i == len(tokens)-1 {
					return candidate
				}
				return len(tokens)
			}
		}
	}
	return len(tokens)
}

// Preamble returns the verbatim PREFIX/BASE declarations, with a trailing
// newline when non-empty.
func (q *Query) Preamble() string {
	return q.preamble
}

// Limit returns the query's top-level LIMIT, if it has one. Only set for
// SELECT.
func (q *Query) Limit() (int64, bool) {
	if q.limit == nil {
		return 0, false
	}
	return *q.limit, true
}

// Offset returns the query's top-level OFFSET, or zero.
func (q *Query) Offset() int64 {
	if q.offset == nil {
		return 0
	}
	return *q.offset
}

// Canonical returns the normalized query text: the verbatim preamble
// followed by the re-serialized token stream. Canonicalizing the result
// again yields the same text.
func (q *Query) Canonical() string {
	var clauses []token
	if q.limit != nil {
		clauses = append(clauses, limitClause("LIMIT", *q.limit)...)
	}
	if q.offset != nil {
		clauses = append(clauses, limitClause("OFFSET", *q.offset)...)
	}
	return q.serialize(clauses)
}

// WithLimitOffset returns the query text with the given LIMIT and OFFSET in
// place of any the query carried. Everything else, ORDER BY included, is
// preserved.
func (q *Query) WithLimitOffset(limit, offset int64) string {
	clauses := append(limitClause("LIMIT", limit), limitClause("OFFSET", offset)...)
	return q.serialize(clauses)
}

func limitClause(keyword string, n int64) []token {
	return []token{
		{kind: tokenWord, text: keyword},
		{kind: tokenNumber, text: strconv.FormatInt(n, 10)},
	}
}

func (q *Query) serialize(extra []token) string {
	var b strings.Builder
	b.WriteString(q.preamble)
	wrote := false
	emit := func(t token) {
		if wrote {
			b.WriteByte(' ')
		}
		b.WriteString(t.text)
		wrote = true
	}
	for i, t := range q.tokens {
		if i == q.insertAt {
			for _, e := range extra {
				emit(e)
			}
		}
		emit(t)
	}
	if q.insertAt == len(q.tokens) {
		for _, e := range extra {
			emit(e)
		}
	}
	return b.String()
}

// Fingerprint hashes the canonical query together with the Accept header,
// so the same query requested in two result formats never shares a cache
// entry. MD5 here is a content address, not a security boundary.
func (q *Query) Fingerprint(accept string) string {
	h := md5.New()
	io.WriteString(h, q.Canonical())
	h.Write([]byte{0})
	io.WriteString(h, accept)
	return hex.EncodeToString(h.Sum(nil))
}
