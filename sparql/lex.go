package sparql

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenIRI
	tokenPName
	tokenVar
	tokenBlank
	tokenString
	tokenNumber
	tokenLangTag
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
}

// lexer walks a query one byte at a time. SPARQL delimiters are all ASCII,
// so multibyte runes only ever appear inside tokens and can be copied
// through untouched.
type lexer struct {
	input string
	pos   int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordChar(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '-'
}

// isLocalChar matches the characters we accept inside a prefixed-name local
// part. Deliberately loose: it admits every legal PN_LOCAL and the parser
// never needs to split one apart.
func isLocalChar(c byte) bool {
	return isWordChar(c) || c == '.' || c == ':' || c == '%' || c == '\\'
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if isSpace(c) {
			l.pos++
			continue
		}
		if c == '#' {
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		return
	}
}

// lex tokenizes a query (without its preamble). Comments and whitespace are
// dropped.
func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		l.skipSpaceAndComments()
		if l.pos >= len(l.input) {
			return tokens, nil
		}
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

func (l *lexer) next() (token, error) {
	c := l.input[l.pos]
	switch {
	case c == '<':
		if text, ok := l.scanIRI(); ok {
			return token{tokenIRI, text}, nil
		}
		return l.scanOperator(), nil
	case c == '"' || c == '\'':
		return l.scanString()
	case c == '?' || c == '$':
		return l.scanVar(), nil
	case c == '_' && l.pos+1 < len(l.input) && l.input[l.pos+1] == ':':
		return l.scanBlank(), nil
	case c == '@':
		return l.scanLangTag(), nil
	case isDigit(c):
		return l.scanNumber(), nil
	case c == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]):
		return l.scanNumber(), nil
	case (c == '+' || c == '-') && l.pos+1 < len(l.input) &&
		(isDigit(l.input[l.pos+1]) || (l.input[l.pos+1] == '.' && l.pos+2 < len(l.input) && isDigit(l.input[l.pos+2]))):
		return l.scanNumber(), nil
	case c == ':':
		return l.scanPNameLocal(l.pos), nil
	case isWordStart(c):
		return l.scanWord(), nil
	default:
		return l.scanOperator(), nil
	}
}

// scanIRI attempts to read an IRIREF starting at '<'. SPARQL forbids
// whitespace and a handful of other characters inside one, so on the first
// forbidden byte we back off and let the caller lex '<' as an operator.
func (l *lexer) scanIRI() (string, bool) {
	for i := l.pos + 1; i < len(l.input); i++ {
		c := l.input[i]
		if c == '>' {
			text := l.input[l.pos : i+1]
			l.pos = i + 1
			return text, true
		}
		if isSpace(c) || c == '<' || c == '"' || c == '{' || c == '}' || c == '|' || c == '^' || c == '`' || c == '\\' {
			return "", false
		}
	}
	return "", false
}

func (l *lexer) scanString() (token, error) {
	q := l.input[l.pos]
	quote := string(q)
	if strings.HasPrefix(l.input[l.pos:], strings.Repeat(quote, 3)) {
		return l.scanLongString(q)
	}
	for i := l.pos + 1; i < len(l.input); i++ {
		c := l.input[i]
		if c == '\\' {
			i++
			continue
		}
		if c == '\n' || c == '\r' {
			break
		}
		if c == q {
			text := l.input[l.pos : i+1]
			l.pos = i + 1
			return token{tokenString, text}, nil
		}
	}
	return token{}, &ParseError{Msg: fmt.Sprintf("unterminated string literal at offset %d", l.pos)}
}

func (l *lexer) scanLongString(q byte) (token, error) {
	closing := strings.Repeat(string(q), 3)
	for i := l.pos + 3; i < len(l.input); i++ {
		if l.input[i] == '\\' {
			i++
			continue
		}
		if strings.HasPrefix(l.input[i:], closing) {
			text := l.input[l.pos : i+3]
			l.pos = i + 3
			return token{tokenString, text}, nil
		}
	}
	return token{}, &ParseError{Msg: fmt.Sprintf("unterminated string literal at offset %d", l.pos)}
}

func (l *lexer) scanVar() token {
	i := l.pos + 1
	for i < len(l.input) && (isWordChar(l.input[i]) && l.input[i] != '-') {
		i++
	}
	text := l.input[l.pos:i]
	l.pos = i
	return token{tokenVar, text}
}

func (l *lexer) scanBlank() token {
	i := l.pos + 2
	for i < len(l.input) && isWordChar(l.input[i]) {
		i++
	}
	text := l.input[l.pos:i]
	l.pos = i
	return token{tokenBlank, text}
}

func (l *lexer) scanLangTag() token {
	i := l.pos + 1
	for i < len(l.input) {
		c := l.input[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c) || c == '-' {
			i++
			continue
		}
		break
	}
	text := l.input[l.pos:i]
	l.pos = i
	return token{tokenLangTag, text}
}

func (l *lexer) scanNumber() token {
	i := l.pos
	if l.input[i] == '+' || l.input[i] == '-' {
		i++
	}
	for i < len(l.input) && isDigit(l.input[i]) {
		i++
	}
	if i < len(l.input) && l.input[i] == '.' {
		// A trailing dot after digits ends the statement instead
		// ("1." is two tokens only when no digit follows -- accept
		// either; keeping the dot matches the SPARQL number grammar
		// when digits follow).
		j := i + 1
		for j < len(l.input) && isDigit(l.input[j]) {
			j++
		}
		if j > i+1 {
			i = j
		}
	}
	if i < len(l.input) && (l.input[i] == 'e' || l.input[i] == 'E') {
		j := i + 1
		if j < len(l.input) && (l.input[j] == '+' || l.input[j] == '-') {
			j++
		}
		k := j
		for k < len(l.input) && isDigit(l.input[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	text := l.input[l.pos:i]
	l.pos = i
	return token{tokenNumber, text}
}

// scanWord reads a bare word, which becomes a prefixed name if a colon
// follows it.
func (l *lexer) scanWord() token {
	i := l.pos
	for i < len(l.input) && isWordChar(l.input[i]) {
		i++
	}
	if i < len(l.input) && l.input[i] == ':' {
		return l.scanPNameLocal(l.pos)
	}
	text := l.input[l.pos:i]
	l.pos = i
	return token{tokenWord, text}
}

// scanPNameLocal reads from start (the beginning of the prefix, or the colon
// itself) through the optional local part. A trailing dot belongs to the
// statement, not the name.
func (l *lexer) scanPNameLocal(start int) token {
	i := l.pos
	for i < len(l.input) && l.input[i] != ':' {
		i++
	}
	i++ // the colon
	for i < len(l.input) && isLocalChar(l.input[i]) {
		if l.input[i] == '\\' {
			i += 2
			continue
		}
		i++
	}
	for i > 0 && l.input[i-1] == '.' {
		i--
	}
	text := l.input[start:i]
	l.pos = i
	return token{tokenPName, text}
}

var twoByteOps = []string{"^^", "&&", "||", "!=", "<=", ">="}

func (l *lexer) scanOperator() token {
	for _, op := range twoByteOps {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += 2
			return token{tokenPunct, op}
		}
	}
	text := l.input[l.pos : l.pos+1]
	l.pos++
	return token{tokenPunct, text}
}
