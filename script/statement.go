package script

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/partial"
)

type opcode uint8

const (
	opSet opcode = iota
	opAppend
	opInsert
	opEnd
	opBegin
	opFinish
)

type sourceWord uint8

const (
	srcLiteral sourceWord = iota
	srcStage
	srcRestage
	srcDefault
)

var sourceWords = map[string]sourceWord{
	"stage":   srcStage,
	"restage": srcRestage,
	"default": srcDefault,
}

type segment struct {
	name  string
	index int
	root  bool
}

// Statement is one parsed script line.
type Statement struct {
	Text    string
	key     string // YAML map key for insert
	literal string // YAML value for literal sources
	path    []segment
	Line    int
	op      opcode
	src     sourceWord
}

func (s Statement) String() string {
	return s.Text
}

// Parse reads one statement per line. Blank lines and lines starting with
// '#' are skipped. Line numbers start at 1.
func Parse(src string) ([]Statement, error) {
	var out []Statement
	sc := bufio.NewScanner(strings.NewReader(src))
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		st, err := parseLine(text)
		if err != nil {
			return nil, errors.New(errors.PhaseScript, errors.KindInvalidInput).
				Value(text).
				Detail("line %d: %s", n, err.Error()).
				Build()
		}
		st.Line = n
		out = append(out, st)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseScript, errors.KindInvalidInput, err, "read script")
	}
	return out, nil
}

type parseError string

func (e parseError) Error() string { return string(e) }

func parseLine(text string) (Statement, error) {
	st := Statement{Text: text}
	head, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	switch head {
	case "end":
		if rest != "" {
			return st, parseError("end takes no arguments")
		}
		st.op = opEnd

	case "deferred":
		switch rest {
		case "begin":
			st.op = opBegin
		case "finish":
			st.op = opFinish
		default:
			return st, parseError("expected 'deferred begin' or 'deferred finish'")
		}

	case "set":
		st.op = opSet
		pathText, tail, _ := strings.Cut(rest, " ")
		if pathText == "" {
			return st, parseError("set needs a path")
		}
		path, err := parsePath(pathText)
		if err != nil {
			return st, err
		}
		st.path = path
		if st.src, st.literal, err = parseSource(tail); err != nil {
			return st, err
		}

	case "append":
		st.op = opAppend
		var err error
		if st.src, st.literal, err = parseSource(rest); err != nil {
			return st, err
		}

	case "insert":
		st.op = opInsert
		if key, value, ok := strings.Cut(rest, "="); ok {
			st.key = strings.TrimSpace(key)
			st.src, st.literal = srcLiteral, strings.TrimSpace(value)
			if st.literal == "" {
				return st, parseError("missing value after '='")
			}
		} else {
			i := strings.LastIndexByte(rest, ' ')
			if i < 0 {
				return st, parseError("insert needs a key and a source")
			}
			w, known := sourceWords[rest[i+1:]]
			if !known {
				return st, parseError("unknown source " + strconv.Quote(rest[i+1:]))
			}
			st.key, st.src = strings.TrimSpace(rest[:i]), w
		}
		if st.key == "" {
			return st, parseError("insert needs a key")
		}

	default:
		return st, parseError("unknown operation " + strconv.Quote(head))
	}
	return st, nil
}

// parseSource reads "= <yaml>" or a source keyword.
func parseSource(tail string) (sourceWord, string, error) {
	tail = strings.TrimSpace(tail)
	if lit, ok := strings.CutPrefix(tail, "="); ok {
		lit = strings.TrimSpace(lit)
		if lit == "" {
			return 0, "", parseError("missing value after '='")
		}
		return srcLiteral, lit, nil
	}
	if w, ok := sourceWords[tail]; ok {
		return w, "", nil
	}
	if tail == "" {
		return 0, "", parseError("missing source")
	}
	return 0, "", parseError("unknown source " + strconv.Quote(tail))
}

// parsePath reads "." for the cursor, or dot-separated segments with an
// optional leading "$" for the root. Numeric segments are indices.
func parsePath(text string) ([]segment, error) {
	if text == "." {
		return nil, nil
	}
	parts := strings.Split(text, ".")
	out := make([]segment, 0, len(parts))
	for i, part := range parts {
		switch {
		case part == "$":
			if i != 0 {
				return nil, parseError("'$' must start the path")
			}
			out = append(out, segment{root: true})
		case part == "":
			return nil, parseError("empty path segment in " + strconv.Quote(text))
		default:
			if n, err := strconv.Atoi(part); err == nil {
				out = append(out, segment{index: n})
			} else {
				out = append(out, segment{name: part, index: -1})
			}
		}
	}
	return out, nil
}

func (s Statement) partialPath() partial.Path {
	out := make(partial.Path, len(s.path))
	for i, seg := range s.path {
		switch {
		case seg.root:
			out[i] = partial.Root()
		case seg.name != "":
			out[i] = partial.Named(seg.name)
		default:
			out[i] = partial.Field(seg.index)
		}
	}
	return out
}
