package drivetest

import (
	"fmt"
	"slices"
	"strconv"

	drive "google.golang.org/api/drive/v3"
)

// clause is one comparison of a Drive search query.
type clause struct {
	field string
	op    string
	value string
}

type token struct {
	text    string
	literal bool
}

// parseQuery understands the subset of the Drive query language used by the
// drive package: "field = 'v'", "field != 'v'", "trashed = false" and
// "'id' in parents", joined with "and".
func parseQuery(q string) ([]clause, error) {
	toks, err := tokenize(q)
	if err != nil {
		return nil, err
	}

	var clauses []clause

	for len(toks) > 0 {
		if len(toks) < 3 {
			return nil, fmt.Errorf("incomplete clause in %q", q)
		}

		a, op, b := toks[0], toks[1], toks[2]
		toks = toks[3:]

		switch {
		case a.literal && op.text == "in" && !b.literal && b.text == "parents":
			clauses = append(clauses, clause{field: "parents", op: "in", value: a.text})
		case !a.literal && (op.text == "=" || op.text == "!="):
			clauses = append(clauses, clause{field: a.text, op: op.text, value: b.text})
		default:
			return nil, fmt.Errorf("unsupported clause %q %q %q", a.text, op.text, b.text)
		}

		if len(toks) > 0 {
			if toks[0].literal || toks[0].text != "and" {
				return nil, fmt.Errorf("expected 'and' in %q", q)
			}

			toks = toks[1:]
		}
	}

	for _, c := range clauses {
		switch c.field {
		case "name", "mimeType", "trashed", "parents":
		default:
			return nil, fmt.Errorf("unsupported field %q", c.field)
		}
	}

	return clauses, nil
}

func tokenize(q string) ([]token, error) {
	var toks []token

	for i := 0; i < len(q); {
		switch c := q[i]; {
		case c == ' ':
			i++
		case c == '\'':
			var (
				text   []byte
				closed bool
			)

			i++

			for i < len(q) {
				if q[i] == '\\' && i+1 < len(q) {
					text = append(text, q[i+1])
					i += 2

					continue
				}

				if q[i] == '\'' {
					closed = true
					i++

					break
				}

				text = append(text, q[i])
				i++
			}

			if !closed {
				return nil, fmt.Errorf("unterminated literal in %q", q)
			}

			toks = append(toks, token{text: string(text), literal: true})
		default:
			j := i
			for j < len(q) && q[j] != ' ' && q[j] != '\'' {
				j++
			}

			toks = append(toks, token{text: q[i:j]})
			i = j
		}
	}

	return toks, nil
}

func matches(file *drive.File, clauses []clause) bool {
	for _, c := range clauses {
		var ok bool

		switch c.field {
		case "parents":
			ok = slices.Contains(file.Parents, c.value)
		case "name":
			ok = file.Name == c.value
		case "mimeType":
			ok = file.MimeType == c.value
		case "trashed":
			ok = strconv.FormatBool(file.Trashed) == c.value
		}

		if c.op == "!=" {
			ok = !ok
		}

		if !ok {
			return false
		}
	}

	return true
}
