package workload

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/volley/internal/load"
)

// placeholder matches {{name}} and {{name arg}}.
var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)(?:\s+([^}\s]+))?\s*\}\}`)

// Template is a string with {{...}} placeholders, parsed once and rendered
// per iteration.
//
// Built-in placeholders:
//
//	{{randInt N}}  random integer in [0, N)
//	{{uuid}}       random UUID
//	{{vu}}         VU ID
//	{{iter}}       VU-local iteration number
//	{{timestamp}}  Unix time in milliseconds
//
// Any other {{name}} is replaced from the variables given to ParseTemplate;
// unknown names are left as-is.
type Template struct {
	parts []templatePart
}

type templatePart struct {
	literal string
	render  func(it *load.Iteration) string
}

// ParseTemplate parses s, resolving variables immediately.
func ParseTemplate(s string, vars map[string]string) (*Template, error) {
	t := &Template{}
	last := 0
	for _, m := range placeholder.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			t.parts = append(t.parts, templatePart{literal: s[last:m[0]]})
		}
		last = m[1]

		name := s[m[2]:m[3]]
		var arg string
		if m[4] >= 0 {
			arg = s[m[4]:m[5]]
		}

		part, err := builtin(name, arg)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", s, err)
		}
		if part.render == nil {
			if v, ok := vars[name]; ok && arg == "" {
				part.literal = v
			} else {
				part.literal = s[m[0]:m[1]]
			}
		}
		t.parts = append(t.parts, part)
	}
	if last < len(s) {
		t.parts = append(t.parts, templatePart{literal: s[last:]})
	}
	return t, nil
}

func builtin(name, arg string) (templatePart, error) {
	switch name {
	case "randInt":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return templatePart{}, fmt.Errorf("randInt needs a positive bound, got %q", arg)
		}
		return templatePart{render: func(*load.Iteration) string { return strconv.Itoa(rand.Intn(n)) }}, nil
	case "uuid":
		return templatePart{render: func(*load.Iteration) string { return uuid.NewString() }}, nil
	case "vu":
		return templatePart{render: func(it *load.Iteration) string { return strconv.Itoa(it.VU) }}, nil
	case "iter":
		return templatePart{render: func(it *load.Iteration) string { return strconv.FormatInt(it.Number, 10) }}, nil
	case "timestamp":
		return templatePart{render: func(*load.Iteration) string { return strconv.FormatInt(time.Now().UnixMilli(), 10) }}, nil
	}
	return templatePart{}, nil
}

// Static reports whether the template renders the same string every time.
func (t *Template) Static() bool {
	for _, p := range t.parts {
		if p.render != nil {
			return false
		}
	}
	return true
}

// Render produces the string for one iteration.
func (t *Template) Render(it *load.Iteration) string {
	if len(t.parts) == 1 && t.parts[0].render == nil {
		return t.parts[0].literal
	}
	var sb strings.Builder
	for _, p := range t.parts {
		if p.render != nil {
			sb.WriteString(p.render(it))
		} else {
			sb.WriteString(p.literal)
		}
	}
	return sb.String()
}
