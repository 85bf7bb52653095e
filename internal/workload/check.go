package workload

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CheckType identifies a response check.
type CheckType string

const (
	// CheckStatus passes when the status code is one of Status.
	CheckStatus CheckType = "status"
	// CheckBodyContains passes when the body contains Contains.
	CheckBodyContains CheckType = "bodyContains"
	// CheckJSONPath passes when Path exists (and equals Equals, if set).
	CheckJSONPath CheckType = "jsonPath"
	// CheckJSONSchema passes when the body validates against Schema.
	CheckJSONSchema CheckType = "jsonSchema"
)

// Check is a named assertion evaluated against every response.
//
// Example YAML:
//
//	checks:
//	  - name: status is 201 or 409
//	    type: status
//	    status: [201, 409]
//	  - name: response body contains Deal
//	    type: bodyContains
//	    contains: Deal
type Check struct {
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Type     CheckType `json:"type" yaml:"type"`
	Status   []int     `json:"status,omitempty" yaml:"status,omitempty"`
	Contains string    `json:"contains,omitempty" yaml:"contains,omitempty"`
	Path     string    `json:"path,omitempty" yaml:"path,omitempty"`
	Equals   *string   `json:"equals,omitempty" yaml:"equals,omitempty"`
	Schema   string    `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// DisplayName returns Name, or a description derived from the check.
func (c Check) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	switch c.Type {
	case CheckStatus:
		codes := make([]string, len(c.Status))
		for i, s := range c.Status {
			codes[i] = strconv.Itoa(s)
		}
		return "status is " + strings.Join(codes, " or ")
	case CheckBodyContains:
		return "body contains " + c.Contains
	case CheckJSONPath:
		if c.Equals != nil {
			return c.Path + " == " + *c.Equals
		}
		return c.Path + " exists"
	case CheckJSONSchema:
		return "body matches schema"
	}
	return string(c.Type)
}

// Response is what checks are evaluated against.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type compiledCheck struct {
	name string
	eval func(r *Response) bool
}

func compileCheck(c Check) (compiledCheck, error) {
	cc := compiledCheck{name: c.DisplayName()}

	switch c.Type {
	case CheckStatus:
		if len(c.Status) == 0 {
			return cc, fmt.Errorf("check %q: status list is empty", cc.name)
		}
		codes := slices.Clone(c.Status)
		cc.eval = func(r *Response) bool { return slices.Contains(codes, r.StatusCode) }

	case CheckBodyContains:
		if c.Contains == "" {
			return cc, fmt.Errorf("check %q: contains is empty", cc.name)
		}
		needle := []byte(c.Contains)
		cc.eval = func(r *Response) bool { return bytes.Contains(r.Body, needle) }

	case CheckJSONPath:
		if c.Path == "" {
			return cc, fmt.Errorf("check %q: path is empty", cc.name)
		}
		path, equals := c.Path, c.Equals
		cc.eval = func(r *Response) bool {
			v, err := ExtractJSONPath(r.Body, path)
			if err != nil {
				return false
			}
			return equals == nil || v == *equals
		}

	case CheckJSONSchema:
		schema, err := CompileSchema(c.Schema)
		if err != nil {
			return cc, fmt.Errorf("check %q: %w", cc.name, err)
		}
		cc.eval = func(r *Response) bool { return schema.Validate(r.Body) == nil }

	default:
		return cc, fmt.Errorf("check %q: unknown type %q", cc.name, c.Type)
	}
	return cc, nil
}

// Validate reports whether the check is well formed.
func (c Check) Validate() error {
	_, err := compileCheck(c)
	return err
}
