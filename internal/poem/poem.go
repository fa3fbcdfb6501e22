package poem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ID is an opaque poem identifier. It keeps the scalar kind it was read
// with so numeric ids are written back as numbers.
type ID struct {
	value   string
	numeric bool
}

func StringID(s string) ID { return ID{value: s} }

func NumberID(n int64) ID { return ID{value: fmt.Sprint(n), numeric: true} }

func (id ID) String() string { return id.value }

func (id ID) IsZero() bool { return id.value == "" }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ID{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("poem id must be a string or number: %s", b)
	}
	*id = ID{value: n.String(), numeric: true}
	return nil
}

func (id ID) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: id.value, Tag: "!!str"}
	if id.numeric {
		node.Tag = "!!int"
		if strings.ContainsAny(id.value, ".eE") {
			node.Tag = "!!float"
		}
	}
	return node, nil
}

func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("poem id must be a scalar (line %d)", node.Line)
	}
	switch node.ShortTag() {
	case "!!null":
		*id = ID{}
	case "!!int":
		*id = yamlInt(node)
	case "!!float":
		*id = yamlFloat(node)
	default:
		*id = ID{value: node.Value}
	}
	return nil
}

// yamlInt normalises YAML integer spellings (0x10, 0o7, +5) to decimal so
// the id stays a valid JSON number. Out-of-range values stay strings.
func yamlInt(node *yaml.Node) ID {
	var n int64
	if err := node.Decode(&n); err == nil {
		return NumberID(n)
	}
	var u uint64
	if err := node.Decode(&u); err == nil {
		return ID{value: strconv.FormatUint(u, 10), numeric: true}
	}
	return ID{value: node.Value}
}

// yamlFloat is yamlInt for floats. Infinities and NaN have no JSON form and
// stay strings.
func yamlFloat(node *yaml.Node) ID {
	var f float64
	if err := node.Decode(&f); err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return ID{value: node.Value}
	}
	return ID{value: strconv.FormatFloat(f, 'g', -1, 64), numeric: true}
}

// Record is a poem as supplied by the intake. Translation, Background and
// Appreciation are only set when the source already carries them.
type Record struct {
	ID      ID     `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title" validate:"required"`
	Author  string `json:"author" yaml:"author"`
	Dynasty string `json:"dynasty" yaml:"dynasty"`
	Content string `json:"content" yaml:"content" validate:"required"`

	Translation  string `json:"translation,omitempty" yaml:"translation,omitempty"`
	Background   string `json:"background,omitempty" yaml:"background,omitempty"`
	Appreciation string `json:"appreciation,omitempty" yaml:"appreciation,omitempty"`
}

// Existing returns the annotation the record already carries. ok is false
// unless all three sections are non-blank.
func (r Record) Existing() (a Annotation, ok bool) {
	a = Annotation{
		Translation:  strings.TrimSpace(r.Translation),
		Background:   strings.TrimSpace(r.Background),
		Appreciation: strings.TrimSpace(r.Appreciation),
	}
	return a, a.Translation != "" && a.Background != "" && a.Appreciation != ""
}

// Annotation holds the three generated sections. Any of them may be empty.
type Annotation struct {
	Translation  string `json:"translation" yaml:"translation"`
	Background   string `json:"background" yaml:"background"`
	Appreciation string `json:"appreciation" yaml:"appreciation"`
}

// Result is the per-poem output of a pipeline run.
type Result struct {
	ID         ID         `json:"id" yaml:"id"`
	Title      string     `json:"title" yaml:"title"`
	Author     string     `json:"author" yaml:"author"`
	Annotation Annotation `json:"generated_content" yaml:"generated_content"`
}

func NewResult(r Record, a Annotation) Result {
	return Result{
		ID:         r.ID,
		Title:      r.Title,
		Author:     r.Author,
		Annotation: a,
	}
}
