// Package schema validates snapshot files against the CUE definition in
// snapshot.cue before they are imported as local changes.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/nexus/internal/ir"
)

//go:embed snapshot.cue
var snapshotSchema []byte

// Definition is the CUE definition snapshot files are checked against.
const Definition = "#Snapshot"

// Violation is one schema error with its position in the input.
type Violation struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// String renders "path: message (line:col)".
func (v Violation) String() string {
	var b strings.Builder
	if v.Path != "" {
		b.WriteString(v.Path)
		b.WriteString(": ")
	}
	b.WriteString(v.Message)
	if v.Line > 0 {
		fmt.Fprintf(&b, " (%d:%d)", v.Line, v.Column)
	}
	return b.String()
}

// ValidationError lists every violation found in one file.
type ValidationError struct {
	File       string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s: %s", e.File, e.Violations[0])
	}
	return fmt.Sprintf("%s: %d schema violations, first: %s", e.File, len(e.Violations), e.Violations[0])
}

// Validator checks snapshot JSON. A cue.Context is not safe for concurrent
// use, so calls are serialized.
type Validator struct {
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(snapshotSchema, cue.Filename("snapshot.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath(Definition))
	if !def.Exists() {
		return nil, fmt.Errorf("compile snapshot schema: %s not found", Definition)
	}
	return &Validator{ctx: ctx, def: def}, nil
}

// Validate checks data, named file in messages, against #Snapshot. Syntax
// errors and schema violations are both returned as *ValidationError.
func (v *Validator) Validate(file string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	expr, err := cuejson.Extract(file, data)
	if err != nil {
		return &ValidationError{File: file, Violations: violations(err)}
	}

	value := v.ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return &ValidationError{File: file, Violations: violations(err)}
	}

	unified := v.def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{File: file, Violations: violations(err)}
	}
	return nil
}

// Decode validates data and parses it into a Snapshot.
func (v *Validator) Decode(file string, data []byte) (ir.Snapshot, error) {
	if err := v.Validate(file, data); err != nil {
		return ir.Snapshot{}, err
	}
	s, err := ir.ParseSnapshot(data)
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("%s: %w", file, err)
	}
	return s, nil
}

// violations flattens a CUE error list.
func violations(err error) []Violation {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []Violation{{Message: err.Error()}}
	}

	out := make([]Violation, 0, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		path := e.Path()
		if len(path) > 0 && path[0] == Definition {
			path = path[1:]
		}
		viol := Violation{
			Path:    strings.Join(path, "."),
			Message: fmt.Sprintf(format, args...),
		}
		if pos := inputPosition(cueerrors.Positions(e)); pos.IsValid() {
			viol.Line = pos.Line()
			viol.Column = pos.Column()
		}
		out = append(out, viol)
	}
	return out
}

// inputPosition prefers a position in the validated file over one in the
// schema.
func inputPosition(positions []token.Pos) token.Pos {
	for _, p := range positions {
		if p.IsValid() && p.Filename() != "snapshot.cue" {
			return p
		}
	}
	return token.NoPos
}
