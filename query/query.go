// Copyright 2024 Firekit Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package query provides the constraint types and fluent builder used to
// describe backend queries. The builder is a syntactic accumulator only;
// semantic validity of the resulting constraint sequence is the backend's
// responsibility.
package query

// Operator is one of the closed set of comparison operators accepted by
// Where constraints.
type Operator string

const (
	OpEqual              Operator = "=="
	OpNotEqual           Operator = "!="
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpArrayContains      Operator = "array-contains"
	OpArrayContainsAny   Operator = "array-contains-any"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not-in"
)

// Direction is the sort direction of an OrderBy constraint.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Kind discriminates the constraint variants.
type Kind string

const (
	KindWhere      Kind = "where"
	KindOrderBy    Kind = "orderBy"
	KindLimit      Kind = "limit"
	KindStartAt    Kind = "startAt"
	KindStartAfter Kind = "startAfter"
	KindEndAt      Kind = "endAt"
	KindEndBefore  Kind = "endBefore"
)

// Constraint is a single tagged query operation. Only the fields relevant
// to the Kind are populated. The order of constraints within a sequence
// affects generated query semantics and is always preserved.
type Constraint struct {
	Kind      Kind          `json:"kind"`
	Field     string        `json:"field,omitempty"`
	Op        Operator      `json:"op,omitempty"`
	Value     interface{}   `json:"value,omitempty"`
	Direction Direction     `json:"direction,omitempty"`
	Count     int           `json:"count,omitempty"`
	Values    []interface{} `json:"values,omitempty"`
}

// Where returns a filter constraint on the given field.
func Where(field string, op Operator, value interface{}) Constraint {
	return Constraint{Kind: KindWhere, Field: field, Op: op, Value: value}
}

// OrderBy returns a sort constraint. The direction defaults to ascending
// when omitted.
func OrderBy(field string, dir ...Direction) Constraint {
	d := Asc
	if len(dir) > 0 {
		d = dir[0]
	}
	return Constraint{Kind: KindOrderBy, Field: field, Direction: d}
}

// Limit returns a result-count bound constraint.
func Limit(n int) Constraint {
	return Constraint{Kind: KindLimit, Count: n}
}

// StartAt returns an inclusive lower cursor constraint relative to the
// preceding OrderBy fields.
func StartAt(values ...interface{}) Constraint {
	return Constraint{Kind: KindStartAt, Values: values}
}

// StartAfter returns an exclusive lower cursor constraint.
func StartAfter(values ...interface{}) Constraint {
	return Constraint{Kind: KindStartAfter, Values: values}
}

// EndAt returns an inclusive upper cursor constraint.
func EndAt(values ...interface{}) Constraint {
	return Constraint{Kind: KindEndAt, Values: values}
}

// EndBefore returns an exclusive upper cursor constraint.
func EndBefore(values ...interface{}) Constraint {
	return Constraint{Kind: KindEndBefore, Values: values}
}

// Builder accumulates constraints into an ordered sequence. The zero value
// is ready to use. Builder methods mutate the receiver and return it for
// chaining; Build snapshots the accumulated sequence.
type Builder struct {
	constraints []Constraint
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Where appends a filter constraint.
func (b *Builder) Where(field string, op Operator, value interface{}) *Builder {
	b.constraints = append(b.constraints, Where(field, op, value))
	return b
}

// OrderBy appends a sort constraint. The direction defaults to ascending.
func (b *Builder) OrderBy(field string, dir ...Direction) *Builder {
	b.constraints = append(b.constraints, OrderBy(field, dir...))
	return b
}

// Limit appends a result-count bound.
func (b *Builder) Limit(n int) *Builder {
	b.constraints = append(b.constraints, Limit(n))
	return b
}

// StartAt appends an inclusive lower cursor.
func (b *Builder) StartAt(values ...interface{}) *Builder {
	b.constraints = append(b.constraints, StartAt(values...))
	return b
}

// StartAfter appends an exclusive lower cursor.
func (b *Builder) StartAfter(values ...interface{}) *Builder {
	b.constraints = append(b.constraints, StartAfter(values...))
	return b
}

// EndAt appends an inclusive upper cursor.
func (b *Builder) EndAt(values ...interface{}) *Builder {
	b.constraints = append(b.constraints, EndAt(values...))
	return b
}

// EndBefore appends an exclusive upper cursor.
func (b *Builder) EndBefore(values ...interface{}) *Builder {
	b.constraints = append(b.constraints, EndBefore(values...))
	return b
}

// Build returns a copy of the constraint sequence accumulated so far.
// Calling Build multiple times is safe and always yields the snapshot at
// call time; later builder calls do not affect previously built sequences.
func (b *Builder) Build() []Constraint {
	out := make([]Constraint, len(b.constraints))
	copy(out, b.constraints)
	return out
}
