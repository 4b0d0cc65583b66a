package expressions

// MathematicalExpression is a two-operand addition or subtraction usable as a
// SET value. Each operand is either an attribute path or a constant.
type MathematicalExpression struct {
	Left     any
	Operator string // "+" or "-"
	Right    any
}

// ProjectionExpression is an ordered sequence of attribute paths.
type ProjectionExpression []AttributePath

type updateClause struct {
	Subject AttributePath
	Value   any
}

// UpdateExpression accumulates the four disjoint per-attribute update
// operations. Clauses render grouped by verb in SET, REMOVE, ADD, DELETE
// order, comma-joined within each verb.
type UpdateExpression struct {
	toSet    []updateClause
	toRemove []AttributePath
	toAdd    []updateClause
	toDelete []updateClause
}

// NewUpdateExpression creates an empty update expression.
func NewUpdateExpression() *UpdateExpression {
	return &UpdateExpression{}
}

// Set assigns a value (constant, path, or mathematical expression) to a path.
func (u *UpdateExpression) Set(subject AttributePath, value any) *UpdateExpression {
	u.toSet = append(u.toSet, updateClause{Subject: subject, Value: value})
	return u
}

// Remove deletes the attribute at a path.
func (u *UpdateExpression) Remove(subject AttributePath) *UpdateExpression {
	u.toRemove = append(u.toRemove, subject)
	return u
}

// Add applies the store's ADD semantics (numeric increment or set union).
func (u *UpdateExpression) Add(subject AttributePath, value any) *UpdateExpression {
	u.toAdd = append(u.toAdd, updateClause{Subject: subject, Value: value})
	return u
}

// Delete applies the store's DELETE semantics (set difference).
func (u *UpdateExpression) Delete(subject AttributePath, value any) *UpdateExpression {
	u.toDelete = append(u.toDelete, updateClause{Subject: subject, Value: value})
	return u
}

// Empty reports whether no clauses have been added.
func (u *UpdateExpression) Empty() bool {
	return len(u.toSet) == 0 && len(u.toRemove) == 0 && len(u.toAdd) == 0 && len(u.toDelete) == 0
}
