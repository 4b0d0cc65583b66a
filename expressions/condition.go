package expressions

// ComparisonOperator is one of the store's infix comparison operators.
type ComparisonOperator string

const (
	OpEquals               ComparisonOperator = "="
	OpNotEquals            ComparisonOperator = "<>"
	OpLessThan             ComparisonOperator = "<"
	OpLessThanOrEqualTo    ComparisonOperator = "<="
	OpGreaterThan          ComparisonOperator = ">"
	OpGreaterThanOrEqualTo ComparisonOperator = ">="
)

// ConditionExpression is the tagged variant over condition leaves, function
// applications and logical combinators.
type ConditionExpression interface {
	conditionExpression()
}

// Comparison is an infix comparison between a path and an operand. The
// operand is either a constant native value, an AttributePath, or an
// already-marshalled attribute value.
type Comparison struct {
	Operator ComparisonOperator
	Subject  AttributePath
	Operand  any
}

// Between constrains a path to an inclusive range.
type Between struct {
	Subject AttributePath
	Lower   any
	Upper   any
}

// Membership tests a path against a list of candidate values.
type Membership struct {
	Subject AttributePath
	Values  []any
}

// AttributeExists applies the attribute_exists function.
type AttributeExists struct {
	Subject AttributePath
}

// AttributeNotExists applies the attribute_not_exists function.
type AttributeNotExists struct {
	Subject AttributePath
}

// AttributeType applies the attribute_type function; ExpectedType is one of
// the store's type designators (S, N, B, BOOL, NULL, L, M, SS, NS, BS).
type AttributeType struct {
	Subject      AttributePath
	ExpectedType string
}

// BeginsWith applies the begins_with function.
type BeginsWith struct {
	Subject AttributePath
	Prefix  any
}

// Contains applies the contains function.
type Contains struct {
	Subject AttributePath
	Operand any
}

// Not negates a condition.
type Not struct {
	Condition ConditionExpression
}

// And combines conditions conjunctively. A single child still renders
// parenthesized to preserve precedence on round-trip.
type And struct {
	Conditions []ConditionExpression
}

// Or combines conditions disjunctively.
type Or struct {
	Conditions []ConditionExpression
}

func (Comparison) conditionExpression()         {}
func (Between) conditionExpression()            {}
func (Membership) conditionExpression()         {}
func (AttributeExists) conditionExpression()    {}
func (AttributeNotExists) conditionExpression() {}
func (AttributeType) conditionExpression()      {}
func (BeginsWith) conditionExpression()         {}
func (Contains) conditionExpression()           {}
func (Not) conditionExpression()                {}
func (And) conditionExpression()                {}
func (Or) conditionExpression()                 {}

// Constructors for condition leaves.

func Equals(subject AttributePath, operand any) Comparison {
	return Comparison{Operator: OpEquals, Subject: subject, Operand: operand}
}

func NotEquals(subject AttributePath, operand any) Comparison {
	return Comparison{Operator: OpNotEquals, Subject: subject, Operand: operand}
}

func LessThan(subject AttributePath, operand any) Comparison {
	return Comparison{Operator: OpLessThan, Subject: subject, Operand: operand}
}

func LessThanOrEqualTo(subject AttributePath, operand any) Comparison {
	return Comparison{Operator: OpLessThanOrEqualTo, Subject: subject, Operand: operand}
}

func GreaterThan(subject AttributePath, operand any) Comparison {
	return Comparison{Operator: OpGreaterThan, Subject: subject, Operand: operand}
}

func GreaterThanOrEqualTo(subject AttributePath, operand any) Comparison {
	return Comparison{Operator: OpGreaterThanOrEqualTo, Subject: subject, Operand: operand}
}

// Predicate is a partially applied condition awaiting its subject path. The
// data-mapper façade lowers permissive key-condition objects with these.
type Predicate func(subject AttributePath) ConditionExpression

func WhereEquals(operand any) Predicate {
	return func(subject AttributePath) ConditionExpression { return Equals(subject, operand) }
}

func WhereNotEquals(operand any) Predicate {
	return func(subject AttributePath) ConditionExpression { return NotEquals(subject, operand) }
}

func WhereLessThan(operand any) Predicate {
	return func(subject AttributePath) ConditionExpression { return LessThan(subject, operand) }
}

func WhereLessThanOrEqualTo(operand any) Predicate {
	return func(subject AttributePath) ConditionExpression { return LessThanOrEqualTo(subject, operand) }
}

func WhereGreaterThan(operand any) Predicate {
	return func(subject AttributePath) ConditionExpression { return GreaterThan(subject, operand) }
}

func WhereGreaterThanOrEqualTo(operand any) Predicate {
	return func(subject AttributePath) ConditionExpression { return GreaterThanOrEqualTo(subject, operand) }
}

func WhereBetween(lower, upper any) Predicate {
	return func(subject AttributePath) ConditionExpression {
		return Between{Subject: subject, Lower: lower, Upper: upper}
	}
}

func WhereBeginsWith(prefix any) Predicate {
	return func(subject AttributePath) ConditionExpression {
		return BeginsWith{Subject: subject, Prefix: prefix}
	}
}
