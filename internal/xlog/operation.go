package xlog

// Operation is one atomic row operation against a named table.
//
// This is a sealed interface: only Insert, Update, Delete and Merge
// implement it (via the unexported operation marker).
type Operation interface {
	operation()

	// TableName returns the table the operation targets.
	TableName() string
}

// BinaryPred is a comparison between a column and a single value.
type BinaryPred string

const (
	EQ BinaryPred = "EQ"
	GT BinaryPred = "GT"
	LT BinaryPred = "LT"
	LE BinaryPred = "LE"
	GE BinaryPred = "GE"
)

// Valid reports whether p is one of the known binary predicates.
func (p BinaryPred) Valid() bool {
	switch p {
	case EQ, GT, LT, LE, GE:
		return true
	}
	return false
}

// RangePred is a membership test of a column against a list of values.
type RangePred string

const (
	In    RangePred = "IN"
	NotIn RangePred = "NOT_IN"
)

// Valid reports whether p is one of the known range predicates.
func (p RangePred) Valid() bool {
	return p == In || p == NotIn
}

// BinaryCond compares Column with Value.
type BinaryCond struct {
	Column string     `json:"column"`
	Pred   BinaryPred `json:"pred"`
	Value  string     `json:"value"`
}

// RangeCond tests Column for membership in Values.
type RangeCond struct {
	Column string    `json:"column"`
	Pred   RangePred `json:"pred"`
	Values []string  `json:"values"`
}

// Eq is shorthand for an EQ binary condition.
func Eq(column, value string) BinaryCond {
	return BinaryCond{Column: column, Pred: EQ, Value: value}
}

// Insert adds one row.
type Insert struct {
	Table  string
	Values Values
}

// Update changes NewValues in every row matching all conditions.
type Update struct {
	Table       string
	BinaryConds []BinaryCond
	RangeConds  []RangeCond
	NewValues   Values
}

// Delete removes every row matching all conditions.
type Delete struct {
	Table       string
	BinaryConds []BinaryCond
	RangeConds  []RangeCond
}

// Merge is an upsert: rows matching the conditions get WhenMatchedUpdate,
// otherwise a single row built from WhenNotMatchedInsert is inserted.
type Merge struct {
	Table                string
	BinaryConds          []BinaryCond
	RangeConds           []RangeCond
	WhenMatchedUpdate    Values
	WhenNotMatchedInsert Values
}

func (Insert) operation() {}
func (Update) operation() {}
func (Delete) operation() {}
func (Merge) operation() {}

func (o Insert) TableName() string { return o.Table }
func (o Update) TableName() string { return o.Table }
func (o Delete) TableName() string { return o.Table }
func (o Merge) TableName() string  { return o.Table }

// Record is one transaction: an ordered list of operations that is applied
// atomically, all or nothing.
type Record struct {
	Operations []Operation
}

// NewRecord returns a Record holding ops.
func NewRecord(ops ...Operation) Record {
	return Record{Operations: ops}
}

// Empty reports whether the record carries no operations.
func (r Record) Empty() bool {
	return len(r.Operations) == 0
}
