package sierra

import "strconv"

// Sierra patron field tags used in query targets.
const (
	PatronFieldPatronType PatronField = 47
	PatronFieldBirthDate  PatronField = 51
)

// Query operators understood by the patrons/query endpoint.
const (
	OperatorEquals          QueryOperator = "equals"
	OperatorLessThanOrEqual QueryOperator = "less_than_or_equal"
)

const (
	patronRecordTypeConstant      = "patron"
	conjunctionAndConstant        = QueryConjunction("and")
	emptySecondaryOperandConstant = ""
)

// PatronField is the numeric tag of a patron record field.
type PatronField int

// QueryOperator names a comparison applied to a field.
type QueryOperator string

// QueryElement is either a QueryClause or a QueryConjunction inside PatronQuery.Queries.
type QueryElement interface {
	isQueryElement()
}

// QueryConjunction joins two clauses.
type QueryConjunction string

func (QueryConjunction) isQueryElement() {}

// QueryRecord identifies the record type a clause applies to.
type QueryRecord struct {
	Type string `json:"type"`
}

// QueryTarget selects a field of a record type.
type QueryTarget struct {
	Record  QueryRecord `json:"record"`
	FieldID PatronField `json:"id"`
}

// QueryExpression compares the target field with the operands.
type QueryExpression struct {
	Operator QueryOperator `json:"op"`
	Operands []string      `json:"operands"`
}

// QueryClause is one filter of a patron query.
type QueryClause struct {
	Target     QueryTarget     `json:"target"`
	Expression QueryExpression `json:"expr"`
}

func (QueryClause) isQueryElement() {}

// PatronQuery is the JSON document accepted by patrons/query.
type PatronQuery struct {
	Queries []QueryElement `json:"queries"`
}

// NewPatronClause builds a clause comparing a patron field with a single value.
func NewPatronClause(field PatronField, operator QueryOperator, value string) QueryClause {
	return QueryClause{
		Target: QueryTarget{
			Record:  QueryRecord{Type: patronRecordTypeConstant},
			FieldID: field,
		},
		Expression: QueryExpression{
			Operator: operator,
			Operands: []string{value, emptySecondaryOperandConstant},
		},
	}
}

// NewPatronQuery starts a query with a single clause.
func NewPatronQuery(clause QueryClause) PatronQuery {
	return PatronQuery{Queries: []QueryElement{clause}}
}

// And returns a copy of the query with the clause appended after an "and" conjunction.
func (query PatronQuery) And(clause QueryClause) PatronQuery {
	queries := make([]QueryElement, 0, len(query.Queries)+2)
	queries = append(queries, query.Queries...)
	if len(queries) > 0 {
		queries = append(queries, conjunctionAndConstant)
	}
	queries = append(queries, clause)
	return PatronQuery{Queries: queries}
}

// PatronTypeBornByQuery matches patrons of the given type born on or before the birthdate.
// The birthdate is formatted MM-DD-YYYY as the API expects.
func PatronTypeBornByQuery(patronType int, latestBirthDate string) PatronQuery {
	return NewPatronQuery(NewPatronClause(PatronFieldPatronType, OperatorEquals, strconv.Itoa(patronType))).
		And(NewPatronClause(PatronFieldBirthDate, OperatorLessThanOrEqual, latestBirthDate))
}
