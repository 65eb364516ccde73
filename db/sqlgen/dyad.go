package sqlgen

import (
	"hermannm.dev/eventanalytics/db"
)

// BuildDyadQuery returns both directions of the interaction between two actors per time bucket,
// from one scan: a_to_b_* aggregates events where A acts on B, b_to_a_* those where B acts on A.
func BuildDyadQuery(
	dialect Dialect,
	table db.Table,
	request db.DyadRequest,
) (db.GeneratedQuery, error) {
	if err := validateInterval(request.Interval); err != nil {
		return db.GeneratedQuery{}, err
	}
	if !request.ActorField.IsValid() {
		return db.GeneratedQuery{}, &db.ValidationError{Field: "actorField", Message: "invalid actor field"}
	}
	if request.ActorA == "" || request.ActorB == "" {
		return db.GeneratedQuery{}, &db.ValidationError{
			Field:   "actorA/actorB",
			Message: "both actors must be set",
		}
	}
	if request.ActorA == request.ActorB {
		return db.GeneratedQuery{}, &db.ValidationError{
			Field:   "actorA/actorB",
			Message: "actors must be different",
		}
	}
	if err := request.Filter.Validate(); err != nil {
		return db.GeneratedQuery{}, err
	}

	actor1Name, actor2Name := request.ActorField.ColumnNames()
	actor1, err := db.LookupColumn(table.Scope, actor1Name)
	if err != nil {
		return db.GeneratedQuery{}, err
	}
	actor2, err := db.LookupColumn(table.Scope, actor2Name)
	if err != nil {
		return db.GeneratedQuery{}, err
	}

	builder := NewQueryBuilder(dialect)
	actorA := builder.Param("actor_a", request.ActorA)
	actorB := builder.Param("actor_b", request.ActorB)

	actor1Expr := builder.Column(actor1)
	actor2Expr := builder.Column(actor2)
	aToB := "(" + actor1Expr + " = " + actorA + " AND " + actor2Expr + " = " + actorB + ")"
	bToA := "(" + actor1Expr + " = " + actorB + " AND " + actor2Expr + " = " + actorA + ")"

	aToBValue, err := conditionalAggregateExpression(builder, table, request.Aggregation, aToB)
	if err != nil {
		return db.GeneratedQuery{}, err
	}
	bToAValue, err := conditionalAggregateExpression(builder, table, request.Aggregation, bToA)
	if err != nil {
		return db.GeneratedQuery{}, err
	}

	builder.WriteString("SELECT ")
	builder.WriteString(dialect.TruncateTime(builder.Column(table.TimeColumn), request.Interval))
	builder.WriteString(" AS bucket, ")
	builder.WriteString(dialect.CountIf(aToB))
	builder.WriteString(" AS a_to_b_count, ")
	builder.WriteString(aToBValue)
	builder.WriteString(" AS a_to_b_value, ")
	builder.WriteString(dialect.CountIf(bToA))
	builder.WriteString(" AS b_to_a_count, ")
	builder.WriteString(bToAValue)
	builder.WriteString(" AS b_to_a_value FROM ")
	builder.WriteTable(table)
	if err := writeFilter(builder, table, request.Filter); err != nil {
		return db.GeneratedQuery{}, err
	}
	builder.WriteString(" AND (")
	builder.WriteString(aToB)
	builder.WriteString(" OR ")
	builder.WriteString(bToA)
	builder.WriteString(") GROUP BY bucket ORDER BY bucket")

	return builder.Query(), nil
}
