package query

// Validate checks q and chartType against the query invariants. The
// editor only produces valid queries, but queries also arrive from saved
// files and API requests, so every backend call validates first.
func Validate(q AnalyticsQuery, chartType ChartType, catalog *FieldCatalog) error {
	if q.ProjectID == "" {
		return invalid(ErrMissingProjectID, "project_id", "query has no project")
	}
	if !IsValidCollection(q.Collection) {
		return invalid(ErrInvalidCollection, "collection", "%q", q.Collection)
	}
	if !IsValidOperation(q.AggregationOperation) {
		return invalid(ErrInvalidOperation, "aggregation_operation", "%q", q.AggregationOperation)
	}
	if q.Collection == CollectionEvents && q.AggregationOperation != OperationCount {
		return invalid(ErrInvalidAggregationForCollection, "aggregation_operation",
			"%s is not supported on %s, only count", q.AggregationOperation, q.Collection)
	}

	if q.AggregationOperation == OperationCount {
		if q.AggregationField != "" {
			return invalid(ErrUnexpectedAggregationField, "aggregation_field",
				"%q is ignored by count", q.AggregationField)
		}
	} else {
		if q.AggregationField == "" {
			return invalid(ErrMissingAggregationField, "aggregation_field",
				"%s needs a field", q.AggregationOperation)
		}
		if !catalog.Has(q.Collection, RoleAggregation, q.AggregationField) {
			return invalid(ErrUnknownAggregationField, "aggregation_field",
				"%q is not an aggregation field of %s", q.AggregationField, q.Collection)
		}
	}

	seen := make(map[string]bool, len(q.Dimensions))
	for _, d := range q.Dimensions {
		if seen[d] {
			return invalid(ErrDuplicateDimension, "dimensions", "%q", d)
		}
		seen[d] = true
		if !catalog.Has(q.Collection, RoleDimension, d) {
			return invalid(ErrUnknownDimension, "dimensions",
				"%q is not a dimension of %s", d, q.Collection)
		}
	}

	if !IsValidChartType(chartType) {
		return invalid(ErrInvalidChartType, "type", "%q", chartType)
	}
	if chartType == ChartPie {
		if q.TimeStep != "" {
			return invalid(ErrInvalidTimeStep, "time_step", "pie charts have no time step")
		}
	} else if !IsValidTimeStep(q.TimeStep) {
		return invalid(ErrInvalidTimeStep, "time_step", "%q", q.TimeStep)
	}

	if f := q.Filters; f.CreatedAtStart != nil && f.CreatedAtEnd != nil && *f.CreatedAtStart > *f.CreatedAtEnd {
		return invalid(ErrInvalidDateRange, "filters", "created_at_start is after created_at_end")
	}

	return nil
}

// IsValidCollection reports whether c is a known collection
func IsValidCollection(c Collection) bool {
	for _, v := range Collections {
		if v == c {
			return true
		}
	}
	return false
}

// IsValidOperation reports whether op is a known aggregation operation
func IsValidOperation(op Operation) bool {
	for _, v := range Operations {
		if v == op {
			return true
		}
	}
	return false
}

// IsValidChartType reports whether t is a known chart type
func IsValidChartType(t ChartType) bool {
	for _, v := range ChartTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsValidTimeStep reports whether s is a supported, non-empty time step
func IsValidTimeStep(s TimeStep) bool {
	for _, v := range TimeSteps {
		if v == s {
			return true
		}
	}
	return false
}

// OperationsFor lists the operations offered for a collection
func OperationsFor(c Collection) []Operation {
	if c == CollectionEvents {
		return []Operation{OperationCount}
	}
	return append([]Operation{}, Operations...)
}
