package query

import (
	"strings"
	"time"
)

// TileDateLayout is how date bounds appear in tile names
const TileDateLayout = "2006-01-02"

// TileName builds the display name of a tile from its query. The order
// of the parts is fixed: collection, aggregation, breakdown, time step,
// date range.
func TileName(q AnalyticsQuery, now time.Time) string {
	var b strings.Builder
	b.WriteString(string(q.Collection))

	if q.AggregationOperation != OperationCount {
		b.WriteString(" - ")
		b.WriteString(string(q.AggregationOperation))
		b.WriteString(" of ")
		b.WriteString(q.AggregationField)
	}

	if len(q.Dimensions) > 0 {
		b.WriteString(" by ")
		b.WriteString(strings.Join(q.Dimensions, ", "))
	}

	if q.TimeStep != "" {
		b.WriteString(" every ")
		b.WriteString(string(q.TimeStep))
	}

	if q.Filters.CreatedAtStart != nil {
		end := now
		if q.Filters.CreatedAtEnd != nil {
			end = time.Unix(*q.Filters.CreatedAtEnd, 0)
		}
		b.WriteString(" from ")
		b.WriteString(FormatTileDate(time.Unix(*q.Filters.CreatedAtStart, 0)))
		b.WriteString(" to ")
		b.WriteString(FormatTileDate(end))
	} else {
		b.WriteString(" (All time)")
	}

	return b.String()
}

// FormatTileDate renders a date bound of a tile name
func FormatTileDate(t time.Time) string {
	return t.UTC().Format(TileDateLayout)
}

// Materialize turns a finished query into a dashboard tile
func Materialize(q AnalyticsQuery, chartType ChartType, now time.Time) DashboardTile {
	return DashboardTile{
		TileName: TileName(q, now),
		Query:    q.Clone(),
		Type:     chartType,
	}
}
