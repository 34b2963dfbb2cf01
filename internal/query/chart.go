package query

// PieValueField is the single series plotted by pie charts
const PieValueField = "value"

// ChartAxes derives the fields a chart plots. Time series charts put the
// time step on the x axis and one series per dimension; pie charts
// categorize by the first dimension and plot a single value.
func ChartAxes(q AnalyticsQuery, chartType ChartType) Axes {
	if chartType == ChartPie {
		x := ""
		if len(q.Dimensions) > 0 {
			x = q.Dimensions[0]
		}
		return Axes{XField: x, YFields: []string{PieValueField}}
	}

	x := string(q.TimeStep)
	if x == "" {
		x = string(TimeStepDay)
	}
	return Axes{XField: x, YFields: append([]string{}, q.Dimensions...)}
}
