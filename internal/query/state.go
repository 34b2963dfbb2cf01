package query

import (
	"sort"
	"sync"
)

// Listener receives the query and chart type after every change
type Listener func(AnalyticsQuery, ChartType)

// State holds the query being edited and the chart type it is drawn with.
// One State is shared by every consumer of a session; changes are pushed
// to subscribers synchronously, in the order they were made.
type State struct {
	mu        sync.RWMutex
	query     AnalyticsQuery
	chartType ChartType

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextID     int
}

// NewState creates a state holding the default query for a project
func NewState(projectID string) *State {
	return &State{
		query:     DefaultQuery(projectID),
		chartType: ChartLine,
		listeners: make(map[int]Listener),
	}
}

// NewStateFrom creates a state from an existing query, e.g. a saved one
func NewStateFrom(q AnalyticsQuery, chartType ChartType) *State {
	s := NewState(q.ProjectID)
	s.query = q.Clone()
	s.chartType = chartType
	return s
}

// Query returns a copy of the current query
func (s *State) Query() AnalyticsQuery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query.Clone()
}

// ChartType returns the current chart type
func (s *State) ChartType() ChartType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chartType
}

// Snapshot returns the query and chart type read under one lock
func (s *State) Snapshot() (AnalyticsQuery, ChartType) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query.Clone(), s.chartType
}

// Update shallow-merges p into the current query. It does not validate.
func (s *State) Update(p Patch) {
	s.apply(nil, p)
}

// SetChartType changes the chart type without touching the query
func (s *State) SetChartType(chartType ChartType) {
	s.apply(&chartType, Patch{})
}

// UpdateChart changes the chart type and merges p in one step, so
// subscribers never see the chart and the query disagree
func (s *State) UpdateChart(chartType ChartType, p Patch) {
	s.apply(&chartType, p)
}

func (s *State) apply(chartType *ChartType, p Patch) {
	s.mu.Lock()
	if chartType != nil {
		s.chartType = *chartType
	}
	q := &s.query
	if p.ProjectID != nil {
		q.ProjectID = *p.ProjectID
	}
	if p.Collection != nil {
		q.Collection = *p.Collection
	}
	if p.AggregationOperation != nil {
		q.AggregationOperation = *p.AggregationOperation
	}
	if p.AggregationField != nil {
		q.AggregationField = *p.AggregationField
	}
	if p.Dimensions != nil {
		q.Dimensions = append(make([]string, 0, len(*p.Dimensions)), (*p.Dimensions)...)
	}
	if p.TimeStep != nil {
		q.TimeStep = *p.TimeStep
	}
	if p.Filters != nil {
		q.Filters = p.Filters.clone()
	}
	snapshot, chart := s.query.Clone(), s.chartType
	s.mu.Unlock()

	s.notify(snapshot, chart)
}

// Reset returns to the default query for projectID. Called when the
// active project or organization changes.
func (s *State) Reset(projectID string) {
	s.mu.Lock()
	s.query = DefaultQuery(projectID)
	s.chartType = ChartLine
	snapshot := s.query.Clone()
	s.mu.Unlock()

	s.notify(snapshot, ChartLine)
}

// Subscribe registers l and returns a function that removes it
func (s *State) Subscribe(l Listener) func() {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *State) notify(q AnalyticsQuery, chart ChartType) {
	s.listenerMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenerMu.Unlock()

	for _, l := range listeners {
		l(q.Clone(), chart)
	}
}
