package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"phospho/internal/query"
)

// prompter reads one answer per line. An empty answer keeps the current
// selection.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// choose offers numbered options and accepts a number or the value itself
func (p *prompter) choose(title string, options []string, current string) (string, error) {
	fmt.Fprintf(p.out, "\n%s\n", title)
	for i, opt := range options {
		marker := " "
		if opt == current {
			marker = "*"
		}
		fmt.Fprintf(p.out, " %s %d. %s\n", marker, i+1, opt)
	}

	for {
		answer, err := p.ask("Choice (enter to keep): ")
		if err != nil || answer == "" {
			return "", err
		}
		if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		for _, opt := range options {
			if opt == answer {
				return opt, nil
			}
		}
		fmt.Fprintf(p.out, "❌ %q is not one of the options\n", answer)
	}
}

// buildInteractively walks the editor selections on in: collection, chart
// type, operation, field, dimensions and date range. Refused selections
// are reported and asked again.
func buildInteractively(editor *query.Editor, in io.Reader, out io.Writer) error {
	p := &prompter{in: bufio.NewReader(in), out: out}
	state := editor.State()
	catalog := editor.Catalog()

	fmt.Fprintln(p.out, "🔧 Interactive Query Builder")
	fmt.Fprintf(p.out, "🎯 Project: %s\n", state.Query().ProjectID)

	// apply retries a step until the selection is accepted or skipped
	apply := func(title string, options func() []string, current func() string, actionType query.ActionType) error {
		for {
			opts := options()
			if len(opts) == 0 {
				return nil
			}
			value, err := p.choose(title, opts, current())
			if err != nil || value == "" {
				return err
			}
			if err := editor.Apply(query.Action{Type: actionType, Value: value}); err != nil {
				fmt.Fprintf(p.out, "❌ %v\n", err)
				continue
			}
			return nil
		}
	}

	// Step 1: Collection
	err := apply("📁 Collection",
		func() []string { return toStrings(query.Collections) },
		func() string { return string(state.Query().Collection) },
		query.ActionSelectCollection)
	if err != nil {
		return err
	}

	// Step 2: Chart type
	err = apply("📊 Chart type",
		func() []string { return toStrings(query.ChartTypes) },
		func() string { return string(state.ChartType()) },
		query.ActionSelectChartType)
	if err != nil {
		return err
	}

	// Step 3: Operation
	err = apply("📈 Aggregation operation",
		func() []string { return toStrings(query.OperationsFor(state.Query().Collection)) },
		func() string { return string(state.Query().AggregationOperation) },
		query.ActionSelectOperation)
	if err != nil {
		return err
	}

	// Step 4: Field, only when not counting
	if state.Query().AggregationOperation != query.OperationCount {
		err = apply("🔢 Aggregated field",
			func() []string { return catalog.FieldsFor(state.Query().Collection, query.RoleAggregation) },
			func() string { return state.Query().AggregationField },
			query.ActionSelectField)
		if err != nil {
			return err
		}
	}

	// Step 5: Dimensions
	fmt.Fprintf(p.out, "\n📏 Dimensions: %s\n", strings.Join(catalog.FieldsFor(state.Query().Collection, query.RoleDimension), ", "))
	for {
		answer, err := p.ask("Dimensions, comma-separated (enter to keep): ")
		if err != nil || answer == "" {
			if err != nil {
				return err
			}
			break
		}
		actions := []query.Action{}
		for _, d := range state.Query().Dimensions {
			actions = append(actions, query.Action{Type: query.ActionRemoveDimension, Value: d})
		}
		for _, d := range strings.Split(answer, ",") {
			if d = strings.TrimSpace(d); d != "" {
				actions = append(actions, query.Action{Type: query.ActionAddDimension, Value: d})
			}
		}

		before, chart := state.Snapshot()
		if err := editor.ApplyAll(actions); err != nil {
			// Put back what the partial batch removed
			state.UpdateChart(chart, query.Patch{Dimensions: &before.Dimensions})
			fmt.Fprintf(p.out, "❌ %v\n", err)
			continue
		}
		break
	}

	// Step 6: Date range
	return apply("📅 Date range",
		func() []string { return toStrings(query.DateRangePresets) },
		func() string { return "" },
		query.ActionSelectDateRange)
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
