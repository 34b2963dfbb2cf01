package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"phospho/internal/api"
	"phospho/internal/dashboard"
	"phospho/internal/preset"
	"phospho/internal/query"
	"phospho/internal/results"
)

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("collection", "", "Collection to aggregate (tasks, sessions, events)")
	cmd.Flags().String("chart", "", "Chart type (line, stackedBar, pie)")
	cmd.Flags().String("time-step", "", "Time step of time series charts (day)")
	cmd.Flags().String("op", "", "Aggregation operation (count, sum, avg, min, max)")
	cmd.Flags().String("field", "", "Aggregated field, required unless counting")
	cmd.Flags().StringSlice("dimension", nil, "Breakdown dimension (repeatable)")
	cmd.Flags().StringSlice("remove-dimension", nil, "Breakdown dimension to drop (repeatable)")
	cmd.Flags().String("range", "", "Date range (last-24-hours, last-7-days, last-30-days, all-time)")
}

// actionsFromFlags turns query flags into editor actions. The order
// matters: a collection switch resets dimensions and a chart switch
// resets the time step, so both come before what they reset.
func actionsFromFlags(cmd *cobra.Command) []query.Action {
	var actions []query.Action
	add := func(t query.ActionType, flag string) {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			actions = append(actions, query.Action{Type: t, Value: v})
		}
	}

	add(query.ActionSelectCollection, "collection")
	add(query.ActionSelectChartType, "chart")
	add(query.ActionSelectTimeStep, "time-step")
	add(query.ActionSelectOperation, "op")
	add(query.ActionSelectField, "field")

	removed, _ := cmd.Flags().GetStringSlice("remove-dimension")
	for _, d := range removed {
		actions = append(actions, query.Action{Type: query.ActionRemoveDimension, Value: d})
	}
	dims, _ := cmd.Flags().GetStringSlice("dimension")
	for _, d := range dims {
		actions = append(actions, query.Action{Type: query.ActionAddDimension, Value: d})
	}

	add(query.ActionSelectDateRange, "range")
	return actions
}

// loadQuery returns the saved query named by --from, or the draft. A
// saved query must belong to projectID and pass validation.
func loadQuery(cmd *cobra.Command, projectID string, catalog *query.FieldCatalog) (query.AnalyticsQuery, query.ChartType) {
	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		q, chart, err := preset.LoadDraft(projectID)
		if err != nil {
			fail("Failed to load draft query: %v", err)
		}
		return q, chart
	}

	saved, err := preset.LoadForProject(from, projectID, catalog)
	if err != nil {
		printValidationError(err)
		os.Exit(1)
	}
	return saved.Query, saved.ChartType
}

func printQuery(q query.AnalyticsQuery, chartType query.ChartType) {
	fmt.Printf("🎯 Project: %s\n", q.ProjectID)
	fmt.Printf("📁 Collection: %s\n", q.Collection)
	if q.AggregationField != "" {
		fmt.Printf("📈 Aggregation: %s(%s)\n", q.AggregationOperation, q.AggregationField)
	} else {
		fmt.Printf("📈 Aggregation: %s\n", q.AggregationOperation)
	}
	if len(q.Dimensions) > 0 {
		fmt.Printf("📏 Dimensions: %s\n", strings.Join(q.Dimensions, ", "))
	} else {
		fmt.Println("📏 Dimensions: none")
	}
	if q.TimeStep != "" {
		fmt.Printf("📊 Chart: %s by %s\n", chartType, q.TimeStep)
	} else {
		fmt.Printf("📊 Chart: %s\n", chartType)
	}
	fmt.Printf("📅 Tile name: %s\n", query.TileName(q, time.Now()))
}

// printValidationError explains a refused query or selection
func printValidationError(err error) {
	var actionErr *query.ActionError
	if errors.As(err, &actionErr) {
		fmt.Fprintf(os.Stderr, "Error: selection %s=%s refused\n", actionErr.Action.Type, actionErr.Action.Value)
	}
	var validationErr *query.ValidationError
	if errors.As(err, &validationErr) {
		fmt.Fprintf(os.Stderr, "Error: %s (%s)\n", validationErr.Error(), validationErr.KindName())
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// Query command handlers

func queryBuildCmdHandler(cmd *cobra.Command, args []string) {
	reset, _ := cmd.Flags().GetBool("reset")
	interactive, _ := cmd.Flags().GetBool("interactive")

	settings := loadSettings()
	projectID := resolveProject(cmd, settings)
	client := newClient(settings, projectID)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Second)
	defer cancel()

	catalog := loadCatalog(ctx, client, projectID)

	q, chart := query.DefaultQuery(projectID), query.ChartLine
	if !reset {
		var err error
		q, chart, err = preset.LoadDraft(projectID)
		if err != nil {
			fail("Failed to load draft query: %v", err)
		}
	}

	state := query.NewStateFrom(q, chart)
	editor := query.NewEditor(state, catalog)

	if interactive {
		fmt.Printf("🔧 Starting interactive query builder for project %s\n", projectID)
		if err := buildInteractively(editor, os.Stdin, os.Stdout); err != nil {
			fail("Query building failed: %v", err)
		}
	} else if err := editor.ApplyAll(actionsFromFlags(cmd)); err != nil {
		printValidationError(err)
		fmt.Fprintln(os.Stderr, "Draft query left unchanged")
		os.Exit(1)
	}

	q, chart = state.Snapshot()
	if err := preset.SaveDraft(q, chart); err != nil {
		fail("Failed to save draft query: %v", err)
	}

	fmt.Println("\n🎯 Draft Query:")
	printQuery(q, chart)

	if err := query.Validate(q, chart, catalog); err != nil {
		fmt.Println()
		fmt.Printf("⚠️  Not runnable yet: %v\n", err)
		return
	}
	fmt.Println()
	fmt.Println("💡 Use 'phospho query run' to execute it or 'phospho tiles add' to pin it")
}

func queryValidateCmdHandler(cmd *cobra.Command, args []string) {
	settings := loadSettings()
	projectID := resolveProject(cmd, settings)
	client := newClient(settings, projectID)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	catalog := loadCatalog(ctx, client, projectID)
	q, chart := loadQuery(cmd, projectID, catalog)

	if err := query.Validate(q, chart, catalog); err != nil {
		printValidationError(err)
		os.Exit(1)
	}
	fmt.Println("✅ Query is valid")
}

func queryRunCmdHandler(cmd *cobra.Command, args []string) {
	showChart, _ := cmd.Flags().GetBool("chart")
	limit, _ := cmd.Flags().GetInt("limit")
	output, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")

	settings := loadSettings()
	projectID := resolveProject(cmd, settings)
	client := newClient(settings, projectID)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	catalog := loadCatalog(ctx, client, projectID)
	q, chart := loadQuery(cmd, projectID, catalog)

	fmt.Printf("🚀 Executing %s query for project %s...\n", q.Collection, projectID)

	executor := query.NewExecutor(client, catalog)
	result, err := executor.Execute(ctx, q, chart)
	if err != nil {
		printValidationError(err)
		os.Exit(1)
	}

	fmt.Printf("✅ Query completed successfully!\n")
	fmt.Printf("📊 Returned %d rows in %s\n", result.RowCount, result.ExecutionTime)
	if result.FromCache {
		fmt.Printf("⚡ Results served from cache\n")
	}
	fmt.Println()

	options := results.DefaultDisplayOptions()
	options.MaxRows = limit
	resultsManager := results.NewManager(options)

	for _, line := range resultsManager.FormatResultTable(result) {
		fmt.Println(line)
	}
	if showChart && result.RowCount > 0 {
		fmt.Println()
		fmt.Println(resultsManager.RenderChart(result))
	}

	if output != "" {
		err := resultsManager.Export(result, results.ExportOptions{
			Format:     results.ExportFormat(format),
			OutputPath: output,
			Prettify:   true,
		})
		if err != nil {
			fail("Export failed: %v", err)
		}
		fmt.Printf("\n📁 Exported to %s\n", output)
	}
}

func querySaveCmdHandler(cmd *cobra.Command, args []string) {
	name := args[0]
	description, _ := cmd.Flags().GetString("description")
	overwrite, _ := cmd.Flags().GetBool("overwrite")

	if name == preset.DraftName {
		fail("%q is reserved", name)
	}

	settings := loadSettings()
	projectID := resolveProject(cmd, settings)

	q, chart, err := preset.LoadDraft(projectID)
	if err != nil {
		fail("Failed to load draft query: %v", err)
	}

	saved, err := preset.Create(name, description, q, chart, overwrite)
	if err != nil {
		fail("%v", err)
	}

	path, _ := preset.GetQueryPath(name)
	fmt.Printf("✅ Query '%s' saved successfully\n", saved.Name)
	fmt.Printf("📁 Location: %s\n", path)
}

func queryLoadCmdHandler(cmd *cobra.Command, args []string) {
	settings := loadSettings()
	projectID := resolveProject(cmd, settings)
	client := newClient(settings, projectID)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	catalog := loadCatalog(ctx, client, projectID)
	saved, err := preset.LoadForProject(args[0], projectID, catalog)
	if err != nil {
		printValidationError(err)
		os.Exit(1)
	}

	if err := preset.SaveDraft(saved.Query, saved.ChartType); err != nil {
		fail("Failed to save draft query: %v", err)
	}

	fmt.Printf("✅ Loaded '%s' into the draft\n", saved.Name)
	printQuery(saved.Query, saved.ChartType)
}

func queryListCmdHandler(cmd *cobra.Command, args []string) {
	allProjects, _ := cmd.Flags().GetBool("all-projects")

	projectID := ""
	if !allProjects {
		projectID = resolveProject(cmd, loadSettings())
	}

	saved, err := preset.List(projectID)
	if err != nil {
		fail("Failed to list saved queries: %v", err)
	}

	if len(saved) == 0 {
		fmt.Println("📝 No saved queries found")
		fmt.Println("💡 Build one with 'phospho query build' and save it with 'phospho query save <name>'")
		return
	}

	fmt.Printf("📋 Saved Queries (%d):\n\n", len(saved))
	for _, sq := range saved {
		fmt.Printf("📄 %s\n", sq.Name)
		if sq.Description != "" {
			fmt.Printf("   %s\n", sq.Description)
		}
		fmt.Printf("   %s\n", query.TileName(sq.Query, time.Now()))
		fmt.Printf("   Project: %s | Chart: %s | Used: %d times\n", sq.Query.ProjectID, sq.ChartType, sq.UsageCount)
		if sq.LastUsed != nil {
			fmt.Printf("   Last used: %s\n", sq.LastUsed.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
}

func queryDeleteCmdHandler(cmd *cobra.Command, args []string) {
	name := args[0]

	fmt.Printf("⚠️  Are you sure you want to delete saved query '%s'? (y/N): ", name)
	var confirm string
	fmt.Scanln(&confirm)
	if strings.ToLower(strings.TrimSpace(confirm)) != "y" {
		fmt.Println("❌ Deletion cancelled")
		return
	}

	if err := preset.Delete(name); err != nil {
		fail("%v", err)
	}
	fmt.Printf("✅ Saved query '%s' deleted\n", name)
}

// Tiles command handlers

func tilesListCmdHandler(cmd *cobra.Command, args []string) {
	settings := loadSettings()
	projectID := resolveProject(cmd, settings)
	client := newClient(settings, projectID)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tiles, err := dashboard.NewService(client, query.NewFieldCatalog()).ListTiles(ctx, projectID)
	if err != nil {
		fail("Failed to list tiles: %v", err)
	}

	fmt.Printf("📋 Dashboard tiles of project %s:\n\n", projectID)
	for _, line := range results.NewManager(results.DefaultDisplayOptions()).FormatTiles(tiles) {
		fmt.Println(line)
	}
}

func tilesAddCmdHandler(cmd *cobra.Command, args []string) {
	settings := loadSettings()
	projectID := resolveProject(cmd, settings)
	client := newClient(settings, projectID)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	catalog := loadCatalog(ctx, client, projectID)
	q, chart := loadQuery(cmd, projectID, catalog)

	tile, err := dashboard.NewService(client, catalog).AddTile(ctx, q, chart)
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			fail("Backend refused the dashboard update (%d), dashboard unchanged: %v", statusErr.StatusCode, err)
		}
		printValidationError(err)
		os.Exit(1)
	}

	fmt.Printf("✅ Tile added: %s\n", tile.TileName)
}

func tilesRemoveCmdHandler(cmd *cobra.Command, args []string) {
	index, err := strconv.Atoi(args[0])
	if err != nil || index < 0 {
		fail("invalid tile index %q", args[0])
	}

	settings := loadSettings()
	projectID := resolveProject(cmd, settings)
	client := newClient(settings, projectID)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := dashboard.NewService(client, query.NewFieldCatalog()).RemoveTile(ctx, projectID, index); err != nil {
		fail("Failed to remove tile: %v", err)
	}
	fmt.Printf("✅ Tile %d removed\n", index)
}
