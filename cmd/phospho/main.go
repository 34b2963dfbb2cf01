package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"phospho/internal/api"
	"phospho/internal/cache"
	"phospho/internal/config"
	"phospho/internal/controller"
	"phospho/internal/preset"
	"phospho/internal/query"
	"phospho/internal/server"
	"phospho/internal/service"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "phospho",
		Short: "Build, run and save phospho analytics queries",
		Long: `phospho is a CLI for the analytics query model of a phospho project:
pick a collection, an aggregation and breakdowns, run the pivot on the
backend and pin the result to the project dashboard.

Examples:
  phospho config set --api-key <key>
  phospho config use-project <project-id>
  phospho query build --collection sessions --op avg --field session_length
  phospho query run
  phospho tiles add`,
		Version: version,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Configure the backend URL, API key and active project",
	}

	metadataCmd = &cobra.Command{
		Use:   "metadata",
		Short: "Explore project fields",
		Long:  "Discover the aggregation fields and dimensions available in a project",
	}

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Build and run analytics queries",
		Long:  "Edit the draft query, run it as a pivot and manage saved queries",
	}

	tilesCmd = &cobra.Command{
		Use:   "tiles",
		Short: "Manage dashboard tiles",
		Long:  "List, add and remove the tiles of the project dashboard",
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage data cache",
		Long:  "Manage metadata and pivot result caching",
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("project", "", "Project ID (overrides the active project)")

	// Config subcommands
	configSetCmd := &cobra.Command{
		Use:   "set",
		Short: "Set backend credentials",
		Run:   configSetCmdHandler,
	}
	configSetCmd.Flags().String("api-url", "", "Backend base URL")
	configSetCmd.Flags().String("api-key", "", "Project API key")

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run:   configShowCmdHandler,
	}

	configUseProjectCmd := &cobra.Command{
		Use:   "use-project [project-id]",
		Short: "Set active project",
		Long:  "Set the active project. Switching project resets the draft query.",
		Args:  cobra.ExactArgs(1),
		Run:   configUseProjectCmdHandler,
	}

	configCmd.AddCommand(configSetCmd, configShowCmd, configUseProjectCmd)

	// Metadata subcommands
	metadataFieldsCmd := &cobra.Command{
		Use:   "fields",
		Short: "List selectable fields per collection",
		Run:   metadataFieldsCmdHandler,
	}
	metadataFieldsCmd.Flags().String("collection", "", "Only show one collection (tasks, sessions, events)")
	metadataCmd.AddCommand(metadataFieldsCmd)

	// Query subcommands
	queryBuildCmd := &cobra.Command{
		Use:   "build",
		Short: "Edit the draft query",
		Long: `Apply selections to the draft query. Selections are applied in a fixed
order: collection, chart type, time step, operation, field, dimensions,
date range. A selection that would make the query invalid is refused and
the draft is left unchanged.`,
		Run: queryBuildCmdHandler,
	}
	addQueryFlags(queryBuildCmd)
	queryBuildCmd.Flags().Bool("reset", false, "Start from the default query")
	queryBuildCmd.Flags().BoolP("interactive", "i", false, "Build the query step by step")

	queryValidateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the draft or a saved query",
		Run:   queryValidateCmdHandler,
	}
	queryValidateCmd.Flags().String("from", "", "Saved query name")

	queryRunCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the draft or a saved query",
		Run:   queryRunCmdHandler,
	}
	queryRunCmd.Flags().String("from", "", "Saved query name")
	queryRunCmd.Flags().Bool("chart", false, "Render a bar chart below the table")
	queryRunCmd.Flags().Int("limit", 50, "Maximum rows to display")
	queryRunCmd.Flags().String("output", "", "Export the result to this file")
	queryRunCmd.Flags().String("format", "csv", "Export format (csv, tsv, json)")

	querySaveCmd := &cobra.Command{
		Use:   "save [name]",
		Short: "Save the draft query under a name",
		Args:  cobra.ExactArgs(1),
		Run:   querySaveCmdHandler,
	}
	querySaveCmd.Flags().String("description", "", "Description")
	querySaveCmd.Flags().Bool("overwrite", false, "Replace an existing saved query")

	queryLoadCmd := &cobra.Command{
		Use:   "load [name]",
		Short: "Load a saved query into the draft",
		Args:  cobra.ExactArgs(1),
		Run:   queryLoadCmdHandler,
	}

	queryListCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved queries",
		Run:   queryListCmdHandler,
	}
	queryListCmd.Flags().Bool("all-projects", false, "Include queries of other projects")

	queryDeleteCmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a saved query",
		Args:  cobra.ExactArgs(1),
		Run:   queryDeleteCmdHandler,
	}

	queryCmd.AddCommand(queryBuildCmd, queryValidateCmd, queryRunCmd, querySaveCmd, queryLoadCmd, queryListCmd, queryDeleteCmd)

	// Tiles subcommands
	tilesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List dashboard tiles",
		Run:   tilesListCmdHandler,
	})
	tilesAddCmd := &cobra.Command{
		Use:   "add",
		Short: "Add the draft or a saved query to the dashboard",
		Run:   tilesAddCmdHandler,
	}
	tilesAddCmd.Flags().String("from", "", "Saved query name")
	tilesCmd.AddCommand(tilesAddCmd)
	tilesCmd.AddCommand(&cobra.Command{
		Use:   "remove [index]",
		Short: "Remove a dashboard tile",
		Args:  cobra.ExactArgs(1),
		Run:   tilesRemoveCmdHandler,
	})

	// Cache subcommands
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Run:   cacheStatsCmdHandler,
	})
	cacheCleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired cache entries",
		Run:   cacheCleanupCmdHandler,
	}
	cacheCleanupCmd.Flags().Bool("metadata", false, "Also drop cached metadata fields")
	cacheCmd.AddCommand(cacheCleanupCmd)

	// Serve
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query model over HTTP",
		Run:   serveCmdHandler,
	}
	serveCmd.Flags().String("addr", "", "Listen address (defaults to serve_addr)")

	rootCmd.AddCommand(configCmd, metadataCmd, queryCmd, tilesCmd, cacheCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// fail prints an error and exits
func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// loadSettings resolves the effective configuration or exits
func loadSettings() *config.AppConfig {
	settings, err := config.Resolve()
	if err != nil {
		fail("Failed to load configuration: %v", err)
	}
	return settings
}

// resolveProject returns the --project flag or the active project
func resolveProject(cmd *cobra.Command, settings *config.AppConfig) string {
	projectID, _ := cmd.Flags().GetString("project")
	if projectID == "" {
		projectID = settings.ProjectID
	}
	if projectID == "" {
		fail("No active project - run 'phospho config use-project <id>' first")
	}
	return projectID
}

// newClient creates an API client with the project cache. A cache that
// cannot be opened degrades to uncached calls.
func newClient(settings *config.AppConfig, projectID string) *api.Client {
	if settings.APIKey == "" {
		fail("No API key - run 'phospho config set --api-key <key>' or set %s", config.EnvAPIKey)
	}

	if !settings.CacheDisabled {
		cacheDir, err := config.GetCacheDir()
		if err == nil {
			cacheClient, cacheErr := cache.NewCacheClient(cacheDir, projectID)
			if cacheErr == nil {
				client, err := api.NewClientWithCache(settings.APIURL, settings.APIKey, cacheClient)
				if err != nil {
					cacheClient.Close()
					fail("Failed to create API client: %v", err)
				}
				client.SetCacheTTL(settings.CacheTTLHours)
				return client
			}
			err = cacheErr
		}
		fmt.Fprintf(os.Stderr, "Warning: Failed to open cache, using non-cached mode: %v\n", err)
	}

	client, err := api.NewClient(settings.APIURL, settings.APIKey)
	if err != nil {
		fail("Failed to create API client: %v", err)
	}
	return client
}

// loadCatalog builds the field catalog of a project, metadata fields included
func loadCatalog(ctx context.Context, client *api.Client, projectID string) *query.FieldCatalog {
	catalog := query.NewFieldCatalog()
	if err := catalog.LoadMetadata(ctx, client, projectID); err != nil {
		fail("Failed to load metadata fields: %v", err)
	}
	return catalog
}

// Command implementations
func configSetCmdHandler(cmd *cobra.Command, args []string) {
	apiURL, _ := cmd.Flags().GetString("api-url")
	apiKey, _ := cmd.Flags().GetString("api-key")

	if strings.TrimSpace(apiURL) == "" && strings.TrimSpace(apiKey) == "" {
		fail("at least one of --api-url or --api-key is required")
	}

	fmt.Println("🔧 Setting backend configuration...")

	if err := config.SetCredentials(strings.TrimSpace(apiURL), strings.TrimSpace(apiKey)); err != nil {
		fail("Failed to save configuration: %v", err)
	}

	configPath, _ := config.GetConfigPath()
	fmt.Printf("✅ Configuration saved successfully\n")
	fmt.Printf("📁 Config file: %s\n", configPath)
}

func configShowCmdHandler(cmd *cobra.Command, args []string) {
	fmt.Println("📋 Current phospho Configuration:")
	fmt.Println()

	settings := loadSettings()

	configPath, _ := config.GetConfigPath()
	fmt.Printf("📁 Config Location: %s\n", configPath)
	fmt.Printf("🌐 API URL: %s\n", settings.APIURL)

	if settings.APIKey != "" {
		fmt.Printf("🔑 API Key: %s (configured)\n", settings.MaskedAPIKey())
	} else {
		fmt.Println("❌ API Key: Not configured")
		fmt.Println("💡 Run 'phospho config set --api-key <key>' to configure")
	}

	if settings.ProjectID != "" {
		fmt.Printf("🎯 Active Project: %s\n", settings.ProjectID)
	} else {
		fmt.Println("📝 Active Project: None")
	}

	fmt.Printf("🖥️  Serve Address: %s\n", settings.ServeAddr)
	if settings.CacheDisabled {
		fmt.Println("💾 Cache: disabled")
	} else {
		fmt.Printf("💾 Cache TTL: %dh\n", settings.CacheTTLHours)
	}

	if !settings.CreatedAt.IsZero() {
		fmt.Println()
		fmt.Printf("📅 Created: %s\n", settings.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("🔄 Updated: %s\n", settings.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func configUseProjectCmdHandler(cmd *cobra.Command, args []string) {
	projectID := strings.TrimSpace(args[0])
	if projectID == "" {
		fail("project ID cannot be empty")
	}

	changed, err := config.SetActiveProject(projectID)
	if err != nil {
		fail("%v", err)
	}

	fmt.Printf("✅ Active project set to: %s\n", projectID)
	if changed {
		if err := preset.ResetDraft(projectID); err != nil {
			fail("Failed to reset draft query: %v", err)
		}
		fmt.Println("🔄 Draft query reset to defaults")
	}
}

func metadataFieldsCmdHandler(cmd *cobra.Command, args []string) {
	only, _ := cmd.Flags().GetString("collection")
	if only != "" && !query.IsValidCollection(query.Collection(only)) {
		fail("unknown collection %q", only)
	}

	settings := loadSettings()
	projectID := resolveProject(cmd, settings)
	client := newClient(settings, projectID)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	catalog := loadCatalog(ctx, client, projectID)

	fmt.Printf("📋 Fields for project %s:\n", projectID)
	for _, c := range query.Collections {
		if only != "" && string(c) != only {
			continue
		}
		fmt.Println()
		fmt.Printf("📁 %s\n", c)
		ops := make([]string, 0, len(query.Operations))
		for _, op := range query.OperationsFor(c) {
			ops = append(ops, string(op))
		}
		fmt.Printf("   Operations: %s\n", strings.Join(ops, ", "))
		printFieldList("Aggregation fields", catalog.FieldsFor(c, query.RoleAggregation))
		printFieldList("Dimensions", catalog.FieldsFor(c, query.RoleDimension))
	}

	numeric, categorical := catalog.MetadataFields()
	fmt.Println()
	fmt.Printf("🔢 Metadata: %d numeric, %d categorical\n", len(numeric), len(categorical))
}

func printFieldList(title string, fields []string) {
	if len(fields) == 0 {
		fmt.Printf("   %s: none\n", title)
		return
	}
	fmt.Printf("   %s:\n", title)
	for _, f := range fields {
		fmt.Printf("     - %s\n", f)
	}
}

func cacheStatsCmdHandler(cmd *cobra.Command, args []string) {
	fmt.Println("💾 Cache Statistics:")

	settings := loadSettings()
	projectID := resolveProject(cmd, settings)

	cacheClient := openCache(projectID)
	defer cacheClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := cacheClient.GetCacheStats(ctx)
	if err != nil {
		fail("Failed to get cache stats: %v", err)
	}

	fmt.Printf("🎯 Project: %s\n", projectID)
	fmt.Printf("📁 File: %s\n", cacheClient.Path())
	fmt.Printf("✅ Cache Hits: %d\n", stats.TotalHits)
	fmt.Printf("❌ Cache Misses: %d\n", stats.TotalMisses)
	fmt.Printf("📊 Hit Rate: %.1f%%\n", stats.HitRate)
	fmt.Printf("📝 Cache Entries: %d\n", stats.EntriesCount)
	fmt.Printf("📅 Created: %s\n", stats.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("🔄 Last Updated: %s\n", stats.UpdatedAt.Format("2006-01-02 15:04:05"))

	if stats.LastCleanup != nil {
		fmt.Printf("🧹 Last Cleanup: %s\n", stats.LastCleanup.Format("2006-01-02 15:04:05"))
	}
}

func cacheCleanupCmdHandler(cmd *cobra.Command, args []string) {
	dropMetadata, _ := cmd.Flags().GetBool("metadata")

	fmt.Println("🧹 Cleaning up cache...")

	settings := loadSettings()
	projectID := resolveProject(cmd, settings)

	cacheClient := openCache(projectID)
	defer cacheClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	deleted, err := cacheClient.CleanupExpiredEntries(ctx)
	if err != nil {
		fail("Cleanup failed: %v", err)
	}
	fmt.Printf("✅ Cleaned up %d expired cache entries\n", deleted)

	if dropMetadata {
		if err := cacheClient.InvalidateMetadata(ctx, projectID); err != nil {
			fail("Failed to drop cached metadata: %v", err)
		}
		fmt.Println("✅ Cached metadata fields dropped")
	}
}

func openCache(projectID string) *cache.CacheClient {
	cacheDir, err := config.GetCacheDir()
	if err != nil {
		fail("%v", err)
	}
	cacheClient, err := cache.NewCacheClient(cacheDir, projectID)
	if err != nil {
		fail("Failed to create cache client: %v", err)
	}
	return cacheClient
}

func serveCmdHandler(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	settings := loadSettings()
	if addr == "" {
		addr = settings.ServeAddr
	}
	if settings.APIKey == "" {
		fail("No API key - run 'phospho config set --api-key <key>' or set %s", config.EnvAPIKey)
	}

	client, err := api.NewClient(settings.APIURL, settings.APIKey)
	if err != nil {
		log.Fatalf("create api client: %v", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	analytics := service.NewAnalyticsService(client)
	srv := server.NewServer(controller.NewQueryController(analytics))

	log.Printf("starting server on %s (backend %s)", addr, client.BaseURL())
	if err := srv.Listen(ctx, addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
