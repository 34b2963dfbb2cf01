package results

// ExportFormat represents supported export formats
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatTSV  ExportFormat = "tsv"
)

// ExportOptions represents options for data export
type ExportOptions struct {
	Format     ExportFormat `json:"format"`
	OutputPath string       `json:"output_path"`
	Prettify   bool         `json:"prettify,omitempty"` // For JSON format
	MaxRows    int          `json:"max_rows,omitempty"` // Limit exported rows
}

// TableDisplayOptions represents options for formatting console output
type TableDisplayOptions struct {
	MaxRows     int  `json:"max_rows"`      // Maximum rows to display
	MaxColWidth int  `json:"max_col_width"` // Maximum column width
	BarWidth    int  `json:"bar_width"`     // Width of the longest chart bar
	Color       bool `json:"color"`         // Style chart output
}

// DefaultDisplayOptions returns sensible defaults for table display
func DefaultDisplayOptions() TableDisplayOptions {
	return TableDisplayOptions{
		MaxRows:     50,
		MaxColWidth: 30,
		BarWidth:    40,
		Color:       true,
	}
}
