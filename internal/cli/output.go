package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/dl-alexandre/idxmirror/internal/types"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

// OutputWriter handles CLI output formatting
type OutputWriter struct {
	out      io.Writer
	format   types.OutputFormat
	quiet    bool
	traceID  string
	warnings []types.CLIWarning
}

// NewOutputWriter creates a new output writer
func NewOutputWriter(out io.Writer, format types.OutputFormat, quiet bool, traceID string) *OutputWriter {
	return &OutputWriter{
		out:      out,
		format:   format,
		quiet:    quiet,
		traceID:  traceID,
		warnings: []types.CLIWarning{},
	}
}

// AddWarning adds a warning to the output
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes a successful result
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(types.CLIOutput{
			SchemaVersion: utils.SchemaVersion,
			TraceID:       w.traceID,
			Command:       command,
			Data:          data,
			Warnings:      w.warnings,
			Errors:        []types.CLIError{},
		})
	}
	return w.writeTable(command, data)
}

// WriteError writes an error result. Table mode leaves errors to the logger.
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	if w.format != types.OutputFormatJSON {
		return nil
	}
	return w.writeJSON(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          nil,
		Warnings:      w.warnings,
		Errors:        []types.CLIError{cliErr},
	})
}

// WriteLines prints one value per line, used for plain path listings
func (w *OutputWriter) WriteLines(lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w.out, line); err != nil {
			return err
		}
	}
	return nil
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeTable(command string, data interface{}) error {
	if renderable, ok := data.(types.TableRenderable); ok {
		return w.renderTable(renderable.AsTableRenderer())
	}
	if renderer, ok := data.(types.TableRenderer); ok {
		return w.renderTable(renderer)
	}
	// Fallback to JSON for unknown types
	return w.writeJSON(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        []types.CLIError{},
	})
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	if w.quiet {
		return nil
	}
	rows := renderer.Rows()
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w.out, renderer.EmptyMessage())
		return err
	}

	table := tablewriter.NewWriter(w.out)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return nil
}
