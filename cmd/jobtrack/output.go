package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (app *App) writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes rows as aligned columns under header.
func table(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func ago(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func bar(ratio float64, width int) string {
	n := int(ratio*float64(width) + 0.5)
	return strings.Repeat("#", n)
}
