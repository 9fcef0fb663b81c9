package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	bold    = color.New(color.Bold)
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed)
	info    = color.New(color.FgCyan)
	warning = color.New(color.FgYellow)
)

func printSuccess(msg string, args ...any) {
	success.Fprintf(color.Output, "✓ "+msg+"\n", args...)
}

func printError(msg string, args ...any) {
	failure.Fprintf(color.Error, "Error: "+msg+"\n", args...)
}

func printInfo(msg string, args ...any) {
	info.Fprintf(color.Output, msg+"\n", args...)
}

func printWarning(msg string, args ...any) {
	warning.Fprintf(color.Output, "Warning: "+msg+"\n", args...)
}

// printTable writes rows under bold headers, tab-aligned.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(color.Output, 0, 0, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		bold.Fprint(w, h)
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, cell)
		}
		fmt.Fprintln(w)
	}
	_ = w.Flush()
}
