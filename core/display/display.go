// Package display prints servers and connection status.
package display

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/gocircum/nordconnect/core/catalog"
)

// Status prints a summary of the server a tunnel was established to.
type Status struct {
	out io.Writer
}

// NewStatus creates a Status writing to out.
func NewStatus(out io.Writer) *Status {
	return &Status{out: out}
}

// Show prints the server block.
func (s *Status) Show(server *catalog.Server) error {
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Connected to:\t%s\n", describe(server))
	fmt.Fprintf(w, "Host:\t%s (%s)\n", server.Host(), server.IPAddress)
	fmt.Fprintf(w, "Location:\t%s\n", location(server))
	fmt.Fprintf(w, "Load:\t%d%%\n", server.Load)
	fmt.Fprintf(w, "Ping:\t%s\n", FormatPing(server.Ping))
	fmt.Fprintf(w, "Categories:\t%s\n", orDash(strings.Join(server.Categories, ", ")))
	fmt.Fprintf(w, "Features:\t%s\n", orDash(strings.Join(server.Features, ", ")))
	return w.Flush()
}

// PrintServers prints servers as a table, in order.
func PrintServers(out io.Writer, servers []*catalog.Server) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tCOUNTRY\tAREA\tLOAD\tPING\tCATEGORIES")
	fmt.Fprintln(w, "------\t-------\t----\t----\t----\t----------")
	for _, s := range servers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			s.Domain, strings.ToUpper(s.Country), orDash(s.Area), s.Load, FormatPing(s.Ping), strings.Join(s.Categories, ","))
	}
	return w.Flush()
}

// PrintValues prints a titled list of values, one per line.
func PrintValues(out io.Writer, title string, values []string) error {
	if _, err := fmt.Fprintf(out, "%s:\n", title); err != nil {
		return err
	}
	for _, v := range values {
		if _, err := fmt.Fprintf(out, "  %s\n", v); err != nil {
			return err
		}
	}
	return nil
}

// FormatPing renders a ping in milliseconds, or "unreachable" for the sentinel.
func FormatPing(ms float64) string {
	if math.IsInf(ms, 1) || math.IsNaN(ms) {
		return "unreachable"
	}
	return fmt.Sprintf("%.1f ms", ms)
}

func describe(s *catalog.Server) string {
	if s.Name == "" || s.Name == s.Domain {
		return s.Domain
	}
	return fmt.Sprintf("%s (%s)", s.Domain, s.Name)
}

func location(s *catalog.Server) string {
	country := strings.ToUpper(s.Country)
	if s.Area == "" {
		return country
	}
	return fmt.Sprintf("%s, %s", s.Area, country)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
