package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/kvesta/vulnmap/config"
	"github.com/kvesta/vulnmap/internal/vulnscan"
	"github.com/kvesta/vulnmap/pkg/vulnlib"

	"github.com/olekukonko/tablewriter"
)

// Summary collects the outcome of a whole run.
type Summary struct {
	Scanned []string
	Skipped []string
	Stats   vulnscan.Stats

	Vulnerabilities int
	Incomplete      int
}

func (s *Summary) Add(r *MachineReport, stats vulnscan.Stats) {
	s.Scanned = append(s.Scanned, r.Machine)
	s.Vulnerabilities += r.Count()
	s.Incomplete += len(r.Incomplete)
	s.Stats.Add(stats)
}

func (s *Summary) Skip(machine string) {
	s.Skipped = append(s.Skipped, machine)
}

// ResolveMachineData prints the vulnerabilities of one machine grouped by item
func ResolveMachineData(w io.Writer, r *MachineReport) {
	fmt.Fprintf(w, "\n%s: detected %s vulnerabilities", config.Green(r.Machine), config.Yellow(r.Count()))
	if len(r.Incomplete) > 0 {
		fmt.Fprintf(w, " | incomplete: %s", config.Red(len(r.Incomplete)))
	}
	fmt.Fprintf(w, "\n\n")

	rows := rowsOf(r)
	if len(rows) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Item", "CPE", "CVEID", "Published", "Description"})
	table.SetRowLine(true)
	table.SetAutoMergeCellsByColumnIndex([]int{1, 2})

	for i, row := range rows {
		table.Append(append([]string{strconv.Itoa(i + 1)}, row...))
	}

	table.Render()
}

// ResolveSummary prints the totals of the run
func ResolveSummary(w io.Writer, s *Summary) {
	fmt.Fprintf(w, "\nScanned %s machines | Skipped: %s | Vulnerabilities: %s | Incomplete items: %s\n",
		config.Green(len(s.Scanned)),
		config.Yellow(len(s.Skipped)),
		config.Red(s.Vulnerabilities),
		config.Pink(s.Incomplete))

	fmt.Fprintf(w, "Identifiers generated: %d | Cache hits: %d | Fetched: %d | Not found: %d | Failed: %d\n",
		s.Stats.Generated, s.Stats.CacheHits, s.Stats.Fetched, s.Stats.NotFound, s.Stats.Failed)

	for _, m := range s.Skipped {
		fmt.Fprintf(w, "  skipped %s\n", config.Yellow(m))
	}
}

func rowsOf(r *MachineReport) [][]string {
	labels := make([]string, 0, len(r.Identifiers))
	for label := range r.Identifiers {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var rows [][]string
	for _, label := range labels {
		for _, id := range r.Identifiers[label] {
			for _, rec := range r.Vulnerabilities[id] {
				rows = append(rows, []string{label, id, rec.ID, published(rec), describe(rec)})
			}
		}
	}

	return rows
}

func published(rec vulnlib.Record) string {
	if len(rec.Published) >= 10 {
		return rec.Published[:10]
	}
	return rec.Published
}

func describe(rec vulnlib.Record) string {
	// Limit the length of description
	if len(rec.Description) > 200 {
		return rec.Description[:200] + " ..."
	}
	return rec.Description
}
