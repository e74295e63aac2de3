package cliui

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/marmos91/dfs/internal/bytesize"
	"github.com/marmos91/dfs/internal/wire"
)

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// PrintListing renders the rows returned by a view/view_folder call: one
// line per folder or file, with owner and (for files) size/word count.
func PrintListing(w io.Writer, rows []wire.ListRow) {
	table := newTable(w, []string{"Type", "Name", "Owner", "Words", "Size"})
	for _, row := range rows {
		if row.IsFolder {
			table.Append([]string{"folder", row.Name, row.Owner, "", ""})
			continue
		}
		words, size := "", ""
		if row.Record != nil {
			words = fmt.Sprintf("%d", row.Record.WordCount)
			size = bytesize.ByteSize(row.Record.SizeBytes).String()
		}
		table.Append([]string{"file", row.Name, row.Owner, words, size})
	}
	table.Render()
}

// PrintUsernames renders the active username set returned by LIST.
func PrintUsernames(w io.Writer, usernames []string) {
	table := newTable(w, []string{"Username"})
	for _, name := range usernames {
		table.Append([]string{name})
	}
	table.Render()
}

// PrintFileInfo renders a single file's metadata and owning storage server
// as a key/value table.
func PrintFileInfo(w io.Writer, info wire.InfoResponsePayload) {
	table := newTable(w, []string{"Field", "Value"})
	rec := info.Record
	table.Append([]string{"filename", rec.Filename})
	table.Append([]string{"owner", rec.Owner})
	table.Append([]string{"folder", rec.Folder})
	table.Append([]string{"words", fmt.Sprintf("%d", rec.WordCount)})
	table.Append([]string{"chars", fmt.Sprintf("%d", rec.CharCount)})
	table.Append([]string{"size", bytesize.ByteSize(rec.SizeBytes).String()})
	table.Append([]string{"created", formatUnix(rec.CreatedAt)})
	table.Append([]string{"modified", formatUnix(rec.ModifiedAt)})
	table.Append([]string{"last accessed", formatUnix(rec.LastAccessedAt)})
	table.Append([]string{"last accessed by", rec.LastAccessedBy})
	table.Append([]string{"storage server", fmt.Sprintf("%s:%d", info.SSPublic.IP, info.SSPublic.Port)})
	for _, entry := range rec.ACL {
		table.Append([]string{"acl", fmt.Sprintf("%s: %s", entry.Username, entry.Permission)})
	}
	table.Render()
}

// PrintCheckpoints renders the tags available for a file.
func PrintCheckpoints(w io.Writer, tags []string) {
	table := newTable(w, []string{"Tag"})
	for _, tag := range tags {
		table.Append([]string{tag})
	}
	table.Render()
}

// PrintLines renders a file or checkpoint's content, one line per row,
// numbered for reference when picking a sentence to edit.
func PrintLines(w io.Writer, lines []string) {
	table := newTable(w, []string{"#", "Content"})
	for i, line := range lines {
		table.Append([]string{fmt.Sprintf("%d", i+1), line})
	}
	table.Render()
}

// PrintAccessRequests renders pending access requests for a file.
func PrintAccessRequests(w io.Writer, requests []string) {
	table := newTable(w, []string{"Request"})
	for _, req := range requests {
		table.Append([]string{req})
	}
	table.Render()
}

func formatUnix(sec uint64) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(int64(sec), 0).Local().Format(time.RFC3339)
}
