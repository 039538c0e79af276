package main

import (
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"monty/internal/metadata"
	"monty/pkg/utils"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderTracks shows records in queue order. A track counts as cached when
// its recorded local path exists on this machine. withIDs adds the
// recording ID column, which is what fetch takes.
func renderTracks(records []metadata.TrackRecord, withIDs bool) string {
	headers := []string{"#", "Artist", "Album", "Track", "Title", "Format", "Cached"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight}
	if withIDs {
		headers = append(headers, "Recording ID")
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		track := ""
		if rec.TrackNumber > 0 {
			track = strconv.FormatUint(uint64(rec.TrackNumber), 10)
		}
		row := []string{
			strconv.Itoa(i),
			rec.Artist,
			rec.Album,
			track,
			rec.Title,
			rec.Format.String(),
			yesNo(rec.LocalPath != "" && utils.FileExists(rec.LocalPath)),
		}
		if withIDs {
			row = append(row, rec.RecordingID)
		}
		rows[i] = row
	}
	return renderTable(headers, rows, aligns)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
