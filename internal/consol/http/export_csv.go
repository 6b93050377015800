package http

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/odyssey-erp/asreported/internal/consol"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// writeResultCSV streams the consolidated table preceded by comment lines
// describing the run.
func writeResultCSV(w io.Writer, out consol.Outcome) error {
	res := out.Result
	if res == nil {
		return fmt.Errorf("consol csv: nil result")
	}
	streamer := newCSVStreamer(w)
	if err := writeMetadata(streamer, out); err != nil {
		return err
	}
	header := append([]string{"Source", "Row", "Item", "Raw Item"}, res.Periods...)
	if err := streamer.writeRow(header); err != nil {
		return err
	}
	for _, row := range res.Rows {
		line := []string{row.Source, strconv.Itoa(row.RowNum), row.Key.Label(), row.RawItem}
		for _, p := range res.Periods {
			line = append(line, row.Values[p].String())
		}
		if err := streamer.writeRow(line); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func writeMetadata(streamer *csvStreamer, out consol.Outcome) error {
	if err := streamer.writeComment("# Report: As-Reported Consolidation"); err != nil {
		return err
	}
	sources := "none"
	if len(out.Result.Sources) > 0 {
		sources = strings.Join(out.Result.Sources, ",")
	}
	if err := streamer.writeComment(fmt.Sprintf("# Run: %s | Sources: %s | Rules: %d | Cached: %t",
		out.RunID, sources, len(out.Result.Rules), out.Cached)); err != nil {
		return err
	}
	warnings := make([]string, 0)
	for _, entry := range out.Result.Journal {
		if entry.Warning {
			warnings = append(warnings, fmt.Sprintf("%s: %s", entry.Source, strings.TrimSpace(entry.Message)))
		}
	}
	if len(warnings) == 0 {
		return streamer.writeComment("# Warnings: none")
	}
	return streamer.writeComment("# Warnings: " + strings.Join(warnings, "; "))
}
