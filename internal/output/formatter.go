// Package output renders result records into the configured sink.
package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/funnyzak/reqs/pkg/request"
	"github.com/mattn/go-runewidth"
)

// Titles longer than this are truncated in plain mode to keep one record
// per line.
const maxTitleWidth = 100

// Output formats.
const (
	FormatPlain = "plain"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// Options controls how records are rendered.
type Options struct {
	Format       string // plain | jsonl | csv
	Template     string // plain-mode format string, empty for default line
	Color        bool
	IncludeReq   bool
	IncludeRes   bool
	IncludeTitle bool
}

// Formatter serializes records into the sink. Writes are guarded by a
// single mutex so concurrently completing attempts never interleave
// within a line.
type Formatter struct {
	mu   sync.Mutex
	w    *bufio.Writer
	csv  *csv.Writer
	opts Options

	csvHeaderDone bool

	success  *color.Color
	redirect *color.Color
	client   *color.Color
	server   *color.Color
	failure  *color.Color
	title    *color.Color
}

// New creates a formatter writing to w.
func New(w io.Writer, opts Options) *Formatter {
	f := &Formatter{
		w:        bufio.NewWriter(w),
		opts:     opts,
		success:  color.New(color.FgGreen),
		redirect: color.New(color.FgCyan),
		client:   color.New(color.FgYellow),
		server:   color.New(color.FgRed),
		failure:  color.New(color.FgMagenta),
		title:    color.New(color.FgBlue),
	}
	f.csv = csv.NewWriter(f.w)
	// The color package auto-detects TTYs; the caller already decided, so
	// force the outcome either way.
	for _, c := range []*color.Color{f.success, f.redirect, f.client, f.server, f.failure, f.title} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

// Write renders one record and appends it to the sink.
func (f *Formatter) Write(res *request.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.opts.Format {
	case FormatJSONL:
		return f.writeJSONL(res)
	case FormatCSV:
		return f.writeCSV(res)
	default:
		return f.writePlain(res)
	}
}

// Flush drains buffered output to the underlying sink.
func (f *Formatter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.csv.Flush()
	if err := f.csv.Error(); err != nil {
		return err
	}
	return f.w.Flush()
}

func (f *Formatter) writeJSONL(res *request.Result) error {
	line, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if _, err := f.w.Write(line); err != nil {
		return err
	}
	return f.w.WriteByte('\n')
}

func (f *Formatter) writeCSV(res *request.Result) error {
	if !f.csvHeaderDone {
		header := []string{"url", "method", "status_code", "content_length", "response_time_ms"}
		if f.opts.IncludeTitle {
			header = append(header, "title")
		}
		if f.opts.IncludeReq {
			header = append(header, "raw_request")
		}
		if f.opts.IncludeRes {
			header = append(header, "response_body")
		}
		if err := f.csv.Write(header); err != nil {
			return err
		}
		f.csvHeaderDone = true
	}

	record := []string{
		res.URL,
		res.Method,
		strconv.Itoa(res.StatusCode),
		strconv.FormatUint(res.ContentLength, 10),
		strconv.FormatUint(res.ResponseTimeMS, 10),
	}
	if f.opts.IncludeTitle {
		record = append(record, res.Title)
	}
	if f.opts.IncludeReq {
		record = append(record, res.RawRequest)
	}
	if f.opts.IncludeRes {
		record = append(record, res.ResponseBody)
	}
	if err := f.csv.Write(record); err != nil {
		return err
	}
	f.csv.Flush()
	return f.csv.Error()
}

func (f *Formatter) writePlain(res *request.Result) error {
	var line string
	if f.opts.Template != "" {
		line = f.renderTemplate(res)
	} else {
		line = f.renderDefault(res)
	}
	if _, err := f.w.WriteString(line + "\n"); err != nil {
		return err
	}

	if res.RawRequest != "" {
		if err := f.writeSection("[Raw Request]", res.RawRequest); err != nil {
			return err
		}
	}
	if res.ResponseBody != "" {
		if err := f.writeSection("[Response Body]", res.ResponseBody); err != nil {
			return err
		}
	}
	return nil
}

// renderTemplate substitutes the documented placeholders into the
// user-supplied format string.
func (f *Formatter) renderTemplate(res *request.Result) string {
	return strings.NewReplacer(
		"%method", res.Method,
		"%url", res.URL,
		"%status", statusProse(res),
		"%code", strconv.Itoa(res.StatusCode),
		"%size", strconv.FormatUint(res.ContentLength, 10),
		"%time", strconv.FormatUint(res.ResponseTimeMS, 10),
		"%ip", res.IPAddress,
		"%title", res.Title,
	).Replace(f.opts.Template)
}

// renderDefault produces the stock line: [<code>] <url> (<time>ms), with
// the status code banded by class when color is on.
func (f *Formatter) renderDefault(res *request.Result) string {
	code := f.statusColor(res.StatusCode).Sprintf("[%d]", res.StatusCode)
	line := fmt.Sprintf("%s %s (%dms)", code, res.URL, res.ResponseTimeMS)

	if res.Failed() && res.Error != "" {
		line += " ERROR: " + res.Error
	}
	if res.Title != "" {
		line += " | Title: " + f.title.Sprint(runewidth.Truncate(res.Title, maxTitleWidth, "..."))
	}
	return line
}

func (f *Formatter) writeSection(heading, content string) error {
	if _, err := f.w.WriteString("  " + heading + "\n"); err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if _, err := f.w.WriteString("  " + line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// statusColor bands a status code: 2xx green, 3xx cyan, 4xx yellow,
// 5xx red, anything else (including synthetic 0) magenta.
func (f *Formatter) statusColor(code int) *color.Color {
	switch {
	case code >= 200 && code < 300:
		return f.success
	case code >= 300 && code < 400:
		return f.redirect
	case code >= 400 && code < 500:
		return f.client
	case code >= 500 && code < 600:
		return f.server
	default:
		return f.failure
	}
}

// statusProse renders the %status placeholder: "200 OK" for completed
// exchanges, "ERROR: <message>" for synthetic failure records.
func statusProse(res *request.Result) string {
	if res.Failed() {
		if res.Error != "" {
			return "ERROR: " + res.Error
		}
		return "ERROR"
	}
	text := http.StatusText(res.StatusCode)
	if text == "" {
		return strconv.Itoa(res.StatusCode)
	}
	return strconv.Itoa(res.StatusCode) + " " + text
}
