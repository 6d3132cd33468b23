package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/azhengyongqin/analysis-hub/sdk"
)

const maxCellWidth = 48

type printer struct {
	w      io.Writer
	format string
	color  bool
}

func newPrinter(cmd *cobra.Command, format string) (*printer, error) {
	switch format {
	case "table", "json", "yaml":
	default:
		return nil, fmt.Errorf("unsupported output format %q (table|json|yaml)", format)
	}
	out := cmd.OutOrStdout()
	color := false
	if f, ok := out.(*os.File); ok && os.Getenv("NO_COLOR") == "" {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &printer{w: out, format: format, color: color}, nil
}

// structured json/yaml 输出，返回 false 表示调用方应自行打印表格
func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		// 先经过 JSON，沿用 json tag 作为字段名
		b, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(generic)
	default:
		return false, nil
	}
}

func (p *printer) table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			row[i] = runewidth.Truncate(cell, maxCellWidth, "…")
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = padRight(c, widths[i])
		}
		fmt.Fprintln(p.w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	line(headers)
	for _, row := range rows {
		line(row)
	}
}

// padRight 按终端显示宽度补齐
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

func (p *printer) status(s sdk.Status) string {
	if !p.color {
		return string(s)
	}
	code := "33" // queued / running
	switch s {
	case sdk.StatusCompleted:
		code = "32"
	case sdk.StatusFailed:
		code = "31"
	}
	return "\x1b[" + code + "m" + string(s) + "\x1b[0m"
}

// progressLine 单行进度：状态、百分比、消息、计数与 ETA
func (p *printer) progressLine(s sdk.TaskStatus) string {
	v := sdk.ViewOf(s)
	parts := []string{fmt.Sprintf("[%s]", p.status(v.Status))}
	if v.Status == sdk.StatusRunning || v.Status == sdk.StatusCompleted {
		parts = append(parts, fmt.Sprintf("%3d%%", v.Percent))
	}
	if v.Message != "" {
		parts = append(parts, v.Message)
	}
	var extra []string
	if v.Counts != "" {
		extra = append(extra, v.Counts)
	}
	if v.Elapsed != "" {
		extra = append(extra, "elapsed "+v.Elapsed)
	}
	if v.ETA != "" {
		extra = append(extra, "ETA "+v.ETA)
	}
	if len(extra) > 0 {
		parts = append(parts, "("+strings.Join(extra, ", ")+")")
	}
	if v.Error != "" {
		parts = append(parts, "error: "+v.Error)
	}
	return strings.Join(parts, " ")
}
