// Package simplify produces compact TopoJSON from GeoJSON via the external
// mapshaper tool.
package simplify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	precincts "github.com/tingold/mn-precincts"
)

// Simplifier turns a GeoJSON file into a TopoJSON file next to it.
type Simplifier interface {
	// Simplify writes the topology for input and returns its path. pct is
	// the share of vertices removed, already clamped by the caller.
	Simplify(ctx context.Context, input string, pct int) (string, error)
}

// DefaultTool is the executable name looked up on PATH.
const DefaultTool = "mapshaper"

// Mapshaper runs the mapshaper command-line tool.
type Mapshaper struct {
	// Tool is the executable name or path. Defaults to DefaultTool.
	Tool string
}

// OutputPath is where Simplify writes the topology for input.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".topojson"
}

// Args returns the mapshaper argument list for input, pct and output.
func Args(input string, pct int, output string) []string {
	args := []string{input}
	if pct > 0 {
		args = append(args, "-simplify", fmt.Sprintf("%d%%", pct), "keep-shapes")
	}
	return append(args, "-o", "format=topojson", output)
}

// Simplify implements Simplifier. A missing tool or a non-zero exit is
// reported as ErrToolUnavailable.
func (m Mapshaper) Simplify(ctx context.Context, input string, pct int) (string, error) {
	tool := m.Tool
	if tool == "" {
		tool = DefaultTool
	}
	exe, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found on PATH", precincts.ErrToolUnavailable, tool)
	}

	output := OutputPath(input)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, Args(input, pct, output)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s failed: %v; stdout=%q stderr=%q",
			precincts.ErrToolUnavailable, tool, err,
			strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()))
	}
	return output, nil
}
