// Package validate checks a built layer version without modifying it.
//
// Checks run in a fixed order and stop at the first failure.
package validate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	precincts "github.com/tingold/mn-precincts"
	"github.com/tingold/mn-precincts/internal/fgb"
	"github.com/tingold/mn-precincts/internal/geom"
	"github.com/tingold/mn-precincts/internal/layer"
)

// RequiredColumns must be present in the full output after a build.
var RequiredColumns = []string{"precinct_id", "precinct_name", "county"}

// IDColumn must hold unique values when present.
const IDColumn = "precinct_id"

// maxReportedDuplicates caps how many duplicate IDs a failure lists.
const maxReportedDuplicates = 10

// Result is the outcome of one check.
type Result struct {
	Check   string
	Passed  bool
	Message string
	Err     error // kind of failure; nil when passed
}

func pass(msg string) Result { return Result{Passed: true, Message: msg} }

func fail(kind error, format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...), Err: kind}
}

// Check is a single named validation step.
type Check struct {
	Name string
	Run  func(*State) Result
}

// State is what checks share: the target directory and anything loaded so far.
type State struct {
	Layer    precincts.Layer
	Version  string
	Dir      string
	Full     *layer.Collection
	Metadata *precincts.Metadata
}

// Checks is the ordered list run by Validator.
var Checks = []Check{
	{Name: "output-dir", Run: checkOutputDir},
	{Name: "required-files", Run: checkRequiredFiles},
	{Name: "geometry", Run: checkGeometry},
	{Name: "crs", Run: checkCRS},
	{Name: "required-columns", Run: checkRequiredColumns},
	{Name: "unique-id", Run: checkUniqueID},
	{Name: "flatgeobuf", Run: checkFlatGeobuf},
}

// Validator runs Checks against a layer version.
type Validator struct {
	Env    *precincts.Env
	Layer  precincts.Layer
	Checks []Check
}

// New returns a Validator for the Minnesota precinct layer.
func New(env *precincts.Env) *Validator {
	return &Validator{Env: env, Layer: precincts.MNPrecincts, Checks: Checks}
}

// Main validates version and converts the outcome to a process exit code.
func Main(env *precincts.Env, version string) int {
	if _, err := New(env).Run(version); err != nil {
		env.Logger.Error("validation failed", "error", err)
		return 1
	}
	env.Logger.Info("validation passed", "version", version)
	return 0
}

// Run executes the checks in order and returns the results up to and
// including the first failure, which is also returned as a *precincts.ValidateError.
func (v *Validator) Run(version string) ([]Result, error) {
	if err := precincts.CheckVersion(version); err != nil {
		return nil, &precincts.ValidateError{Check: "version", Err: err}
	}

	st := &State{
		Layer:   v.Layer,
		Version: version,
		Dir:     v.Env.Layout.VersionDir(v.Layer, version),
	}

	results := make([]Result, 0, len(v.Checks))
	for _, c := range v.Checks {
		r := c.Run(st)
		r.Check = c.Name
		results = append(results, r)
		if !r.Passed {
			kind := r.Err
			if kind == nil {
				kind = precincts.ErrOutput
			}
			return results, &precincts.ValidateError{Check: c.Name, Err: fmt.Errorf("%w: %s", kind, r.Message)}
		}
		v.Env.Logger.Debug("check passed", "check", c.Name, "detail", r.Message)
	}
	return results, nil
}

func checkOutputDir(st *State) Result {
	info, err := os.Stat(st.Dir)
	if err != nil || !info.IsDir() {
		return fail(precincts.ErrOutput, "missing output folder: %s", st.Dir)
	}
	return pass(st.Dir)
}

func checkRequiredFiles(st *State) Result {
	var missing []string
	for _, name := range st.Layer.RequiredFiles() {
		if _, err := os.Stat(filepath.Join(st.Dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fail(precincts.ErrOutput, "missing output files: %v", missing)
	}
	return pass(fmt.Sprintf("%d files present", len(st.Layer.RequiredFiles())))
}

func checkGeometry(st *State) Result {
	path := filepath.Join(st.Dir, st.Layer.FullGeoJSON())
	c, err := layer.ReadFile(path)
	if err != nil {
		return fail(precincts.ErrOutput, "failed to read %s: %v", path, err)
	}
	if len(c.Features) == 0 {
		return fail(precincts.ErrOutput, "no features in %s", path)
	}
	invalid := 0
	for _, f := range c.Features {
		if !geom.Valid(f.Geometry) {
			invalid++
		}
	}
	if invalid > 0 {
		return fail(precincts.ErrGeometry, "found %d invalid geometries in %s", invalid, path)
	}
	st.Full = c
	return pass(fmt.Sprintf("%d valid features", len(c.Features)))
}

func checkCRS(st *State) Result {
	if !precincts.IsWGS84(st.Full.CRS) {
		found := st.Full.CRS
		if found == "" {
			found = "none"
		}
		return fail(precincts.ErrSchema, "CRS must be %s. Found: %s", precincts.CRSName, found)
	}
	return pass(st.Full.CRS)
}

func checkRequiredColumns(st *State) Result {
	var missing []string
	for _, col := range RequiredColumns {
		if !st.Full.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fail(precincts.ErrSchema, "missing required columns: %v", missing)
	}
	return pass(fmt.Sprintf("%v", RequiredColumns))
}

func checkUniqueID(st *State) Result {
	if !st.Full.HasColumn(IDColumn) {
		return pass("no " + IDColumn + " column")
	}
	dups := Duplicates(st.Full, IDColumn)
	if len(dups) == 0 {
		return pass(IDColumn + " values are unique")
	}
	shown := dups
	if len(shown) > maxReportedDuplicates {
		shown = shown[:maxReportedDuplicates]
	}
	return fail(precincts.ErrSchema, "duplicate %s values: %v", IDColumn, shown)
}

// checkFlatGeobuf compares the FlatGeobuf feature count with the full
// GeoJSON when the metadata lists one. Metadata that cannot be parsed
// lists nothing.
func checkFlatGeobuf(st *State) Result {
	meta, err := precincts.ReadMetadata(filepath.Join(st.Dir, precincts.MetadataName))
	if err != nil {
		return pass(fmt.Sprintf("no flatgeobuf (metadata unreadable: %v)", err))
	}
	st.Metadata = meta
	if meta.Paths.WebFlatGeobuf == nil {
		return pass("no flatgeobuf")
	}

	path := filepath.Join(st.Dir, *meta.Paths.WebFlatGeobuf)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return pass("flatgeobuf listed but absent")
	}
	r, err := fgb.NewReader(path)
	if err != nil {
		return fail(precincts.ErrOutput, "failed to read %s: %v", path, err)
	}
	defer r.Close()

	got, err := featureCount(r)
	if err != nil {
		return fail(precincts.ErrOutput, "failed to read %s: %v", path, err)
	}
	if got != len(st.Full.Features) {
		return fail(precincts.ErrOutput, "%s has %d features, full geojson has %d", path, got, len(st.Full.Features))
	}
	return pass(fmt.Sprintf("%d features", got))
}

// featureCount trusts the header count and falls back to reading the
// features when it is 0, which FlatGeobuf uses for "unknown".
func featureCount(r *fgb.Reader) (int, error) {
	h := r.Header()
	if h == nil {
		return 0, errors.New("missing header")
	}
	if h.FeaturesCount > 0 {
		return int(h.FeaturesCount), nil
	}
	c, err := r.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(c.Features), nil
}

// Duplicates returns each value of col that appears more than once, in
// order of first repetition. Values are compared by their JSON encoding.
func Duplicates(c *layer.Collection, col string) []any {
	seen := make(map[string]int, len(c.Features))
	var dups []any
	for _, f := range c.Features {
		v := f.Properties[col]
		key, err := json.Marshal(v)
		if err != nil {
			key = []byte(fmt.Sprint(v))
		}
		seen[string(key)]++
		if seen[string(key)] == 2 {
			dups = append(dups, v)
		}
	}
	return dups
}
