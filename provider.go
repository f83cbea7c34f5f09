package vnetopt

// provider.go holds the storage layer under the data interfaces.  A provider
// stores scalar values keyed by (variable, positional index tuple); the
// interfaces above it translate named index maps into positional tuples.

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// A DataRecord couples a stored value with the index tuple it belongs to.
// Iteration hands these out so callers can rebuild keys.
type DataRecord struct {
	Variable string
	Indices  []int
	Value    float64
}

// A DataProvider stores and retrieves scalar values by variable name and
// positional index tuple.  Lookups of absent entries return a NoDataError.
type DataProvider interface {
	DataPlain(variable string, indices ...int) (float64, error)
	SetDataPlain(value float64, variable string, indices ...int)
	Iterate(consume func(DataRecord))
	Sync() error
}

// plainKey renders a (variable, indices) pair as a canonical map key
func plainKey(variable string, indices []int) string {
	var b strings.Builder
	b.WriteString(variable)
	for _, idx := range indices {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(idx))
	}
	return b.String()
}

// A MemDataProvider keeps everything in a map.  It is the working store of
// the planner, the simulation, and the GA population members.
type MemDataProvider struct {
	records map[string]DataRecord
}

// CreateMemDataProvider builds an empty in-memory provider
func CreateMemDataProvider() *MemDataProvider {
	mdp := new(MemDataProvider)
	mdp.records = make(map[string]DataRecord)
	return mdp
}

// DataPlain returns the value stored under (variable, indices)
func (mdp *MemDataProvider) DataPlain(variable string, indices ...int) (float64, error) {
	rec, present := mdp.records[plainKey(variable, indices)]
	if !present {
		return 0.0, &NoDataError{Variable: variable, Indices: slices.Clone(indices)}
	}
	return rec.Value, nil
}

// SetDataPlain stores the value under (variable, indices), overwriting any
// previous entry
func (mdp *MemDataProvider) SetDataPlain(value float64, variable string, indices ...int) {
	mdp.records[plainKey(variable, indices)] = DataRecord{
		Variable: variable,
		Indices:  slices.Clone(indices),
		Value:    value,
	}
}

// Iterate hands every stored record to the consumer, in sorted key order so
// that downstream copies are deterministic
func (mdp *MemDataProvider) Iterate(consume func(DataRecord)) {
	keys := make([]string, 0, len(mdp.records))
	for key := range mdp.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		consume(mdp.records[key])
	}
}

// Sync is a no-op for the in-memory provider
func (mdp *MemDataProvider) Sync() error {
	return nil
}

// Clone returns a deep copy of the provider, used when a GA population
// member needs its own writable view of shared scenario data
func (mdp *MemDataProvider) Clone() *MemDataProvider {
	clone := CreateMemDataProvider()
	CopyRecords(clone, mdp)
	return clone
}

// CopyRecords copies every record of the source provider into dst
func CopyRecords(dst DataProvider, src DataProvider) {
	src.Iterate(func(rec DataRecord) {
		dst.SetDataPlain(rec.Value, rec.Variable, rec.Indices...)
	})
}

// A TextDataProvider layers file persistence over a MemDataProvider.  The
// file format is whitespace-delimited lines, one record each: the variable
// name, the index values, and the stored value last.  Lines that do not
// parse are skipped.
type TextDataProvider struct {
	MemDataProvider
	Filename string
}

// CreateTextDataProvider builds a provider backed by the named file, loading
// whatever records the file already holds.  A missing file is not an error,
// it simply starts empty.
func CreateTextDataProvider(filename string) (*TextDataProvider, error) {
	tdp := new(TextDataProvider)
	tdp.records = make(map[string]DataRecord)
	tdp.Filename = filename

	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return tdp, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		variable, indices, value, ok := parseProviderLine(scanner.Text())
		if !ok {
			continue
		}
		tdp.SetDataPlain(value, variable, indices...)
	}
	return tdp, scanner.Err()
}

// parseProviderLine splits one record line into its parts.  The last field
// is the value, the first is the variable name, everything between is an
// index.  Comment lines start with '#'.
func parseProviderLine(line string) (string, []int, float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
		return "", nil, 0.0, false
	}

	value, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return "", nil, 0.0, false
	}

	indices := make([]int, 0, len(fields)-2)
	for _, field := range fields[1 : len(fields)-1] {
		idx, cerr := strconv.Atoi(field)
		if cerr != nil {
			return "", nil, 0.0, false
		}
		indices = append(indices, idx)
	}
	return fields[0], indices, value, true
}

// Sync writes every stored record back to the file, sorted by key so that
// repeated syncs of the same data produce identical files
func (tdp *TextDataProvider) Sync() error {
	f, err := os.Create(tdp.Filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	tdp.Iterate(func(rec DataRecord) {
		fmt.Fprintf(w, "%s", rec.Variable)
		for _, idx := range rec.Indices {
			fmt.Fprintf(w, " %d", idx)
		}
		fmt.Fprintf(w, " %g\n", rec.Value)
	})
	return w.Flush()
}
