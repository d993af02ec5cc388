package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KevoDB/combiner/pkg/combiner"
	"github.com/KevoDB/combiner/pkg/combiner/reducers"
	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/KevoDB/combiner/pkg/scan"
	"github.com/KevoDB/combiner/pkg/snapshot"
	"github.com/KevoDB/combiner/pkg/stats"
	"github.com/KevoDB/combiner/pkg/telemetry"
)

const helpText = `
combine-shell - interactive front end for the versioned-record combiner

Records are addressed by row, family, qualifier, visibility and version.
Use - for an empty visibility.

Commands:
  .help                          - Show this help message
  .exit                          - Exit the program
  .stats                         - Show scan statistics
  .reducer                       - Show the current reducer and its options
  .reducer NAME [k=v ...]        - Combine with NAME (sum, max, min, latest)
  .families                      - Clear the column family filter
  .families include|exclude F... - Only scan, or skip, the listed families
  .save FILE                     - Write every stored record to a snapshot
  .load FILE                     - Store every record of a snapshot

  PUT row fam qual vis ver value - Store a record
  DELETE row fam qual vis ver    - Store a deletion marker
  SCAN [start [end]]             - Combined records for rows in [start, end]
  RAW [start [end]]              - Stored records for rows in [start, end]
  SEEK row fam qual vis ver      - Combined records from the given key on
  PSCAN split...                 - Combined scan split at the given rows,
                                   run concurrently
`

// shell executes commands against a record store
type shell struct {
	out    io.Writer
	store  recordStore
	logger log.Logger
	tel    telemetry.Telemetry
	stats  *stats.AtomicCollector
	scan   *scan.Scanner

	reducerName    string
	reducerOptions map[string]string

	families  [][]byte
	inclusive bool
}

func newShell(out io.Writer, store recordStore, logger log.Logger, tel telemetry.Telemetry, concurrency int) *shell {
	collector := stats.NewCollector()
	return &shell{
		out:         out,
		store:       store,
		logger:      logger,
		tel:         tel,
		stats:       collector,
		scan:        scan.NewScanner(scan.WithConcurrency(concurrency), scan.WithLogger(logger), scan.WithTelemetry(tel), scan.WithStats(collector)),
		reducerName: "sum",
	}
}

// setReducer switches the reducer used by combined scans
func (s *shell) setReducer(name string, options map[string]string) error {
	if _, err := reducers.Lookup(name, options); err != nil {
		return err
	}
	s.reducerName = name
	s.reducerOptions = options
	return nil
}

// execute runs one command line and reports whether the shell should exit
func (s *shell) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToUpper(parts[0])

	if strings.HasPrefix(cmd, ".") {
		cmd = strings.ToLower(cmd)
		switch cmd {
		case ".help":
			fmt.Fprint(s.out, helpText)

		case ".exit":
			return true

		case ".stats":
			s.printStats()

		case ".reducer":
			if len(parts) == 1 {
				s.printReducer()
				return false
			}
			options, err := parseOptions(parts[2:])
			if err != nil {
				s.fail(err)
				return false
			}
			if err := s.setReducer(parts[1], options); err != nil {
				s.fail(err)
				return false
			}
			fmt.Fprintf(s.out, "Reducer set to %s\n", parts[1])

		case ".families":
			s.setFamilies(parts[1:])

		case ".save":
			if len(parts) != 2 {
				fmt.Fprintln(s.out, "Error: .save requires a file argument")
				return false
			}
			s.save(parts[1])

		case ".load":
			if len(parts) != 2 {
				fmt.Fprintln(s.out, "Error: .load requires a file argument")
				return false
			}
			s.load(parts[1])

		default:
			fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
		}
		return false
	}

	switch cmd {
	case "PUT":
		if len(parts) < 7 {
			fmt.Fprintln(s.out, "Error: PUT requires row, family, qualifier, visibility, version and value arguments")
			return false
		}
		k, err := parseKey(parts[1:6])
		if err != nil {
			s.fail(err)
			return false
		}
		value, err := s.encodeValue(strings.Join(parts[6:], " "))
		if err != nil {
			s.fail(err)
			return false
		}
		start := time.Now()
		if err := s.store.Put(k, value); err != nil {
			s.fail(err)
			return false
		}
		s.stats.TrackOperationWithLatency(stats.OpPut, uint64(time.Since(start).Nanoseconds()))
		s.stats.TrackBytes(true, uint64(len(value)))
		fmt.Fprintln(s.out, "Record stored")

	case "DELETE":
		if len(parts) != 6 {
			fmt.Fprintln(s.out, "Error: DELETE requires row, family, qualifier, visibility and version arguments")
			return false
		}
		k, err := parseKey(parts[1:6])
		if err != nil {
			s.fail(err)
			return false
		}
		if err := s.store.Delete(k); err != nil {
			s.fail(err)
			return false
		}
		s.stats.TrackOperation(stats.OpDelete)
		fmt.Fprintln(s.out, "Deletion marker stored")

	case "SCAN", "RAW":
		if len(parts) > 3 {
			fmt.Fprintf(s.out, "Error: Invalid %s syntax. See .help for usage\n", cmd)
			return false
		}
		var startRow, endRow []byte
		if len(parts) > 1 {
			startRow = []byte(parts[1])
		}
		if len(parts) > 2 {
			endRow = []byte(parts[2])
		}
		s.scanRange(key.RowRange(startRow, endRow), cmd == "SCAN")

	case "SEEK":
		if len(parts) != 6 {
			fmt.Fprintln(s.out, "Error: SEEK requires row, family, qualifier, visibility and version arguments")
			return false
		}
		k, err := parseKey(parts[1:6])
		if err != nil {
			s.fail(err)
			return false
		}
		s.scanRange(key.NewRange(&k, true, nil, false), true)

	case "PSCAN":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "Error: PSCAN requires at least one split row")
			return false
		}
		splits := make([][]byte, 0, len(parts)-1)
		for _, p := range parts[1:] {
			splits = append(splits, []byte(p))
		}
		sort.Slice(splits, func(i, j int) bool { return string(splits[i]) < string(splits[j]) })
		s.parallelScan(splits)

	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}
	return false
}

// source opens a source over the store, wrapped in a combiner when combined
// is set
func (s *shell) source(combined bool) (iterator.SortedSource, io.Closer, error) {
	src, err := s.store.NewSource()
	if err != nil {
		return nil, nil, err
	}
	if !combined {
		return src, src, nil
	}
	reducer, err := reducers.Lookup(s.reducerName, s.reducerOptions)
	if err != nil {
		_ = src.Close()
		return nil, nil, err
	}
	c, err := combiner.New(src, reducer,
		combiner.WithOptions(s.reducerOptions),
		combiner.WithLogger(s.logger),
		combiner.WithTelemetry(s.tel),
		combiner.WithStats(s.stats),
	)
	if err != nil {
		_ = src.Close()
		return nil, nil, err
	}
	return c, c, nil
}

func (s *shell) scanRange(r key.Range, combined bool) {
	src, closer, err := s.source(combined)
	if err != nil {
		s.fail(err)
		return
	}
	defer closer.Close()

	start := time.Now()
	records, err := s.scan.Collect(context.Background(), src, r, s.families, s.inclusive, 0)
	if err != nil {
		s.fail(err)
		return
	}
	for _, rec := range records {
		s.printRecord(rec)
	}
	fmt.Fprintf(s.out, "%d entries found (%.2f ms)\n", len(records), float64(time.Since(start).Microseconds())/1000.0)
}

func (s *shell) parallelScan(splits [][]byte) {
	src, closer, err := s.source(true)
	if err != nil {
		s.fail(err)
		return
	}
	defer closer.Close()

	ranges := scan.SplitRows(splits)
	results := make([][]iterator.Record, len(ranges))
	var mu sync.Mutex

	err = s.scan.Parallel(context.Background(), src, ranges, s.families, s.inclusive, func(i int, rec iterator.Record) error {
		mu.Lock()
		results[i] = append(results[i], rec)
		mu.Unlock()
		return nil
	})
	if err != nil {
		s.fail(err)
		return
	}

	total := 0
	for i, recs := range results {
		fmt.Fprintf(s.out, "-- range %d: %d entries\n", i, len(recs))
		for _, rec := range recs {
			s.printRecord(rec)
		}
		total += len(recs)
	}
	fmt.Fprintf(s.out, "%d entries found in %d ranges\n", total, len(ranges))
}

func (s *shell) save(path string) {
	src, closer, err := s.source(false)
	if err != nil {
		s.fail(err)
		return
	}
	defer closer.Close()

	if err := src.Seek(key.AllRange(), nil, false); err != nil {
		s.fail(err)
		return
	}

	f, err := os.Create(path)
	if err != nil {
		s.fail(err)
		return
	}

	start := time.Now()
	n, err := snapshot.Dump(src, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.stats.TrackOperationWithLatency(stats.OpSnapshotSave, uint64(time.Since(start).Nanoseconds()))
	if info, statErr := os.Stat(path); statErr == nil {
		s.stats.TrackBytes(true, uint64(info.Size()))
	}
	fmt.Fprintf(s.out, "%d records saved to %s\n", n, path)
}

func (s *shell) load(path string) {
	f, err := os.Open(path)
	if err != nil {
		s.fail(err)
		return
	}
	defer f.Close()

	start := s.stats.StartLoad()
	n, err := snapshot.Load(f, s.store.Apply)

	var rejected uint64
	if errors.Is(err, snapshot.ErrChecksum) || errors.Is(err, snapshot.ErrCorrupt) {
		rejected = 1
	}
	s.stats.FinishLoad(start, uint64(n), rejected)
	s.stats.TrackOperation(stats.OpSnapshotLoad)

	if err != nil {
		fmt.Fprintf(s.out, "Error: %s (%d records loaded before the failure)\n", err, n)
		return
	}
	fmt.Fprintf(s.out, "%d records loaded from %s\n", n, path)
}

func (s *shell) setFamilies(args []string) {
	if len(args) == 0 {
		s.families, s.inclusive = nil, false
		fmt.Fprintln(s.out, "Family filter cleared")
		return
	}

	mode := strings.ToLower(args[0])
	if (mode != "include" && mode != "exclude") || len(args) < 2 {
		fmt.Fprintln(s.out, "Error: .families requires include or exclude followed by families")
		return
	}

	families := make([][]byte, 0, len(args)-1)
	for _, f := range args[1:] {
		families = append(families, []byte(f))
	}
	s.families = families
	s.inclusive = mode == "include"
	fmt.Fprintf(s.out, "Family filter: %s %s\n", mode, strings.Join(args[1:], " "))
}

func (s *shell) printReducer() {
	reducer, err := reducers.Lookup(s.reducerName, s.reducerOptions)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Reducer: %s\n", s.reducerName)
	if d, ok := reducer.(combiner.OptionDescriber); ok {
		desc := d.DescribeOptions()
		fmt.Fprintf(s.out, "  %s\n", desc.Description)
		names := make([]string, 0, len(desc.Options))
		for name := range desc.Options {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := s.reducerOptions[name]
			if value == "" {
				value = "(default)"
			}
			fmt.Fprintf(s.out, "  %s = %s: %s\n", name, value, desc.Options[name])
		}
	}
}

func (s *shell) printStats() {
	all := s.stats.GetStats()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(s.out, "Scan Statistics:")
	for _, name := range names {
		fmt.Fprintf(s.out, "  %s: %v\n", name, all[name])
	}
}

func (s *shell) printRecord(rec iterator.Record) {
	if rec.Key.Deleted {
		fmt.Fprintf(s.out, "%s\n", rec.Key)
		return
	}
	fmt.Fprintf(s.out, "%s: %s\n", rec.Key, s.decodeValue(rec.Value))
}

// encoder returns the value encoding of the current reducer, if it has one
func (s *shell) encoder() reducers.Encoder {
	reducer, err := reducers.Lookup(s.reducerName, s.reducerOptions)
	if err != nil {
		return nil
	}
	if codec, ok := reducer.(reducers.ValueCodec); ok {
		return codec.Encoder()
	}
	return nil
}

func (s *shell) encodeValue(text string) ([]byte, error) {
	enc := s.encoder()
	if enc == nil {
		return []byte(text), nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s reducer stores integers: %w", s.reducerName, err)
	}
	return enc.Encode(v), nil
}

func (s *shell) decodeValue(value []byte) string {
	if enc := s.encoder(); enc != nil {
		if v, err := enc.Decode(value); err == nil {
			return strconv.FormatInt(v, 10)
		}
	}
	return strconv.Quote(string(value))
}

func (s *shell) fail(err error) {
	var reduction *combiner.ReductionError
	if errors.As(err, &reduction) {
		s.logger.Warn("Scan abandoned: %v", err)
	}
	fmt.Fprintf(s.out, "Error: %s\n", err)
}

// parseKey reads row, family, qualifier, visibility and version
func parseKey(fields []string) (key.Key, error) {
	version, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return key.Key{}, fmt.Errorf("invalid version %q: %w", fields[4], err)
	}
	visibility := fields[3]
	if visibility == "-" {
		visibility = ""
	}
	return key.New(fields[0], fields[1], fields[2], visibility, version), nil
}

// parseOptions reads k=v pairs
func parseOptions(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	options := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid option %q, expected name=value", arg)
		}
		options[name] = value
	}
	return options, nil
}
