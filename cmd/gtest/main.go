// gtest compiles every tree under testdata and compares the assembly with
// the .s file next to it.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/codegen"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/util"
)

type FileTestResult struct {
	File     string        `json:"file"`
	Status   string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message  string        `json:"message,omitempty"`
	Diff     string        `json:"diff,omitempty"`
	Hash     string        `json:"hash,omitempty"`
	Duration time.Duration `json:"duration"`
}

var (
	testFiles  = flag.String("test-files", "testdata/*.yaml", "Glob pattern(s) for trees to test (space-separated).")
	skipFiles  = flag.String("skip-files", "", "Files to skip (space-separated).")
	configFile = flag.String("config", "", "YAML config applied to every compilation.")
	outputJSON = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	jobs       = flag.Int("j", 4, "Number of parallel test jobs.")
	update     = flag.Bool("update", false, "Rewrite the .s golden files with the current output.")
	verbose    = flag.Bool("v", false, "Enable verbose logging.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)
	if *jobs < 1 {
		*jobs = 1
	}
	// Warnings from the code generator would interleave across workers.
	util.SetOutput(io.Discard)

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	results := runSuite(files)
	printSummary(results)
	writeJSONReport(results)
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			os.Exit(1)
		}
	}
}

func expandGlobPatterns(patterns string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range strings.Fields(patterns) {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func goldenPath(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file)) + ".s"
}

func runSuite(files []string) []*FileTestResult {
	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	type task struct{ file, hash string }
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				r := testFile(t.file)
				r.Hash = t.hash
				resultsChan <- r
			}
		}()
	}

	// Feed the workers, skipping trees with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if original, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- task{file, fileHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var all []*FileTestResult
	for r := range resultsChan {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })
	return all
}

func compileFile(file string) (string, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			return "", err
		}
	}
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	root, err := ast.Decode(f)
	if err != nil {
		return "", err
	}
	asm, err := codegen.Compile(root, cfg)
	if err != nil {
		return "", err
	}
	return asm.String(), nil
}

func testFile(file string) *FileTestResult {
	start := time.Now()
	res := &FileTestResult{File: file}
	defer func() { res.Duration = time.Since(start) }()

	got, err := compileFile(file)
	if err != nil {
		res.Status, res.Message = "ERROR", fmt.Sprintf("compilation failed: %v", err)
		return res
	}

	golden := goldenPath(file)
	if *update {
		if err := os.WriteFile(golden, []byte(got), 0644); err != nil {
			res.Status, res.Message = "ERROR", fmt.Sprintf("could not write %s: %v", golden, err)
			return res
		}
		res.Status, res.Message = "PASS", "golden updated"
		return res
	}

	want, err := os.ReadFile(golden)
	if os.IsNotExist(err) {
		res.Status, res.Message = "SKIP", fmt.Sprintf("no golden file %s, run with -update", golden)
		return res
	}
	if err != nil {
		res.Status, res.Message = "ERROR", fmt.Sprintf("could not read %s: %v", golden, err)
		return res
	}

	if diff := cmp.Diff(strings.Split(string(want), "\n"), strings.Split(got, "\n")); diff != "" {
		res.Status, res.Message, res.Diff = "FAIL", "assembly differs from golden (-want +got)", diff
		return res
	}
	res.Status = "PASS"
	return res
}

func printSummary(results []*FileTestResult) {
	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Status]++
		color := cGreen
		switch r.Status {
		case "FAIL", "ERROR":
			color = cRed
		case "SKIP":
			color = cYellow
		}
		if r.Status == "PASS" && !*verbose {
			continue
		}
		line := fmt.Sprintf("%s[%s]%s %s", color, r.Status, cNone, r.File)
		if r.Message != "" {
			line += ": " + r.Message
		}
		log.Println(line)
		if r.Diff != "" {
			log.Println(r.Diff)
		}
	}
	log.Printf("\n%s%sSummary:%s %s%d passed%s, %s%d failed%s, %s%d skipped%s, %d errors\n",
		cBold, cCyan, cNone,
		cGreen, counts["PASS"], cNone,
		cRed, counts["FAIL"], cNone,
		cYellow, counts["SKIP"], cNone,
		counts["ERROR"])
}

func writeJSONReport(results []*FileTestResult) {
	report := make(map[string]*FileTestResult, len(results))
	for _, r := range results {
		report[r.File] = r
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Printf("%s[WARN]%s Failed to encode the JSON report: %v\n", cYellow, cNone, err)
		return
	}
	if err := os.WriteFile(*outputJSON, buf.Bytes(), 0644); err != nil {
		log.Printf("%s[WARN]%s Failed to write %s: %v\n", cYellow, cNone, *outputJSON, err)
	}
}
