//go:build ignore

// validate_replies decodes captured SQL Server Browser replies and reports
// how the parser treats them. Input files hold one hex-encoded reply per
// line; blank lines and lines starting with # are skipped.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/muurk/dbscout/internal/protocol"
)

// Statistics tracks parsing results
type Statistics struct {
	TotalReplies    int
	TotalFiles      int
	ParseSuccess    int
	ParseFailure    int
	LengthMismatch  int
	RecordsParsed   int
	RecordsDropped  int
	RecordsPerReply map[int]int
	Failed          []FailedReply
}

// FailedReply stores information about a reply that did not decode
type FailedReply struct {
	File       string
	LineNumber int
	Hex        string
	Error      string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_replies <directory-or-file>")
		fmt.Println("Example: validate_replies captures/")
		fmt.Println("         validate_replies browser-replies.hex")
		os.Exit(1)
	}

	path := os.Args[1]
	stats := Statistics{RecordsPerReply: make(map[int]int)}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error accessing path: %v\n", err)
		os.Exit(1)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.hex"))
		if err != nil {
			fmt.Printf("Error finding capture files: %v\n", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			fmt.Printf("No .hex files found in %s\n", path)
			os.Exit(1)
		}
	}

	fmt.Printf("=== Browser Reply Validator ===\n")
	fmt.Printf("Files to process: %d\n\n", len(files))

	for _, file := range files {
		processFile(file, &stats)
	}

	printStatistics(&stats)
	if stats.ParseFailure > 0 {
		os.Exit(2)
	}
}

func processFile(filename string, stats *Statistics) {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error reading file %s: %v\n", filename, err)
		return
	}
	defer f.Close()
	stats.TotalFiles++

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*protocol.MaxResponseSize+1)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.TotalReplies++

		fail := func(err error) {
			stats.ParseFailure++
			stats.Failed = append(stats.Failed, FailedReply{
				File:       filename,
				LineNumber: lineNum,
				Hex:        line,
				Error:      err.Error(),
			})
		}

		data, err := hex.DecodeString(strings.ReplaceAll(line, " ", ""))
		if err != nil {
			fail(fmt.Errorf("hex decode error: %w", err))
			continue
		}

		resp, err := protocol.ParseResponse(data)
		if err != nil {
			fail(err)
			continue
		}

		stats.ParseSuccess++
		if resp.LengthMismatch() {
			stats.LengthMismatch++
		}
		stats.RecordsParsed += len(resp.Records)
		stats.RecordsPerReply[len(resp.Records)]++

		chunks := 0
		for _, chunk := range strings.Split(resp.Payload, protocol.RecordDelimiter) {
			if chunk != "" {
				chunks++
			}
		}
		stats.RecordsDropped += chunks - len(resp.Records)
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error scanning %s: %v\n", filename, err)
	}
}

func printStatistics(stats *Statistics) {
	fmt.Printf("Replies:          %d\n", stats.TotalReplies)
	fmt.Printf("Decoded:          %d\n", stats.ParseSuccess)
	fmt.Printf("Failed:           %d\n", stats.ParseFailure)
	fmt.Printf("Length mismatch:  %d\n", stats.LengthMismatch)
	fmt.Printf("Records parsed:   %d\n", stats.RecordsParsed)
	fmt.Printf("Records dropped:  %d\n\n", stats.RecordsDropped)

	counts := make([]int, 0, len(stats.RecordsPerReply))
	for n := range stats.RecordsPerReply {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	fmt.Println("Records per reply:")
	for _, n := range counts {
		fmt.Printf("  %3d: %d\n", n, stats.RecordsPerReply[n])
	}

	if len(stats.Failed) > 0 {
		fmt.Println("\nFailures:")
		for _, f := range stats.Failed {
			hexPreview := f.Hex
			if len(hexPreview) > 40 {
				hexPreview = hexPreview[:40] + "..."
			}
			fmt.Printf("  %s:%d %s (%s)\n", f.File, f.LineNumber, f.Error, hexPreview)
		}
	}
}
