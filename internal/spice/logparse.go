package spice

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// measureLine matches "name = value" / "name: value" at the start of a log
// line. It covers the LTspice form (tphl=1.2e-10 FROM ... TO ...) and the
// ngspice form (tphl   =  1.2e-10 targ= ... trig= ...).
var measureLine = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*[:=]\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)`)

// failedMeasure matches LTspice's report for a measure that could not be evaluated.
var failedMeasure = regexp.MustCompile(`(?i)measurement\s+"?([A-Za-z_][A-Za-z0-9_]*)"?\s+fail`)

// DecodeLog returns the log text as UTF-8. LTspice writes UTF-16LE logs,
// ngspice writes plain ASCII.
func DecodeLog(data []byte) (string, error) {
	if looksUTF16(data) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode UTF-16 log: %w", err)
		}
		return string(out), nil
	}
	return string(data), nil
}

func looksUTF16(data []byte) bool {
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		return true
	}
	// ASCII text encoded as UTF-16LE has a zero in every odd byte
	n := min(len(data), 64)
	if n < 4 {
		return false
	}
	zeros := 0
	for i := 1; i < n; i += 2 {
		if data[i] == 0 {
			zeros++
		}
	}
	return zeros*2 >= n/2
}

// ParseLog extracts every measurement from a simulator log. The second
// return value lists measures the simulator reported as failed. A line that
// cannot be read (longer than 1 MiB) is an error.
func ParseLog(text string) (Measurements, []string, error) {
	found := Measurements{}
	var failed []string

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := failedMeasure.FindStringSubmatch(line); m != nil {
			failed = append(failed, strings.ToLower(m[1]))
			continue
		}
		m := measureLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		name := strings.ToLower(m[1])
		// first occurrence wins; later lines may echo parameters
		if _, dup := found[name]; !dup {
			found[name] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read log: %w", err)
	}
	return found, failed, nil
}

// tail returns at most the last n bytes of b, starting on a line boundary.
func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) <= n {
		return string(b)
	}
	b = b[len(b)-n:]
	if i := bytes.IndexByte(b, '\n'); i >= 0 && i < len(b)-1 {
		b = b[i+1:]
	}
	return string(b)
}
