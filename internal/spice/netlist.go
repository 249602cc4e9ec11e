package spice

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// paramAssign matches one name=value pair on a .param line.
var paramAssign = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(\{[^}]*\}|'[^']*'|[^\s,]+)`)

// SetParams rewrites every .param assignment of netlist for each key in
// overrides, including assignments on "+" continuation lines of a .param
// card. Parameters that are not assigned anywhere are added on a new
// .param line before .end (or at the end if there is none). Names match
// case-insensitively.
func SetParams(netlist []byte, overrides map[string]float64) []byte {
	values := make(map[string]string, len(overrides))
	// keep the caller's spelling for appended parameters
	spelling := make(map[string]string, len(overrides))
	for name, v := range overrides {
		values[strings.ToLower(name)] = FormatValue(v)
		spelling[strings.ToLower(name)] = name
	}
	assigned := make(map[string]bool, len(overrides))

	var out bytes.Buffer
	inserted := false
	inCard := false
	scanner := bufio.NewScanner(bytes.NewReader(netlist))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.ToLower(strings.TrimSpace(line))

		switch {
		case strings.HasPrefix(trimmed, ".param"):
			inCard = true
		case strings.HasPrefix(trimmed, "+"):
			// continuation of the previous card
		default:
			inCard = false
		}

		if inCard {
			line = paramAssign.ReplaceAllStringFunc(line, func(m string) string {
				sub := paramAssign.FindStringSubmatch(m)
				key := strings.ToLower(sub[1])
				if v, ok := values[key]; ok {
					assigned[key] = true
					return sub[1] + "=" + v
				}
				return m
			})
		}

		if !inserted && (trimmed == ".end" || strings.HasPrefix(trimmed, ".end ")) {
			out.WriteString(paramLine(missing(values, assigned), spelling))
			inserted = true
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if !inserted {
		out.WriteString(paramLine(missing(values, assigned), spelling))
	}
	return out.Bytes()
}

// missing returns the values whose key was never assigned.
func missing(values map[string]string, assigned map[string]bool) map[string]string {
	m := make(map[string]string)
	for k, v := range values {
		if !assigned[k] {
			m[k] = v
		}
	}
	return m
}

func paramLine(pending, spelling map[string]string) string {
	if len(pending) == 0 {
		return ""
	}
	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(".param")
	for _, k := range keys {
		b.WriteString(" " + spelling[k] + "=" + pending[k])
	}
	b.WriteByte('\n')
	return b.String()
}

var prefixes = []struct {
	exp    int
	suffix string
}{
	{12, "T"}, {9, "G"}, {6, "Meg"}, {3, "k"}, {0, ""},
	{-3, "m"}, {-6, "u"}, {-9, "n"}, {-12, "p"}, {-15, "f"},
}

// FormatValue renders v in SPICE engineering notation, e.g. 2e-6 -> "2u",
// 3.5e-7 -> "350n".
func FormatValue(v float64) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	abs := math.Abs(v)
	for _, p := range prefixes {
		scale := math.Pow10(p.exp)
		if abs >= scale*(1-1e-12) {
			m := v / scale
			return strconv.FormatFloat(roundSig(m, 9), 'f', -1, 64) + p.suffix
		}
	}
	return strconv.FormatFloat(v, 'g', 9, 64)
}

// roundSig drops float noise such as 349.99999999999994.
func roundSig(v float64, digits int) float64 {
	s := strconv.FormatFloat(v, 'g', digits, 64)
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return v
	}
	return r
}

var suffixScale = map[string]float64{
	"t": 1e12, "g": 1e9, "meg": 1e6, "k": 1e3,
	"m": 1e-3, "u": 1e-6, "µ": 1e-6, "n": 1e-9, "p": 1e-12, "f": 1e-15,
}

var valuePattern = regexp.MustCompile(`^([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)(meg|[tgkmuµnpf])?`)

// ParseValue reads a SPICE number with an optional scale suffix. Trailing
// unit letters ("2um", "10fF") are ignored, as SPICE does.
func ParseValue(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := valuePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid SPICE value %q", s)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SPICE value %q: %w", s, err)
	}
	if m[2] != "" {
		v *= suffixScale[m[2]]
	}
	return v, nil
}
