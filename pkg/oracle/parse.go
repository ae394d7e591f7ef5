package oracle

import (
	"regexp"
	"strconv"
	"strings"
)

// LineStatus tags what a parser did with one reply line.
type LineStatus int

const (
	// LineAccepted lines contributed to the decision.
	LineAccepted LineStatus = iota
	// LineSkipped lines did not match the stage grammar and were dropped quietly.
	LineSkipped
	// LineFlagged lines were malformed in a way worth a diagnostic. Directory
	// lines are still kept with a raw token; other stages drop them.
	LineFlagged
)

func (s LineStatus) String() string {
	switch s {
	case LineAccepted:
		return "accepted"
	case LineSkipped:
		return "skipped"
	case LineFlagged:
		return "flagged"
	default:
		return "unknown"
	}
}

// LineResult is the outcome for one line of an oracle reply.
type LineResult struct {
	Line   int // 1-based, after fence stripping
	Raw    string
	Status LineStatus
	Reason string
}

// DirectoryPick is one selected directory. Index is set when the oracle
// answered with the numeric index it was shown.
type DirectoryPick struct {
	Index    int
	HasIndex bool
	Token    string
	Label    string
}

// Verdict is the oracle's opinion of enabling an option.
type Verdict int

const (
	VerdictUndetermined Verdict = iota
	VerdictFavor
	VerdictDisfavor
)

func (v Verdict) String() string {
	switch v {
	case VerdictFavor:
		return "favor"
	case VerdictDisfavor:
		return "disfavor"
	default:
		return "undetermined"
	}
}

// BooleanDecision maps option names to verdicts. Undetermined options are absent.
type BooleanDecision map[string]Verdict

// ValuePair is one recommended value, with enclosing punctuation removed.
type ValuePair struct {
	Label string
	Value string
}

const fence = "```"

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		// drop a language tag such as ```text
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " []") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), fence)
	return strings.TrimSpace(s)
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

const tokenCutset = "[](){}<>.:,"

// ParseDirectories parses a directory-selection reply. Each line's first
// field is read as the index the directory was listed under and the rest as
// its label. A non-numeric first field is kept as a raw token, the whole line
// becomes the label, and the line is flagged.
func ParseDirectories(answer string) ([]DirectoryPick, []LineResult) {
	text := stripFences(answer)
	text = strings.TrimPrefix(text, "[")
	text = strings.TrimSuffix(text, "]")

	var picks []DirectoryPick
	var results []LineResult
	for i, raw := range splitLines(text) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"))
		fields := strings.Fields(line)
		if len(fields) == 0 {
			results = append(results, LineResult{Line: i + 1, Raw: raw, Status: LineSkipped, Reason: "no directory on line"})
			continue
		}

		token := strings.Trim(fields[0], tokenCutset)
		pick := DirectoryPick{Token: token, Label: line}
		result := LineResult{Line: i + 1, Raw: raw, Status: LineAccepted}
		if n, err := strconv.Atoi(token); err == nil {
			pick.Index = n
			pick.HasIndex = true
			if rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0])); rest != "" {
				pick.Label = rest
			} else {
				pick.Label = token
			}
		} else {
			result.Status = LineFlagged
			result.Reason = "index " + strconv.Quote(token) + " is not a number"
		}
		pick.Label = strings.TrimSpace(strings.Trim(pick.Label, "[]"))
		picks = append(picks, pick)
		results = append(results, result)
	}
	return picks, results
}

// ParseBooleans parses an on/off reply of "[name increase|decrease]" lines.
// Lines that do not split into exactly two fields, such as the
// "cannot determine" form, are skipped. Unknown verdicts and unbalanced
// brackets are flagged and dropped.
func ParseBooleans(answer string) (BooleanDecision, []LineResult) {
	decision := make(BooleanDecision)
	var results []LineResult
	for i, raw := range splitLines(stripFences(answer)) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		open, closed := strings.HasPrefix(line, "["), strings.HasSuffix(line, "]")
		if open != closed {
			results = append(results, LineResult{Line: i + 1, Raw: raw, Status: LineFlagged, Reason: "unbalanced brackets"})
			continue
		}
		if open {
			line = line[1 : len(line)-1]
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			results = append(results, LineResult{Line: i + 1, Raw: raw, Status: LineSkipped, Reason: "expected name and verdict"})
			continue
		}
		switch strings.ToLower(fields[1]) {
		case "increase":
			decision[fields[0]] = VerdictFavor
		case "decrease":
			decision[fields[0]] = VerdictDisfavor
		default:
			results = append(results, LineResult{Line: i + 1, Raw: raw, Status: LineFlagged, Reason: "unknown verdict " + strconv.Quote(fields[1])})
			continue
		}
		results = append(results, LineResult{Line: i + 1, Raw: raw, Status: LineAccepted})
	}
	return decision, results
}

// ParseChoice extracts the single option named in a disambiguation reply.
// The text inside the brackets or fence is returned verbatim.
func ParseChoice(answer string) (string, LineResult) {
	text := strings.Trim(answer, "\n")
	switch {
	case len(text) >= 2 && strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		text = text[1 : len(text)-1]
	case len(text) >= 2*len(fence) && strings.HasPrefix(text, fence) && strings.HasSuffix(text, fence):
		text = strings.Trim(text[len(fence):len(text)-len(fence)], "\n")
	}
	if strings.TrimSpace(text) == "" {
		return "", LineResult{Line: 1, Raw: answer, Status: LineSkipped, Reason: "empty choice"}
	}
	return text, LineResult{Line: 1, Raw: answer, Status: LineAccepted}
}

var valuePattern = regexp.MustCompile(`(.*?)\s+([\[\(<\{]?(?:on|off|M|-?\d+|-->)[\]\)\}>]?)\s*($|\n)`)

// ParseValues extracts "label (value)" pairs from a value-recommendation
// reply. Non-blank lines that no match touched are reported as skipped.
func ParseValues(answer string) ([]ValuePair, []LineResult) {
	var pairs []ValuePair
	var results []LineResult

	lines := splitLines(answer)
	starts := make([]int, len(lines))
	offset := 0
	for i, l := range lines {
		starts[i] = offset
		offset += len(l) + 1
	}
	lineOf := func(pos int) int {
		n := 0
		for n+1 < len(starts) && starts[n+1] <= pos {
			n++
		}
		return n
	}

	normalized := strings.ReplaceAll(answer, "\r\n", "\n")
	covered := make([]bool, len(lines))
	for _, m := range valuePattern.FindAllStringSubmatchIndex(normalized, -1) {
		label := strings.TrimSpace(normalized[m[2]:m[3]])
		value := strings.Trim(normalized[m[4]:m[5]], "[](){}<>")
		first, last := lineOf(m[2]), lineOf(m[5]-1)
		for n := first; n <= last; n++ {
			covered[n] = true
		}
		if label == "" {
			results = append(results, LineResult{Line: first + 1, Raw: lines[first], Status: LineSkipped, Reason: "value without label"})
			continue
		}
		pairs = append(pairs, ValuePair{Label: label, Value: value})
		results = append(results, LineResult{Line: first + 1, Raw: lines[first], Status: LineAccepted})
	}

	for i, l := range lines {
		if !covered[i] && strings.TrimSpace(l) != "" && strings.TrimSpace(l) != fence {
			results = append(results, LineResult{Line: i + 1, Raw: l, Status: LineSkipped, Reason: "no value found"})
		}
	}
	return pairs, results
}

// CountStatus tallies results by status.
func CountStatus(results []LineResult) map[LineStatus]int {
	counts := make(map[LineStatus]int, 3)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
