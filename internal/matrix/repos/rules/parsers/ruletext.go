package parsers

import (
	"bufio"
	"io"
	"sort"
	"strings"

	logpkg "github.com/haukened/rr-matrix/internal/matrix/common/log"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

// RuleSet is the explicit state carried by a block of rule text.
type RuleSet struct {
	Rules    []domain.Rule
	Switches []domain.SwitchRule
}

// Len returns the number of explicit entries.
func (s RuleSet) Len() int { return len(s.Rules) + len(s.Switches) }

// maxRuleLine bounds a single line of rule text. Longer lines are skipped.
const maxRuleLine = 64 * 1024

// ParseRuleText parses rule text, one rule per line:
//
//	scope hostname type state     e.g. "* ads.example.com script block"
//	matrix-off: scope value       e.g. "matrix-off: example.com true"
//
// The switch value is case-insensitive. "true", "on", "1" and "yes" turn
// filtering off for the scope; "false", "off", "0" and "no" turn it on. The
// value answers "is matrix-off set", so "matrix-off: example.com on" disables
// filtering.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Skips blank lines and lines that fail to parse; a bad line never aborts the parse
// - Skips lines longer than maxRuleLine bytes without buffering them
// - Canonicalizes scopes and hostnames (lowercase, no trailing dot)
// - A later line for the same key overwrites an earlier one, keeping first-seen order
//
// Only reader errors are returned.
func ParseRuleText(r io.Reader, source string, logger logpkg.Logger) (RuleSet, error) {
	br := bufio.NewReader(r)

	var out RuleSet
	cellIdx := make(map[domain.CellKey]int)
	switchIdx := make(map[string]int)

	logger.Debug(map[string]any{"source": source}, "parse_rule_text_start")
	lineNum := 0
	for {
		raw, tooLong, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_rule_text_read_error")
			return RuleSet{}, err
		}
		lineNum++
		if tooLong {
			logger.Debug(map[string]any{"line": lineNum, "reason": "line too long"}, "skip_invalid_rule")
			continue
		}
		line := stripLine(raw)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		if strings.EqualFold(fields[0], switchDirective) {
			sw, ok := parseSwitchLine(fields)
			if !ok {
				logger.Debug(map[string]any{"line": lineNum, "raw": line}, "skip_invalid_switch")
				continue
			}
			if i, seen := switchIdx[sw.Scope]; seen {
				out.Switches[i] = sw
				continue
			}
			switchIdx[sw.Scope] = len(out.Switches)
			out.Switches = append(out.Switches, sw)
			continue
		}

		rule, ok := parseCellLine(fields)
		if !ok {
			logger.Debug(map[string]any{"line": lineNum, "raw": line}, "skip_invalid_rule")
			continue
		}
		if i, seen := cellIdx[rule.CellKey]; seen {
			out.Rules[i] = rule
			continue
		}
		cellIdx[rule.CellKey] = len(out.Rules)
		out.Rules = append(out.Rules, rule)
	}

	logger.Debug(map[string]any{"source": source, "rules": len(out.Rules), "switches": len(out.Switches)}, "parse_rule_text_done")
	return out, nil
}

// readLine returns the next line without its terminator. A line longer than
// maxRuleLine is drained and reported with tooLong set. io.EOF is returned
// only once no data is left.
func readLine(br *bufio.Reader) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > maxRuleLine {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

func parseCellLine(fields []string) (domain.Rule, bool) {
	if len(fields) != 4 {
		return domain.Rule{}, false
	}
	t, err := domain.ParseRequestType(fields[2])
	if err != nil {
		return domain.Rule{}, false
	}
	h, err := domain.ParseHue(fields[3])
	if err != nil {
		return domain.Rule{}, false
	}
	rule, err := domain.NewRule(fields[0], fields[1], t, h)
	if err != nil {
		return domain.Rule{}, false
	}
	return rule, true
}

func parseSwitchLine(fields []string) (domain.SwitchRule, bool) {
	if len(fields) != 3 {
		return domain.SwitchRule{}, false
	}
	off, ok := parseOff(fields[2])
	if !ok {
		return domain.SwitchRule{}, false
	}
	sw, err := domain.NewSwitchRule(fields[1], !off)
	if err != nil {
		return domain.SwitchRule{}, false
	}
	return sw, true
}

// FormatRuleText renders explicit state in canonical form: switch lines
// first, then cell lines, each block sorted.
func FormatRuleText(set RuleSet) string {
	switches := append([]domain.SwitchRule(nil), set.Switches...)
	sort.Slice(switches, func(i, j int) bool { return switches[i].Scope < switches[j].Scope })
	rules := append([]domain.Rule(nil), set.Rules...)
	sort.Slice(rules, func(i, j int) bool { return rules[i].CellKey.Less(rules[j].CellKey) })

	var b strings.Builder
	for _, sw := range switches {
		b.WriteString(switchDirective)
		b.WriteByte(' ')
		b.WriteString(sw.Scope)
		if sw.Enabled {
			b.WriteString(" false\n")
		} else {
			b.WriteString(" true\n")
		}
	}
	for _, r := range rules {
		b.WriteString(r.CellKey.String())
		b.WriteByte(' ')
		b.WriteString(r.Hue.String())
		b.WriteByte('\n')
	}
	return b.String()
}
