package domain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ScheduleEntry is one line of a schedule table. Comments, blank lines and
// environment assignments have an empty Command.
type ScheduleEntry struct {
	Raw        string
	Expression string
	Command    string
}

func (e ScheduleEntry) IsJob() bool {
	return e.Command != ""
}

// SameJob reports whether both entries run the same command at the same time,
// ignoring whitespace differences.
func (e ScheduleEntry) SameJob(other ScheduleEntry) bool {
	return e.IsJob() && other.IsJob() &&
		strings.Join(strings.Fields(e.Expression), " ") == strings.Join(strings.Fields(other.Expression), " ") &&
		strings.Join(strings.Fields(e.Command), " ") == strings.Join(strings.Fields(other.Command), " ")
}

// NewScheduleEntry builds an entry from its parts. The expression is not
// validated here.
func NewScheduleEntry(expression, command string) ScheduleEntry {
	expression = strings.TrimSpace(expression)
	command = strings.TrimSpace(command)
	return ScheduleEntry{
		Raw:        expression + " " + command,
		Expression: expression,
		Command:    command,
	}
}

// ParseScheduleLine classifies a raw table line. Raw is kept verbatim.
func ParseScheduleLine(line string) ScheduleEntry {
	entry := ScheduleEntry{Raw: line}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return entry
	}

	fieldCount := 5
	if strings.HasPrefix(trimmed, "@") {
		fieldCount = 1
	}

	fields, rest := splitFields(trimmed, fieldCount)
	if len(fields) < fieldCount || rest == "" {
		return entry
	}
	if strings.Contains(fields[0], "=") {
		return entry
	}

	entry.Expression = strings.Join(fields, " ")
	entry.Command = rest
	return entry
}

// splitFields returns the first n whitespace separated fields of s and the
// remainder with its leading whitespace removed.
func splitFields(s string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	for len(fields) < n {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return fields, ""
		}
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			fields = append(fields, s)
			return fields, ""
		}
		fields = append(fields, s[:end])
		s = s[end:]
	}
	return fields, strings.TrimLeft(s, " \t")
}

// ScheduleTable is the ordered content of a schedule table.
type ScheduleTable []ScheduleEntry

func ParseScheduleTable(text string) ScheduleTable {
	if text == "" {
		return ScheduleTable{}
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	table := make(ScheduleTable, 0, len(lines))
	for _, line := range lines {
		table = append(table, ParseScheduleLine(line))
	}
	return table
}

// Render joins the raw lines, newline terminated.
func (t ScheduleTable) Render() string {
	if len(t) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range t {
		b.WriteString(e.Raw)
		b.WriteByte('\n')
	}
	return b.String()
}

// Matching returns the entries carrying sig, in table order.
func (t ScheduleTable) Matching(sig Signature) []ScheduleEntry {
	var out []ScheduleEntry
	for _, e := range t {
		if sig.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Action is the caller's choice when the table already holds entries of
// this tool.
type Action int

const (
	ActionReplace Action = iota
	ActionAdd
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionReplace:
		return "replace"
	case ActionAdd:
		return "add"
	case ActionCancel:
		return "cancel"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace":
		return ActionReplace, nil
	case "add":
		return ActionAdd, nil
	case "cancel":
		return ActionCancel, nil
	}
	return 0, fmt.Errorf("unknown schedule action %q (want replace, add or cancel)", s)
}

// ScheduleEditPlan is the computed change to a table.
type ScheduleEditPlan struct {
	Action  Action
	Remove  []ScheduleEntry
	Add     []ScheduleEntry
	Result  ScheduleTable
	Changed bool
}

// Signature recognises commands launched by this tool. A command matches
// when its leading words equal the words of one of the launchers; the first
// word is compared by base name so absolute launcher paths match too. The
// first launcher is the one new entries are installed with.
type Signature struct {
	Launchers [][]string
}

func ParseSignature(launchers ...string) (Signature, error) {
	var sig Signature
	for _, launcher := range launchers {
		words, err := shellquote.Split(launcher)
		if err != nil {
			return Signature{}, fmt.Errorf("parse launcher %q: %w", launcher, err)
		}
		if len(words) == 0 {
			continue
		}
		sig.Launchers = append(sig.Launchers, words)
	}
	if len(sig.Launchers) == 0 {
		return Signature{}, fmt.Errorf("at least one launcher is required")
	}
	return sig, nil
}

// Primary returns the launcher words used for new entries.
func (s Signature) Primary() []string {
	if len(s.Launchers) == 0 {
		return nil
	}
	return s.Launchers[0]
}

func (s Signature) String() string {
	names := make([]string, 0, len(s.Launchers))
	for _, l := range s.Launchers {
		names = append(names, shellquote.Join(l...))
	}
	return strings.Join(names, " | ")
}

func (s Signature) Matches(e ScheduleEntry) bool {
	if !e.IsJob() {
		return false
	}
	words, err := shellquote.Split(e.Command)
	if err != nil {
		words = strings.Fields(e.Command)
	}
	words = skipAssignments(words)
	for _, launcher := range s.Launchers {
		if hasLauncher(words, launcher) {
			return true
		}
	}
	return false
}

func hasLauncher(words, launcher []string) bool {
	if len(launcher) == 0 || len(words) < len(launcher) {
		return false
	}
	if filepath.Base(words[0]) != filepath.Base(launcher[0]) {
		return false
	}
	for i := 1; i < len(launcher); i++ {
		if words[i] != launcher[i] {
			return false
		}
	}
	return true
}

// skipAssignments drops leading NAME=value words.
func skipAssignments(words []string) []string {
	for len(words) > 0 {
		name, _, ok := strings.Cut(words[0], "=")
		if !ok || name == "" || strings.ContainsAny(name, "/-.") {
			break
		}
		words = words[1:]
	}
	return words
}
