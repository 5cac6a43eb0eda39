package policy

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

type ReplaceAction string

const (
	// ActionSkip keeps the existing destination file and drops the incoming one.
	ActionSkip ReplaceAction = "SKIP"
	// ActionReplace always overwrites the destination.
	ActionReplace ReplaceAction = "REPLACE"
	// ActionRename keeps both files by moving the incoming one to name.N.ext.
	ActionRename ReplaceAction = "RENAME"
	// ActionCheckReplace replaces when contents are identical and renames otherwise.
	ActionCheckReplace ReplaceAction = "CHECK_REPLACE"
)

var replaceActions = []ReplaceAction{ActionSkip, ActionReplace, ActionRename, ActionCheckReplace}

func ParseReplaceAction(s string) (ReplaceAction, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	if norm == "CHECK" {
		norm = string(ActionCheckReplace)
	}

	a := ReplaceAction(norm)
	if !a.Valid() {
		return "", fmt.Errorf("unknown replace action: %q", s)
	}

	return a, nil
}

func (a ReplaceAction) Valid() bool {
	return slices.Contains(replaceActions, a)
}

// ReplacePolicy picks the conflict action for a merged file by its extension.
// Extension keys are matched case-sensitively and carry no leading dot.
type ReplacePolicy struct {
	ByExtension map[string]ReplaceAction `mapstructure:"ext"`
	Default     ReplaceAction            `mapstructure:"default"`
}

func (p ReplacePolicy) Lookup(path string) ReplaceAction {
	if a, ok := p.ByExtension[Ext(filepath.Base(path))]; ok {
		return a
	}

	return p.Default
}

func (p ReplacePolicy) Validate() error {
	if !p.Default.Valid() {
		return fmt.Errorf("invalid default replace action: %q", p.Default)
	}

	for ext, a := range p.ByExtension {
		if !a.Valid() {
			return fmt.Errorf("invalid replace action %q for extension %q", a, ext)
		}
	}

	return nil
}

// With returns a copy of p with ext mapped to a.
func (p ReplacePolicy) With(ext string, a ReplaceAction) ReplacePolicy {
	out := ReplacePolicy{
		ByExtension: maps.Clone(p.ByExtension),
		Default:     p.Default,
	}
	if out.ByExtension == nil {
		out.ByExtension = make(map[string]ReplaceAction)
	}
	out.ByExtension[strings.TrimPrefix(ext, ".")] = a

	return out
}

func (p ReplacePolicy) String() string {
	if len(p.ByExtension) == 0 {
		return string(p.Default)
	}

	exts := slices.Sorted(maps.Keys(p.ByExtension))
	parts := make([]string, 0, len(exts))
	for _, ext := range exts {
		parts = append(parts, ext+"="+string(p.ByExtension[ext]))
	}

	return fmt.Sprintf("%s (%s)", p.Default, strings.Join(parts, " "))
}

// ChartExtensions are the chart and text formats an update pack may revise.
var ChartExtensions = []string{"bms", "bme", "bml", "pms", "bmson", "txt"}

func DefaultReplacePolicy() ReplacePolicy {
	return ReplacePolicy{Default: ActionReplace}
}

// UpdatePackReplacePolicy compares chart files before overwriting them so that
// a revised chart never replaces a different one silently.
func UpdatePackReplacePolicy() ReplacePolicy {
	p := ReplacePolicy{
		ByExtension: make(map[string]ReplaceAction, len(ChartExtensions)),
		Default:     ActionReplace,
	}
	for _, ext := range ChartExtensions {
		p.ByExtension[ext] = ActionCheckReplace
	}

	return p
}

func ReplacePreset(name string) (ReplacePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "replace", "default":
		return DefaultReplacePolicy(), nil
	case "update-pack", "update":
		return UpdatePackReplacePolicy(), nil
	case "skip":
		return ReplacePolicy{Default: ActionSkip}, nil
	case "rename":
		return ReplacePolicy{Default: ActionRename}, nil
	case "check", "check-replace":
		return ReplacePolicy{Default: ActionCheckReplace}, nil
	default:
		return ReplacePolicy{}, fmt.Errorf("unknown replace policy: %q", name)
	}
}

// Ext returns the text after the last dot of a file name, without the dot.
// Names without a dot, or whose only dot is the leading one, have no extension.
func Ext(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}

	return name[i+1:]
}

// Stem returns name without its extension and the dot before it.
func Stem(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name
	}

	return name[:i]
}
