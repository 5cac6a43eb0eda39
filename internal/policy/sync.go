package policy

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

type SyncAction string

const (
	SyncNone SyncAction = "NONE"
	SyncCopy SyncAction = "COPY"
	SyncMove SyncAction = "MOVE"
)

func ParseSyncAction(s string) (SyncAction, error) {
	switch a := SyncAction(strings.ToUpper(strings.TrimSpace(s))); a {
	case SyncNone, SyncCopy, SyncMove:
		return a, nil
	case "":
		return SyncCopy, nil
	default:
		return "", fmt.Errorf("unknown sync action: %q", s)
	}
}

// ShadowPair suppresses syncing a file with a From extension when a file with
// the same stem and one of the To extensions already exists at the destination.
type ShadowPair struct {
	From []string `mapstructure:"from"`
	To   []string `mapstructure:"to"`
}

type SyncPolicy struct {
	Name                   string       `mapstructure:"name"`
	AllowExtensions        []string     `mapstructure:"allow"`
	DenyExtensions         []string     `mapstructure:"deny"`
	AllowOthers            bool         `mapstructure:"allow_others"`
	ShadowPairs            []ShadowPair `mapstructure:"shadow"`
	CheckSize              bool         `mapstructure:"check_size"`
	CheckModTime           bool         `mapstructure:"check_mtime"`
	CheckHash              bool         `mapstructure:"check_hash"`
	RemoveSourceOnMatch    bool         `mapstructure:"remove_source_on_match"`
	PruneDestinationExtras bool         `mapstructure:"prune"`
	Action                 SyncAction   `mapstructure:"action"`
	FoldCase               bool         `mapstructure:"fold_case"`
}

func (p SyncPolicy) Validate() error {
	switch p.Action {
	case SyncNone, SyncCopy, SyncMove:
	default:
		return fmt.Errorf("invalid sync action: %q", p.Action)
	}

	for i, pair := range p.ShadowPairs {
		if len(pair.From) == 0 || len(pair.To) == 0 {
			return fmt.Errorf("shadow pair %d needs both from and to extensions", i)
		}
	}

	return nil
}

// NormalizeExt applies the policy's case folding to an extension.
func (p SyncPolicy) NormalizeExt(ext string) string {
	if p.FoldCase {
		return strings.ToLower(ext)
	}

	return ext
}

// Allowed reports whether files with ext take part in the sync. An explicitly
// allowed extension wins over the deny list.
func (p SyncPolicy) Allowed(ext string) bool {
	if slices.Contains(p.AllowExtensions, ext) {
		return true
	}

	return p.AllowOthers && !slices.Contains(p.DenyExtensions, ext)
}

// ShadowTargets lists the extensions whose presence at the destination
// suppresses a file with ext, in rule order.
func (p SyncPolicy) ShadowTargets(ext string) []string {
	var out []string
	for _, pair := range p.ShadowPairs {
		if slices.Contains(pair.From, ext) {
			out = append(out, pair.To...)
		}
	}

	return out
}

// Mutates reports whether running the policy can change either tree.
func (p SyncPolicy) Mutates() bool {
	return p.Action != SyncNone || p.RemoveSourceOnMatch || p.PruneDestinationExtras
}

func (p SyncPolicy) String() string {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteString(": ")
	b.WriteString(strings.ToLower(string(p.Action)))

	if p.AllowOthers {
		b.WriteString(", any extension")
	}
	if len(p.AllowExtensions) > 0 {
		fmt.Fprintf(&b, ", allow %v", p.AllowExtensions)
	}
	if len(p.DenyExtensions) > 0 {
		fmt.Fprintf(&b, ", deny %v", p.DenyExtensions)
	}
	for _, pair := range p.ShadowPairs {
		fmt.Fprintf(&b, ", %v shadowed by %v", pair.From, pair.To)
	}
	if p.RemoveSourceOnMatch {
		b.WriteString(", remove matched source files")
	}
	if p.PruneDestinationExtras {
		b.WriteString(", prune destination extras")
	}

	var checks []string
	if p.CheckSize {
		checks = append(checks, "size")
	}
	if p.CheckModTime {
		checks = append(checks, "mtime")
	}
	if p.CheckHash {
		checks = append(checks, "sha512")
	}
	if len(checks) > 0 {
		b.WriteString(", check ")
		b.WriteString(strings.Join(checks, "+"))
	}

	return b.String()
}

func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		Name:                   "default",
		AllowOthers:            true,
		CheckSize:              true,
		CheckModTime:           true,
		PruneDestinationExtras: true,
		Action:                 SyncCopy,
		FoldCase:               true,
	}
}

// AppendSyncPolicy thins a working copy down to the files that differ from a
// reference tree without touching the reference.
func AppendSyncPolicy() SyncPolicy {
	p := DefaultSyncPolicy()
	p.Name = "append"
	p.CheckModTime = false
	p.CheckHash = true
	p.RemoveSourceOnMatch = true
	p.PruneDestinationExtras = false
	p.Action = SyncNone

	return p
}

func mediaOnly(name string, action SyncAction, exts ...string) SyncPolicy {
	p := DefaultSyncPolicy()
	p.Name = name
	p.AllowExtensions = exts
	p.AllowOthers = false
	p.PruneDestinationExtras = false
	p.Action = action

	return p
}

var builtinSyncPresets = map[string]func() SyncPolicy{
	"default": DefaultSyncPolicy,
	"append":  AppendSyncPolicy,
	"flac":    func() SyncPolicy { return mediaOnly("flac", SyncCopy, "flac") },
	"video":   func() SyncPolicy { return mediaOnly("video", SyncCopy, "mp4", "avi") },
	"cache":   func() SyncPolicy { return mediaOnly("cache", SyncNone, "mp4", "avi", "flac") },
}

// SyncPreset resolves a preset name against custom presets first and the
// built-in ones second.
func SyncPreset(name string, custom map[string]SyncPolicy) (SyncPolicy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "default"
	}

	if p, ok := custom[key]; ok {
		if p.Name == "" {
			p.Name = key
		}
		action, err := ParseSyncAction(string(p.Action))
		if err != nil {
			return SyncPolicy{}, fmt.Errorf("preset %s: %w", key, err)
		}
		p.Action = action
		if err := p.Validate(); err != nil {
			return SyncPolicy{}, fmt.Errorf("preset %s: %w", key, err)
		}
		return p, nil
	}

	if f, ok := builtinSyncPresets[key]; ok {
		return f(), nil
	}

	return SyncPolicy{}, fmt.Errorf("unknown sync preset: %q", name)
}

func SyncPresetNames(custom map[string]SyncPolicy) []string {
	names := slices.Collect(maps.Keys(builtinSyncPresets))
	for name := range custom {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	return names
}
