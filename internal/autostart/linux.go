package autostart

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

const unitName = "cabinet.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Cabinet mirror daemon

[Service]
ExecStart={{.Command}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))

type LinuxAutoStarter struct {
	// Dir overrides ~/.config/systemd/user.
	Dir string
	// Skip running systemctl after the unit file changes.
	NoReload bool
}

func (l *LinuxAutoStarter) unitPath() (string, error) {
	dir := l.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, unitName), nil
}

func writeUnit(w io.Writer, execPath string, args []string) error {
	words := append([]string{execPath, "watch"}, args...)
	for i, word := range words {
		if strings.ContainsAny(word, " \t\"") {
			words[i] = `"` + strings.ReplaceAll(word, `"`, `\"`) + `"`
		}
	}

	return unitTemplate.Execute(w, map[string]string{"Command": strings.Join(words, " ")})
}

func (l *LinuxAutoStarter) Install(execPath string, args ...string) error {
	path, err := l.unitPath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create unit file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := writeUnit(f, execPath, args); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if l.NoReload {
		return nil
	}

	for _, args := range [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", "--now", unitName},
	} {
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

func (l *LinuxAutoStarter) Uninstall() error {
	if !l.NoReload {
		_ = exec.Command("systemctl", "--user", "disable", "--now", unitName).Run()
	}

	path, err := l.unitPath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.unitPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}
