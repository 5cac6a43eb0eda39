package autostart

import (
	"fmt"
	"os/exec"
	"strings"
)

const taskName = "CabinetDaemon"

type WindowsAutoStarter struct{}

func (w *WindowsAutoStarter) Install(execPath string, args ...string) error {
	run := fmt.Sprintf(`"%s" watch`, execPath)
	if len(args) > 0 {
		run += " " + strings.Join(args, " ")
	}

	out, err := exec.Command("schtasks", "/create",
		"/TN", taskName,
		"/TR", run,
		"/SC", "ONLOGON",
		"/F").CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall() error {
	out, err := exec.Command("schtasks", "/delete", "/TN", taskName, "/F").CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	return exec.Command("schtasks", "/query", "/TN", taskName).Run() == nil, nil
}
