// Package autostart registers the watch daemon to start at login.
package autostart

import (
	"errors"
	"runtime"
)

var ErrUnsupported = errors.New("autostart is not supported on this platform")

type AutoStarter interface {
	// Install registers execPath to run "watch" with the extra args.
	Install(execPath string, args ...string) error
	Uninstall() error
	IsInstalled() (bool, error)
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{}
	case "linux":
		return &LinuxAutoStarter{}
	default:
		return &UnsupportedAutoStarter{}
	}
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(string, ...string) error {
	return ErrUnsupported
}

func (u *UnsupportedAutoStarter) Uninstall() error {
	return ErrUnsupported
}

func (u *UnsupportedAutoStarter) IsInstalled() (bool, error) {
	return false, nil
}
