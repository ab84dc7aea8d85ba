//go:build !windows

package main

import "errors"

// ErrNotSupported is what the platform backends return anywhere but
// Windows. The package still compiles so the core logic and its tests
// run on any OS; only the real backends are Windows-bound.
var ErrNotSupported = errors.New("taskbar-hider requires the Windows shell")

type stubTaskbarBackend struct{}

func newTaskbarBackend() taskbarBackend { return stubTaskbarBackend{} }

func (stubTaskbarBackend) Locate() (uintptr, error)        { return 0, ErrNotSupported }
func (stubTaskbarBackend) Valid(uintptr) bool              { return false }
func (stubTaskbarBackend) SetVisible(uintptr, bool) error  { return ErrNotSupported }
func (stubTaskbarBackend) SetAutoHide(uintptr, bool) error { return ErrNotSupported }

type stubKeyHookBackend struct{}

func newKeyHookBackend() keyHookBackend { return stubKeyHookBackend{} }

func (stubKeyHookBackend) Install() error          { return ErrNotSupported }
func (stubKeyHookBackend) Uninstall() error        { return nil }
func (stubKeyHookBackend) Events() <-chan KeyEvent { return nil }

type stubShellHookBackend struct{}

func newShellHookBackend() shellHookBackend { return stubShellHookBackend{} }

func (stubShellHookBackend) Install() error                  { return ErrNotSupported }
func (stubShellHookBackend) Uninstall() error                { return nil }
func (stubShellHookBackend) Events() <-chan ForegroundEvent  { return nil }
func (stubShellHookBackend) TaskbarCreated() <-chan struct{} { return nil }
