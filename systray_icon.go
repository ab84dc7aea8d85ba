package main

import (
	_ "embed"
	"log"

	"github.com/getlantern/systray"
)

//go:embed assets/icon.ico
var iconBytes []byte

// RunSystray runs the tray icon loop on the calling goroutine and
// blocks until systray.Quit is called. onReady fires once the tray is
// up, which is the earliest safe point to start the services.
func RunSystray(app *App, onReady func()) {
	systray.Run(
		func() {
			onSystrayReady(app)
			onReady()
		},
		func() { /* onExit, nothing to clean up */ },
	)
}

func onSystrayReady(app *App) {
	systray.SetIcon(iconBytes)
	systray.SetTooltip("Taskbar Hider - Right-click to quit")

	mQuit := systray.AddMenuItem("Quit", "Restore the taskbar and exit")

	go func() {
		<-mQuit.ClickedCh
		log.Printf("tray: quit clicked")
		app.RequestShutdown()
		systray.Quit()
	}()
}

// quitTray tears the tray icon down, unblocking RunSystray.
func quitTray() {
	systray.Quit()
}
