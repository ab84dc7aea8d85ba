package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	app := NewApp(NewTaskbarService(), NewWinKeyService(), NewShellWatchService())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C or a service-manager stop restores the taskbar before exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("app: signal received")
		app.RequestShutdown()
		quitTray()
	}()

	RunSystray(app, func() {
		if err := app.Startup(ctx); err != nil {
			log.Fatalf("fatal: %v", err)
		}
	})

	// Tray loop has exited. Idempotent if the Quit handler already ran.
	app.RequestShutdown()
}
