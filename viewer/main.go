// viewer is the desktop front end of the tracker: it runs the pipeline
// in-process against the sensor bridge (or the simulated sensor) and plots
// every processed window with its vitals.
package main

import (
	"flag"
	"fmt"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/config"
	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/scope"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag    = flag.Bool("mock", false, "Use the simulated sensor instead of the serial port")
		historyFlag = flag.Int("history", scope.DefaultHistory, "Number of windows kept on screen")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	logger, err := logging.FromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	application := app.NewWithID("com.itohio.goppg")

	window := application.NewWindow("PPG Tracker")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		window:     window,
		useMock:    *mockFlag,
		logger:     logger.Named("viewer"),
	}
	state.scopeWidget = scope.New(*historyFlag)

	toolbar := createToolbar(state)
	window.SetContent(container.NewBorder(toolbar, nil, nil, nil, state.scopeWidget))
	window.SetOnClosed(func() {
		state.disconnect()
	})
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	window      fyne.Window
	scopeWidget *scope.ScopeWidget
	logger      *zap.Logger
	useMock     bool

	connectBtn *widget.Button
	startBtn   *widget.Button
	stopBtn    *widget.Button
	ledBtn     *widget.Button
	resetBtn   *widget.Button

	session *session // nil if not connected
}

// createToolbar creates the toolbar with Connect, Settings and the device
// command buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	state.connectBtn = widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.startBtn = widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() {
		sendCommand(state, "START")
	})
	state.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
		sendCommand(state, "STOP")
	})
	state.ledBtn = widget.NewButtonWithIcon("LED", theme.VisibilityIcon(), func() {
		sendCommand(state, "LED_TEST")
	})
	state.resetBtn = widget.NewButtonWithIcon("Reset", theme.ViewRefreshIcon(), func() {
		sendCommand(state, "RESET")
	})
	setCommandsEnabled(state, false)

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(state.connectBtn, settingsBtn),
		container.NewHBox(state.startBtn, state.stopBtn, state.ledBtn, state.resetBtn),
		nil,
	)
}

func setCommandsEnabled(state *appState, enabled bool) {
	for _, btn := range []*widget.Button{state.startBtn, state.stopBtn, state.ledBtn, state.resetBtn} {
		if enabled {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.session != nil {
		state.disconnect()
		return
	}

	s, err := openSession(state.cfg, state.useMock, state.logger)
	if err != nil {
		if state.useMock {
			dialog.ShowError(fmt.Errorf("failed to connect to simulated sensor: %w", err), state.window)
		} else {
			dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
		}
		return
	}

	scopeWidget := state.scopeWidget
	scopeWidget.Clear()
	s.onResult(func(w windowUpdate) {
		fyne.Do(func() {
			scopeWidget.UpdateWindow(&w.window, w.report)
		})
	})
	s.onMode(func(mode string) {
		fyne.Do(func() {
			scopeWidget.SetStatus(mode)
		})
	})
	s.start()

	state.session = s
	state.connectBtn.SetIcon(theme.LogoutIcon())
	setCommandsEnabled(state, true)
}

// disconnect stops the running session, if any.
func (state *appState) disconnect() {
	if state.session == nil {
		return
	}
	state.session.close()
	state.session = nil

	state.connectBtn.SetIcon(theme.LoginIcon())
	setCommandsEnabled(state, false)
	state.scopeWidget.SetStatus("DISCONNECTED")
}

func sendCommand(state *appState, cmd string) {
	if state.session == nil {
		return
	}
	resp := state.session.device.HandleCommand(cmd)
	state.logger.Debug("command", zap.String("command", cmd), zap.String("response", resp))
	if !isOK(resp) {
		dialog.ShowInformation(cmd, resp, state.window)
	}
}
