package main

import (
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/goppg/pkg/activity"
	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/sensor"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
// Pipeline settings apply on the next connect; mock signal settings apply immediately.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createSamplingTab(state),
		createVitalsTab(state),
		createActivityTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func saveConfig(state *appState) {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

func parseFloat32(s string) (float32, bool) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := sensor.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name -> port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected
				}
				state.cfg.Serial.Port = selectedPort
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				state.cfg.Serial.BaudRate = baud
			}
			saveConfig(state)

			// Reconnect on the new port.
			if state.session != nil && !state.useMock {
				state.disconnect()
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createSamplingTab creates the Sampling configuration tab.
func createSamplingTab(state *appState) *container.TabItem {
	rateEntry := widget.NewEntry()
	rateEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Sampling.RateHz))

	policySelect := widget.NewSelect([]string{
		sample.StallOverwrite.String(),
		sample.StallKeepPending.String(),
	}, nil)
	policySelect.SetSelected(state.cfg.Sampling.StallPolicy)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Sample Rate (Hz)", Widget: rateEntry},
			{Text: "When Processing Stalls", Widget: policySelect},
		},
		OnSubmit: func() {
			if rate, ok := parseFloat32(rateEntry.Text); ok && rate > 0 {
				state.cfg.Sampling.RateHz = rate
			}
			if policySelect.Selected != "" {
				state.cfg.Sampling.StallPolicy = policySelect.Selected
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Sampling", form)
}

// createVitalsTab creates the Vitals configuration tab.
func createVitalsTab(state *appState) *container.TabItem {
	v := &state.cfg.Vitals

	minHR := widget.NewEntry()
	minHR.SetText(fmt.Sprintf("%.0f", v.MinHeartRate))
	maxHR := widget.NewEntry()
	maxHR.SetText(fmt.Sprintf("%.0f", v.MaxHeartRate))
	magnitude := widget.NewEntry()
	magnitude.SetText(fmt.Sprintf("%.1f", v.MagnitudeThreshold))
	peakRatio := widget.NewEntry()
	peakRatio.SetText(fmt.Sprintf("%.2f", v.PeakThresholdRatio))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Min Heart Rate (bpm)", Widget: minHR},
			{Text: "Max Heart Rate (bpm)", Widget: maxHR},
			{Text: "FFT Magnitude Threshold", Widget: magnitude},
			{Text: "Peak Threshold Ratio", Widget: peakRatio},
		},
		OnSubmit: func() {
			if x, ok := parseFloat32(minHR.Text); ok {
				v.MinHeartRate = x
			}
			if x, ok := parseFloat32(maxHR.Text); ok {
				v.MaxHeartRate = x
			}
			if x, ok := parseFloat32(magnitude.Text); ok {
				v.MagnitudeThreshold = x
			}
			if x, ok := parseFloat32(peakRatio.Text); ok {
				v.PeakThresholdRatio = x
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Vitals", form)
}

// createActivityTab creates the Activity configuration tab.
func createActivityTab(state *appState) *container.TabItem {
	a := &state.cfg.Activity

	enabled := widget.NewCheck("", nil)
	enabled.SetChecked(a.Enabled)
	modelEntry := widget.NewEntry()
	modelEntry.SetPlaceHolder(fmt.Sprintf("empty = heuristic, %q = built-in", activity.BuiltinModel))
	modelEntry.SetText(a.ModelPath)
	high := widget.NewEntry()
	high.SetText(fmt.Sprintf("%.0f", a.HighVariance))
	low := widget.NewEntry()
	low.SetText(fmt.Sprintf("%.0f", a.LowVariance))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Classification Enabled", Widget: enabled},
			{Text: "Model", Widget: modelEntry},
			{Text: "High Motion Variance", Widget: high},
			{Text: "Low Motion Variance", Widget: low},
		},
		OnSubmit: func() {
			if _, err := activity.LoadEngine(modelEntry.Text); err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			a.Enabled = enabled.Checked
			a.ModelPath = modelEntry.Text
			if x, ok := parseFloat32(high.Text); ok {
				a.HighVariance = x
			}
			if x, ok := parseFloat32(low.Text); ok {
				a.LowVariance = x
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Activity", form)
}

// createMockTab creates the simulated sensor configuration tab.
func createMockTab(state *appState) *container.TabItem {
	m := &state.cfg.Mock

	heartRate := widget.NewEntry()
	heartRate.SetText(fmt.Sprintf("%.0f", m.HeartRate))

	names := make([]string, activity.NumClasses)
	for i := range names {
		names[i] = activity.Name(i)
	}
	activitySelect := widget.NewSelect(names, nil)
	activitySelect.SetSelected(m.Activity)

	noise := widget.NewEntry()
	noise.SetText(fmt.Sprintf("%.1f", m.NoiseLevel))
	missRate := widget.NewEntry()
	missRate.SetText(fmt.Sprintf("%.3f", m.MissRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Heart Rate (bpm)", Widget: heartRate},
			{Text: "Activity", Widget: activitySelect},
			{Text: "Noise Level", Widget: noise},
			{Text: "Miss Rate", Widget: missRate},
		},
		OnSubmit: func() {
			if x, ok := parseFloat32(heartRate.Text); ok && x > 0 {
				m.HeartRate = x
			}
			if activitySelect.Selected != "" {
				m.Activity = activitySelect.Selected
			}
			if x, ok := parseFloat32(noise.Text); ok && x >= 0 {
				m.NoiseLevel = x
			}
			if x, ok := parseFloat32(missRate.Text); ok && x >= 0 && x < 1 {
				m.MissRate = x
			}
			saveConfig(state)

			if state.session == nil {
				return
			}
			if mock := state.session.mock(); mock != nil {
				mock.SetHeartRate(m.HeartRate)
				if class, err := activity.Parse(m.Activity); err == nil {
					mock.SetActivity(class)
				}
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
