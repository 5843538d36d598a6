//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 25 // 40 Hz, the host window rate
	SENSOR_RATE        = sr100
	SENSOR_PULSE_WIDTH = pw411 // 18-bit ADC resolution
	SENSOR_ADC_RANGE   = adcRange16384
	SENSOR_LED_CURRENT = 0x24 // ~7 mA, 0.2 mA per LSB

	// Indicator LED
	PIN_LED = machine.LED
	LED_ON  = false // active low on the xiao
	LED_OFF = true

	// I2C
	I2C_FREQUENCY = 400 * machine.KHz

	// Serial configuration
	// Format "micros,red,ir\n". Example: "86400000000,262143,262143\n" = 27 bytes per line after a day up
	// 40 lines/sec * 27 bytes/line = 1,080 bytes/sec
	// 115200 8N1 carries 11,520 bytes/sec, ~10x headroom
	UART_BAUD_RATE = 115200
)
