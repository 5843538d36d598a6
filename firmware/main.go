//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

var (
	i2c  = machine.I2C0
	uart = machine.UART0

	ppg sensor
	led = indicator{current: 'D'}

	// Timing
	lastRead time.Time
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED.Set(LED_OFF)

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	i2c.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
	})
	ppg = sensor{bus: i2c}

	start := time.Now()
	led.since = start

	// Without a sensor the bridge stays up, blinking the fault pattern and
	// streaming nothing; the host reports the missing data.
	sensorOK := ppg.configure() == nil
	if !sensorOK {
		led.set('F', start)
	}

	for {
		now := time.Now()

		processSerial(now)

		if sensorOK && now.Sub(lastRead) >= SAMPLE_INTERVAL_MS*time.Millisecond {
			lastRead = now
			red, ir, ok, err := ppg.latest()
			switch {
			case err != nil:
				sensorOK = false
				ppg.shutdown()
				led.set('F', now)
			case ok:
				outputSample(now.Sub(start).Microseconds(), red, ir)
			}
		}

		if led.update(now) {
			PIN_LED.Set(LED_ON)
		} else {
			PIN_LED.Set(LED_OFF)
		}

		time.Sleep(time.Millisecond)
	}
}

// outputSample writes "micros,red,ir\n".
func outputSample(micros int64, red, ir uint32) {
	print(micros)
	print(",")
	print(red)
	print(",")
	print(ir)
	print("\n")
}

// processSerial reads single-letter intent commands ("C\n").
func processSerial(now time.Time) {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}
		switch data {
		case 'I', 'C', 'P', 'D', 'T', 'F':
			led.set(data, now)
		}
	}
}
