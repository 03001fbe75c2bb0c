package main

import (
	"fmt"
	"io"
	"log"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/itohio/gobl0910/pkg/bl0910"
	"github.com/itohio/gobl0910/pkg/config"
	"github.com/itohio/gobl0910/pkg/meter"
	"github.com/itohio/gobl0910/pkg/reading"
	"github.com/itohio/gobl0910/pkg/simulator"
	"github.com/itohio/gobl0910/pkg/transport"
)

// openTransport opens the link selected by cfg, or a simulated device.
// The returned mode string is used for logging.
func openTransport(cfg *config.Config, mock bool) (transport.Transport, string, error) {
	if mock {
		return simulator.New(&cfg.Mock, cfg.Reference), "mock", nil
	}

	switch cfg.Transport.Mode {
	case config.ModeSPI:
		if _, err := host.Init(); err != nil {
			return nil, "", fmt.Errorf("failed to initialize periph host: %w", err)
		}
		t, err := transport.OpenSPI(cfg.Transport.SPIDevice, physic.Frequency(cfg.Transport.SPIHz)*physic.Hertz)
		if err != nil {
			return nil, "", err
		}
		return t, "SPI", nil
	case config.ModeUART:
		t, err := transport.OpenSerial(cfg.Transport.Port, cfg.Transport.BaudRate, cfg.Transport.ReadTimeout)
		if err != nil {
			return nil, "", err
		}
		return t, "UART", nil
	}
	return nil, "", fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
}

// measurementChain tracks the components between the device and the meter
// for graceful shutdown.
type measurementChain struct {
	link           transport.Transport
	device         *bl0910.Device
	stream         *reading.Stream
	meter          *meter.Meter
	meterGoroutine chan struct{} // Closed when the meter goroutine exits
}

// newMeasurementChain binds every enabled measurement of cfg to a reading
// stream, optionally averaged, and starts feeding the meter.
func newMeasurementChain(cfg *config.Config, link transport.Transport) *measurementChain {
	c := &measurementChain{
		link:           link,
		device:         bl0910.New(link, cfg.Reference),
		stream:         reading.NewStream(4 * len(bl0910.Measurements(cfg))),
		meter:          meter.New(cfg),
		meterGoroutine: make(chan struct{}),
	}

	for _, m := range bl0910.Measurements(cfg) {
		c.device.Bind(m, c.stream.Sink(m))
	}

	readings := c.stream.Readings()
	if cfg.Measurement.AverageSamples > 0 {
		readings = reading.NewAveragingConverter(cfg.Measurement.AverageSamples, 0)(readings)
	}

	go func() {
		defer close(c.meterGoroutine)
		c.meter.ProcessReadings(readings)
	}()

	return c
}

// Close stops the stream, waits for the meter to drain and closes the link.
// The device must no longer be running.
func (c *measurementChain) Close() {
	c.stream.Close()
	<-c.meterGoroutine

	if closer, ok := c.link.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Printf("Error closing transport: %v", err)
		}
	}
}

// logSummary logs the windowed statistics of every measurement seen.
func logSummary(m *meter.Meter) {
	for _, meas := range m.Measurements() {
		s, ok := m.Stats(meas)
		if !ok {
			continue
		}
		unit := meas.Quantity.Unit()
		log.Printf("%-16s last %.4f %s, min %.4f, max %.4f, mean %.4f over %d readings",
			meas, s.Last.Value, unit, s.Min, s.Max, s.Mean, s.Count)
		if meas.Quantity == bl0910.Energy || meas.Quantity == bl0910.TotalEnergy {
			if rate, ok := m.Rate(meas); ok {
				log.Printf("%-16s mean power %.4f kW", meas, rate)
			}
		}
	}
}
