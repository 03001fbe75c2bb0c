package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/gobl0910/pkg/config"
	"github.com/itohio/gobl0910/pkg/reading"
	"github.com/itohio/gobl0910/pkg/transport"
)

func main() {
	var (
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		modeFlag           = flag.String("mode", "", "Transport mode override (uart or spi)")
		mockFlag           = flag.Bool("mock", false, "Use a simulated device instead of the transport")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of readings to average (0 = disabled, overrides config)")
		resetEnergyFlag    = flag.Bool("reset-energy", false, "Reset the energy counters after connecting")
		listFlag           = flag.Bool("list", false, "List serial ports and exit")
		quietFlag          = flag.Bool("quiet", false, "Do not log individual readings")
	)
	flag.Parse()

	if *listFlag {
		if err := listPorts(); err != nil {
			log.Fatalf("Failed to list serial ports: %v", err)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line overrides
	if *portFlag != "" {
		cfg.Transport.Port = *portFlag
	}
	if *modeFlag != "" {
		cfg.Transport.Mode = *modeFlag
	}
	if *averageSamplesFlag >= 0 {
		cfg.Measurement.AverageSamples = *averageSamplesFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	link, mode, err := openTransport(cfg, *mockFlag)
	if err != nil {
		log.Fatalf("Failed to open transport: %v", err)
	}

	chain := newMeasurementChain(cfg, link)
	if !*quietFlag {
		chain.meter.OnUpdate(func(r reading.Reading) {
			log.Printf("%-16s %12.4f %s", r.Measurement, r.Value, r.Measurement.Quantity.Unit())
		})
	}
	chain.device.DumpConfig(mode)

	if *resetEnergyFlag {
		chain.device.ResetEnergy()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resetCh := make(chan os.Signal, 1)
	if len(resetEnergySignals) > 0 {
		signal.Notify(resetCh, resetEnergySignals...)
		defer signal.Stop(resetCh)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-resetCh:
				n := chain.device.ResetEnergy()
				log.Printf("Energy reset requested, %d action(s) pending", n)
			}
		}
	}()

	err = chain.device.Run(ctx, cfg.Polling.UpdateInterval, cfg.Polling.TickInterval)
	chain.Close()
	logSummary(chain.meter)

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Polling stopped: %v", err)
	}
}

func listPorts() error {
	ports, err := transport.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
	return nil
}
