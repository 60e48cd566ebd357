package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"polyscan/config"
	"polyscan/core"
	"polyscan/host/client"
	"polyscan/host/job"
	"polyscan/host/link"
	"polyscan/host/telemetry"
	"polyscan/protocol"
)

var (
	device     = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud       = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	spiPort    = flag.String("spi", "", "SPI port name (e.g. /dev/spidev0.0); overrides -device")
	spiFreq    = flag.Int("spi-freq", 1000000, "SPI clock in Hz")
	sim        = flag.Bool("sim", false, "Run against an in-process simulated core")
	configFile = flag.String("config", "", "Machine configuration (JSON); sets axes and the simulated core")
	mqttURL    = flag.String("mqtt", "", "MQTT broker for status telemetry (e.g. tcp://localhost:1883)")
	topic      = flag.String("topic", telemetry.DefaultTopic, "MQTT topic prefix")
	interval   = flag.Duration("interval", time.Second, "Telemetry interval")
	backoff    = flag.Duration("backoff", client.DefaultBackoff, "Pause after the queue reports FULL")
	list       = flag.Bool("list", false, "List serial ports and exit")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
	debug      = flag.Bool("debug", false, "Enable core debug output (simulation)")
)

// simulation is the in-process core when running with -sim
var simulation *simulator

// session serializes access to the client between the command loop and
// telemetry
type session struct {
	mu sync.Mutex
	c  *client.Client
}

func (s *session) do(fn func(c *client.Client) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.c)
}

func main() {
	flag.Parse()

	if *list {
		ports, err := link.Ports()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Debug = true
		core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
		core.InitAsyncDebug()
	}
	cfg.Apply()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := openLink(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}

	c := client.New(l, len(cfg.Axes))
	c.Backoff = *backoff
	c.Verbose = *verbose
	s := &session{c: c}
	defer c.Close()

	if *mqttURL != "" {
		pub, err := telemetry.Connect(*mqttURL, "polyscan-host", *topic)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer pub.Close()
		if err := startTelemetry(ctx, s, pub); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Publishing status to %s\n", pub.StatusTopic())
	}

	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(ctx, s, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("Polyscan Host")
	fmt.Println("=============")
	fmt.Println()
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		default:
			if err := runCommand(ctx, s, parts); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return config.LoadConfig(data)
}

func openLink(ctx context.Context, cfg *config.Config) (link.Link, error) {
	switch {
	case *sim:
		mc, err := cfg.MachineConfig(nil, nil)
		if err != nil {
			return nil, err
		}
		mc.Pins = nil
		m, err := core.NewMachine(mc)
		if err != nil {
			return nil, err
		}
		period := core.TicksFromUS(1000)
		simulation = newSimulator(m, period, period/50+1)
		go simulation.run(ctx)
		fmt.Println("Running against a simulated core")
		return link.NewLoopback(m, 0), nil

	case *spiPort != "":
		fmt.Printf("Opening SPI port %s...\n", *spiPort)
		return link.OpenSPI(*spiPort, physic.Frequency(*spiFreq)*physic.Hertz)

	default:
		fmt.Printf("Connecting to core on %s...\n", *device)
		sc := link.DefaultSerialConfig(*device)
		sc.Baud = *baud
		return link.OpenSerial(sc)
	}
}

func startTelemetry(ctx context.Context, s *session, pub *telemetry.Publisher) error {
	err := pub.Commands(func(cmd telemetry.Command) {
		err := s.do(func(c *client.Client) error {
			switch cmd.Name {
			case "start":
				_, err := c.Start()
				return err
			case "stop":
				_, err := c.Stop()
				return err
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: remote %s: %v\n", cmd.Name, err)
		}
	})
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			var r telemetry.Report
			err := s.do(func(c *client.Client) error {
				st, err := c.Status()
				if err != nil {
					return err
				}
				r = telemetry.NewReport(st, time.Now())
				r.Written, r.Rejected = c.Stats()
				return nil
			})
			if err == nil {
				err = pub.Publish(r)
			}
			if err != nil && *verbose {
				fmt.Fprintf(os.Stderr, "Telemetry: %v\n", err)
			}
		}
	}()
	return nil
}

func runCommand(ctx context.Context, s *session, args []string) error {
	switch args[0] {
	case "status":
		return s.do(func(c *client.Client) error {
			st, err := c.Status()
			if err != nil {
				return err
			}
			fmt.Printf("Status: %s (0x%02X)\n", st, st.Byte())
			return nil
		})

	case "start", "stop":
		return s.do(func(c *client.Client) error {
			var st protocol.Status
			var err error
			if args[0] == "start" {
				st, err = c.Start()
			} else {
				st, err = c.Stop()
			}
			if err != nil {
				return err
			}
			fmt.Printf("Sent %s (status before: %s)\n", strings.ToUpper(args[0]), st)
			return nil
		})

	case "run":
		if len(args) < 2 {
			return fmt.Errorf("usage: run <job.cbor>")
		}
		return runJob(ctx, s, args[1])

	case "demo":
		if len(args) < 2 {
			return fmt.Errorf("usage: demo <job.cbor>")
		}
		return writeDemo(args[1], s.c.Axes())

	case "timing":
		if simulation == nil {
			return fmt.Errorf("timing is only available with -sim")
		}
		if !*debug {
			return fmt.Errorf("timing needs -debug")
		}
		simulation.do(ctx, func(m *core.Machine) { m.DumpTiming() })
		return nil

	case "info":
		fmt.Printf("Protocol version %s, %d axes\n", protocol.Version, s.c.Axes())
		if simulation == nil {
			return nil
		}
		simulation.do(ctx, printMachine)
		return nil

	case "ports":
		ports, err := link.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", args[0])
	}
}

func runJob(ctx context.Context, s *session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open job: %w", err)
	}
	j, err := job.Load(f)
	f.Close()
	if err != nil {
		return err
	}

	return s.do(func(c *client.Client) error {
		if j.Axes != c.Axes() {
			return fmt.Errorf("job %q is for %d axes, core has %d", j.Name, j.Axes, c.Axes())
		}
		words, err := j.Words()
		if err != nil {
			return err
		}

		fmt.Printf("Streaming %q: %d instructions, %d words\n", j.Name, len(j.Entries), len(words))
		begin := time.Now()
		if err := c.Stream(ctx, words); err != nil {
			return err
		}
		st, err := c.WaitState(ctx, protocol.StateStopped)
		if err != nil {
			return fmt.Errorf("job ended in %s: %w", st, err)
		}

		written, rejected := c.Stats()
		fmt.Printf("Done in %v: %s, %d words written, %d rejected\n",
			time.Since(begin).Round(time.Millisecond), st, written, rejected)
		if st.MemRead {
			fmt.Println("Warning: scanline underrun during the job")
		}
		return nil
	})
}

func printMachine(m *core.Machine) {
	fmt.Printf("Simulated time: %d us (%d ticks)\n", core.TicksToUS(uint32(m.Ticks())), m.Ticks())
	fmt.Printf("State: %s, queue %d/%d words\n", m.Dispatcher.State(), m.Queue.Len(), m.Queue.Capacity())
	fmt.Printf("Transfers: %d, rejected writes: %d\n", m.Parser.Transfers(), m.Status.Rejected())
	for i := 0; i < m.Sequencer.Axes(); i++ {
		ax := m.Sequencer.Axis(i)
		fmt.Printf("Axis %s: position %d, %d ticks left\n", ax.Config.Name, ax.Position, ax.Eval.Remaining())
	}
	fmt.Printf("Facets: %d, lines: %d, underruns: %d\n", m.Photodiode.Pulses(), m.Gate.Lines(), m.Gate.Underruns())
	fmt.Printf("Total steps: %d\n", m.Sequencer.TotalSteps())
}

// writeDemo writes a job that spins the polygon, exposes a checkerboard
// and steps the first axis between lines
func writeDemo(path string, axes int) error {
	const lines, pixels = 16, 256

	j := job.New("checkerboard", axes)
	coeffs := make([]protocol.Coeffs, axes)
	coeffs[0] = protocol.Coeffs{1 << (protocol.BitShift - 4), 0, 0}

	for y := 0; y < lines; y++ {
		row := make([]bool, pixels)
		for x := range row {
			row[x] = (x/32+y/4)%2 == 0
		}
		if err := j.AddScanline(protocol.AuxPolygon|protocol.AuxExpose, row); err != nil {
			return err
		}
		if err := j.AddMove(protocol.AuxPolygon|protocol.AuxExpose, 1000, coeffs...); err != nil {
			return err
		}
	}
	j.End()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if err := j.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %q to %s\n", j.Name, path)
	return nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help           - Show this help message")
	fmt.Println("  status         - Read the status byte")
	fmt.Println("  start          - Start or resume the dispatcher")
	fmt.Println("  stop           - Stop and flush the queue (twice: back to IDLE)")
	fmt.Println("  run <file>     - Stream a CBOR job and wait for it to finish")
	fmt.Println("  demo <file>    - Write a demo job")
	fmt.Println("  info           - Show protocol and simulated core counters")
	fmt.Println("  timing         - Dump the core timing ring (-sim -debug)")
	fmt.Println("  ports          - List serial ports")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}
