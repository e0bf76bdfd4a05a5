// Command axcli is an interactive console for AX-series servos on a serial
// bus. It pings servos, reads and writes control table registers and can
// record wire traffic to a trace file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/jacekchmiel/dynamixel-go/dynamixel"
	"github.com/jacekchmiel/dynamixel-go/trace"
)

const unconnectedPrompt = "[none] > "

var (
	portFlag    string
	baudFlag    int
	timeoutFlag time.Duration
	verboseFlag bool
)

func init() {
	flag.StringVar(&portFlag, "port", "", "Serial port to open on start.")
	flag.IntVar(&baudFlag, "baud", 1000000, "Baud rate.")
	flag.DurationVar(&timeoutFlag, "timeout", time.Second, "Reply timeout per exchange.")
	flag.BoolVar(&verboseFlag, "v", false, "Log wire activity to stderr.")
}

func main() {
	flag.Parse()

	s := newSession()
	shell := ishell.New()
	shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range s.commands(shell) {
		shell.AddCmd(cmd)
	}

	if portFlag != "" {
		if err := s.open(portFlag, baudFlag); err != nil {
			log.Fatalf("open %q failed: %v", portFlag, err)
		}
		shell.SetPrompt(portFlag + " > ")
	}

	if args := flag.Args(); len(args) > 0 {
		if err := shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
	} else {
		shell.Run()
	}

	if err := s.shutdown(); err != nil {
		log.Fatalln(err)
	}
}

// session holds the console state shared by all commands.
type session struct {
	bus *dynamixel.Bus
	tap tap

	recorder  *trace.Recorder
	traceFile *os.File
}

func newSession() *session {
	return &session{}
}

func (s *session) open(port string, baud int) error {
	var logger *slog.Logger
	if verboseFlag {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	bus, err := dynamixel.NewBus(dynamixel.BusConfig{
		Port:     port,
		BaudRate: baud,
		Timeout:  timeoutFlag,
		Logger:   logger,
		Trace:    &s.tap,
	})
	if err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Close()
	}
	s.bus = bus
	return nil
}

func (s *session) closeBus() error {
	if s.bus == nil {
		return nil
	}
	err := s.bus.Close()
	s.bus = nil
	return err
}

// startTrace begins a new capture. The caller stops any active capture
// first.
func (s *session) startTrace(path string) (*trace.Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	s.traceFile = f
	s.recorder = trace.NewRecorder(f)
	s.tap.Set(s.recorder)
	return s.recorder, nil
}

func (s *session) stopTrace() error {
	s.tap.Set(nil)

	var err error
	if s.recorder != nil {
		err = s.recorder.Close()
		s.recorder = nil
	}
	if s.traceFile != nil {
		if closeErr := s.traceFile.Close(); err == nil {
			err = closeErr
		}
		s.traceFile = nil
	}
	return err
}

func (s *session) shutdown() error {
	busErr := s.closeBus()
	traceErr := s.stopTrace()
	return errors.Join(busErr, traceErr)
}

// requireBus wraps a command func that needs an open bus.
func (s *session) requireBus(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if s.bus == nil {
			c.Err(errors.New("not connected, use open first"))
			return
		}
		fn(c)
	}
}

func (s *session) commands(shell *ishell.Shell) []*ishell.Cmd {
	return []*ishell.Cmd{
		{
			Name:    "open",
			Aliases: []string{"o"},
			Help:    "PORT [BAUD]",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 || len(c.Args) > 2 {
					c.Err(errors.New("usage: open PORT [BAUD]"))
					return
				}
				baud := baudFlag
				if len(c.Args) == 2 {
					b, err := strconv.Atoi(c.Args[1])
					if err != nil {
						c.Err(fmt.Errorf("bad baud rate %q", c.Args[1]))
						return
					}
					baud = b
				}
				if err := s.open(c.Args[0], baud); err != nil {
					c.Err(err)
					return
				}
				shell.SetPrompt(c.Args[0] + " > ")
			},
		},
		{
			Name: "close",
			Help: "",
			Func: func(c *ishell.Context) {
				if err := s.closeBus(); err != nil {
					c.Err(err)
				}
				shell.SetPrompt(unconnectedPrompt)
			},
		},
		{
			Name:    "ping",
			Aliases: []string{"p"},
			Help:    "ID",
			Func: s.requireBus(func(c *ishell.Context) {
				if len(c.Args) != 1 {
					c.Err(errors.New("usage: ping ID"))
					return
				}
				id, err := parseID(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				if err := s.bus.Ping(context.Background(), id); err != nil {
					c.Err(err)
					return
				}
				c.Printf("servo %d is alive\n", id)
			}),
		},
		{
			Name:    "read",
			Aliases: []string{"r"},
			Help:    "ID REGISTER",
			Func: s.requireBus(func(c *ishell.Context) {
				if len(c.Args) != 2 {
					c.Err(errors.New("usage: read ID REGISTER"))
					return
				}
				id, err := parseID(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				reg, err := parseRegister(c.Args[1])
				if err != nil {
					c.Err(err)
					return
				}
				value, err := s.bus.ReadRegister(context.Background(), id, reg)
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("%s = %d (0x%X)\n", reg, value, value)
			}),
		},
		{
			Name:    "write",
			Aliases: []string{"w"},
			Help:    "ID REGISTER VALUE",
			Func: s.requireBus(func(c *ishell.Context) {
				if len(c.Args) != 3 {
					c.Err(errors.New("usage: write ID REGISTER VALUE"))
					return
				}
				id, err := parseID(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				reg, err := parseRegister(c.Args[1])
				if err != nil {
					c.Err(err)
					return
				}
				value, err := strconv.ParseUint(c.Args[2], 0, 16)
				if err != nil {
					c.Err(fmt.Errorf("bad value %q", c.Args[2]))
					return
				}
				if err := s.bus.WriteRegister(context.Background(), id, reg, uint16(value)); err != nil {
					c.Err(err)
					return
				}
				c.Println("OK")
			}),
		},
		{
			Name:    "regs",
			Aliases: []string{"ls"},
			Help:    "",
			Func: func(c *ishell.Context) {
				for _, reg := range dynamixel.Registers() {
					d := reg.Descriptor()
					c.Printf("%-22s 0x%02X %d %s %s\n",
						reg, d.Address, d.Width, d.Access, d.Description)
				}
			},
		},
		{
			Name:    "trace",
			Aliases: []string{"t"},
			Help:    "FILE | off",
			Func: func(c *ishell.Context) {
				if len(c.Args) != 1 {
					c.Err(errors.New("usage: trace FILE | trace off"))
					return
				}
				if c.Args[0] == "off" {
					if err := s.stopTrace(); err != nil {
						c.Err(err)
						return
					}
					c.Println("tracing stopped")
					return
				}
				// A failed close of the previous capture is worth reporting
				// but does not block the new one.
				if err := s.stopTrace(); err != nil {
					c.Err(fmt.Errorf("closing previous capture: %w", err))
				}
				rec, err := s.startTrace(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("tracing to %s (session %s)\n", c.Args[0], rec.Session())
			},
		},
	}
}

func parseID(arg string) (byte, error) {
	id, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad servo id %q", arg)
	}
	return byte(id), nil
}

func parseRegister(arg string) (dynamixel.Register, error) {
	reg, ok := dynamixel.RegisterByName(arg)
	if !ok {
		return 0, fmt.Errorf("unknown register %q, use regs to list them", arg)
	}
	return reg, nil
}

// tap forwards bus packets to the currently armed recorder, letting tracing
// start and stop while the bus stays open.
type tap struct {
	mu  sync.Mutex
	rec *trace.Recorder
}

func (t *tap) Set(rec *trace.Recorder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec = rec
}

func (t *tap) RecordTx(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec != nil {
		t.rec.RecordTx(data)
	}
}

func (t *tap) RecordRx(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec != nil {
		t.rec.RecordRx(data)
	}
}
