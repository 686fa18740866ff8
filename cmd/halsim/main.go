// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ezrec/halrt/board"
	"github.com/ezrec/halrt/driver"
	"github.com/ezrec/halrt/logstream"
	"github.com/ezrec/halrt/status"
)

const ECHO_LINE_MAX = 128

func main() {
	var boardFile string
	var echoId int
	var timerId int
	var period time.Duration
	var level string
	var verbose bool

	flag.StringVar(&boardFile, "b", "", "Board description (.star), default board if empty")
	flag.IntVar(&echoId, "e", 2, "Echo UART id, reading stdin")
	flag.IntVar(&timerId, "t", 2, "Heartbeat timer id")
	flag.DurationVar(&period, "p", time.Second, "Heartbeat period")
	flag.StringVar(&level, "l", "info", "Log level")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	threshold, err := logstream.ParseLevel(level)
	if err != nil {
		log.Fatal(err)
	}

	var cfg *board.Config
	if len(boardFile) == 0 {
		cfg, err = board.Load("default", board.DEFAULT_BOARD)
	} else {
		var src []byte
		src, err = os.ReadFile(boardFile)
		if err != nil {
			log.Fatalf("%v: %v", boardFile, err)
		}
		cfg, err = board.Load(boardFile, src)
	}
	if err != nil {
		log.Fatal(err)
	}

	reg := board.NewRegistry(cfg)
	reg.SetVerbose(verbose)

	// Every UART transmits to stdout; the echo UART also receives stdin.
	for _, uc := range cfg.Uarts {
		uart, _ := reg.Uart(uc.Id)
		uart.Output = os.Stdout
	}

	echoUart, err := reg.Uart(echoId)
	if err != nil {
		log.Fatal(err)
	}
	echoUart.Input = os.Stdin

	echo, err := reg.CharacterDriver(echoId)
	if err != nil {
		log.Fatal(err)
	}

	heartbeat, err := reg.TimerDriver(timerId)
	if err != nil {
		log.Fatal(err)
	}

	logger := logstream.NewLogger(os.Stderr, threshold)
	if cd, ok := reg.LoggingUart(); ok {
		stream := logstream.NewStream(cd)
		stream.Verbose = verbose
		logger = logstream.NewLogger(stream, threshold)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	for _, tc := range cfg.Timers {
		tm, _ := reg.Timer(tc.Id)
		group.Go(func() error { return tm.Serve(ctx, time.Millisecond) })
	}
	for _, uc := range cfg.Uarts {
		uart, _ := reg.Uart(uc.Id)
		group.Go(func() error { return uart.Serve(ctx) })
	}

	// Start up work runs from the event loop, like every callback after it.
	el := reg.EventLoop()
	el.PushEvent(func() {
		for name, desc := range reg.Resources() {
			logger.Infof("main", "%v: %v", name, desc)
		}

		startHeartbeat(logger, heartbeat, period)
		startEcho(logger, echo)
	})

	group.Go(func() error { return el.Run(ctx) })

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

// startHeartbeat logs a line every period, re-arming from its own callback.
func startHeartbeat(logger *logstream.Logger, td *driver.TimerDriver, period time.Duration) {
	var beats int

	var beat driver.WaitCallback
	beat = func(st status.Status) {
		if st.IsError() {
			logger.Errorf("heartbeat", "wait ended: %v", st)
			return
		}

		beats++
		logger.Infof("heartbeat", "beat %d", beats)

		_, err := td.AsyncWait(period, beat)
		if err != nil {
			logger.Errorf("heartbeat", "%v", err)
		}
	}

	_, err := td.AsyncWait(period, beat)
	if err != nil {
		logger.Errorf("heartbeat", "%v", err)
	}
}

// startEcho writes back every line read, one read in flight at a time.
func startEcho(logger *logstream.Logger, cd *driver.CharacterDriver) {
	newline := byte('\n')

	var read func()
	read = func() {
		// Each line gets its own buffer, as the write may still be running
		// when the next read completes.
		buf := make([]byte, ECHO_LINE_MAX)
		err := cd.AsyncRead(buf, &newline, func(count int, st status.Status) {
			switch {
			case st.Kind() == status.BUFFER_OVERFLOW:
				logger.Warningf("echo", "line longer than %d characters", len(buf))
			case st.IsError():
				logger.Errorf("echo", "read: %v", st)
				return
			}

			logger.Debugf("echo", "%d characters", count)
			err := cd.AsyncWrite(buf[:count], func(count int, st status.Status) {
				if st.IsError() {
					logger.Errorf("echo", "write: %v", st)
				}
			})
			if err != nil {
				logger.Errorf("echo", "%v", err)
			}

			read()
		})
		if err != nil {
			logger.Errorf("echo", "%v", err)
		}
	}

	read()
}
