// Command webthrottle is a terminal throttle client: it keeps one websocket
// session to a control server and drives any number of throttles from a
// line-oriented console.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"webthrottle/conn"
	"webthrottle/session"
	"webthrottle/store"
	"webthrottle/wire"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("webthrottle", flag.ExitOnError)
	var (
		server   = fs.String("server", "", "control server URL (http, https, ws or wss)")
		dbPath   = fs.String("db", "webthrottle.db", "path to the preference/assignment database")
		name     = fs.String("name", "", "cab display name (stored for future runs)")
		logLevel = fs.String("log-level", "info", "debug, info, warn or error")
	)
	fs.Parse(args)

	if *server == "" {
		fmt.Fprintln(os.Stderr, "-server is required")
		return 1
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "bad -log-level: %v\n", err)
		return 1
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.OpenSQLite(*dbPath)
	if err != nil {
		log.Error("open store", "err", err)
		return 1
	}
	defer st.Close()
	if *name != "" {
		if err := st.SetDisplayName(*name); err != nil {
			log.Error("store display name", "err", err)
			return 1
		}
	}

	url, err := conn.Derive(*server)
	if err != nil {
		log.Error("bad server url", "err", err)
		return 1
	}
	mgr := conn.New(url, conn.Options{Logger: log})
	defer mgr.Close()

	client, err := session.NewClient(mgr, session.Config{
		Store:  st,
		Logger: log,
	})
	if err != nil {
		log.Error("build session", "err", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	go console(client, cancel)

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Error("session ended", "err", err)
		return 1
	}
	return 0
}

// console reads operator commands from stdin until EOF or quit.
func console(client *session.Client, quit context.CancelFunc) {
	fmt.Println("webthrottle console; type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" {
			quit()
			return
		}
		runCommand(client, fields)
	}
	quit()
}

func runCommand(client *session.Client, fields []string) {
	fail := func(format string, args ...any) {
		fmt.Printf("error: "+format+"\n", args...)
	}

	throttleArg := func(s *session.Session) (*session.Throttle, error) {
		if len(fields) < 2 {
			return nil, fmt.Errorf("usage: %s <throttle>", fields[0])
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("bad throttle id %q", fields[1])
		}
		th := s.Throttle(id)
		if th == nil {
			return nil, fmt.Errorf("no throttle %d", id)
		}
		return th, nil
	}

	// Every command runs inside the session loop and reports back here. The
	// loop may stop with the op still queued, so never wait on the reply
	// alone.
	do := func(fn func(*session.Session) error) {
		errc := make(chan error, 1)
		client.Do(func(s *session.Session) { errc <- fn(s) })
		select {
		case err := <-errc:
			if err != nil {
				fail("%v", err)
			}
		case <-client.Done():
		}
	}

	switch fields[0] {
	case "help":
		fmt.Print(`  add                      create a throttle
  list                     show throttles
  trains                   show the train catalog
  acquire <t> <train>      bind a train
  release <t>              give the train back
  faster|slower|stop <t>   speed steps
  forward|reverse <t>      direction
  estop <t>                per-throttle emergency stop
  fn <t> <vehicle> <n>     toggle a function
  steal <t>                take over an already acquired train
  dismiss <t>              clear the notification
  hide | show              page-visibility fail-safe (hide estops everything)
  quit
`)
	case "add":
		do(func(s *session.Session) error {
			fmt.Printf("throttle %d\n", s.AddThrottle().ID())
			return nil
		})
	case "list":
		do(func(s *session.Session) error {
			if !s.WorldLoaded() {
				fmt.Println("no world loaded")
			}
			for _, th := range s.Throttles() {
				printThrottle(th)
			}
			return nil
		})
	case "trains":
		do(func(s *session.Session) error {
			for _, train := range s.Catalog() {
				fmt.Printf("  %s  %s\n", train.ID, train.Name)
			}
			return nil
		})
	case "acquire":
		do(func(s *session.Session) error {
			th, err := throttleArg(s)
			if err != nil {
				return err
			}
			if len(fields) < 3 {
				return fmt.Errorf("usage: acquire <throttle> <train>")
			}
			return th.Select(fields[2])
		})
	case "release":
		do(func(s *session.Session) error {
			th, err := throttleArg(s)
			if err != nil {
				return err
			}
			return th.Select("")
		})
	case "faster", "slower", "stop", "estop", "forward", "reverse":
		verb := fields[0]
		do(func(s *session.Session) error {
			th, err := throttleArg(s)
			if err != nil {
				return err
			}
			switch verb {
			case "faster":
				return th.Faster()
			case "slower":
				return th.Slower()
			case "stop":
				return th.Stop()
			case "estop":
				return th.EStop()
			case "forward":
				return th.Forward()
			default:
				return th.Reverse()
			}
		})
	case "fn":
		do(func(s *session.Session) error {
			th, err := throttleArg(s)
			if err != nil {
				return err
			}
			if len(fields) < 4 {
				return fmt.Errorf("usage: fn <throttle> <vehicle> <number>")
			}
			number, err := strconv.Atoi(fields[3])
			if err != nil {
				return fmt.Errorf("bad function number %q", fields[3])
			}
			return th.ToggleFunction(fields[2], number)
		})
	case "steal":
		do(func(s *session.Session) error {
			th, err := throttleArg(s)
			if err != nil {
				return err
			}
			return th.Steal()
		})
	case "dismiss":
		do(func(s *session.Session) error {
			th, err := throttleArg(s)
			if err != nil {
				return err
			}
			th.Dismiss()
			return nil
		})
	case "hide":
		do(func(s *session.Session) error {
			s.SetHidden(true)
			return nil
		})
	case "show":
		do(func(s *session.Session) error {
			s.SetHidden(false)
			return nil
		})
	default:
		fail("unknown command %q", fields[0])
	}
}

func printThrottle(th *session.Throttle) {
	if !th.Assigned() {
		fmt.Printf("  #%d  idle\n", th.ID())
		return
	}
	state := string(th.Direction())
	if th.Stopped() {
		state += ", stopped"
	}
	fmt.Printf("  #%d  train %s  %s  speed %s  target %s\n",
		th.ID(), th.TrainID(), state,
		wire.FormatSpeed(th.ActualSpeed()), wire.FormatSpeed(th.TargetSpeed()))
	if note := th.Notification(); note != nil {
		fmt.Printf("      [%s] %s\n", note.Type, note.Text)
	}
}
