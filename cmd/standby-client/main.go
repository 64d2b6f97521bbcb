// Command standby-client plays tic-tac-toe moves against a pair of
// standby-server nodes, reading cells such as "B2" from stdin.
//
//	standby-client [flags]
//	standby-client [flags] promote <host:port>
//
// The promote form tells the standby at host:port to take over as the active
// node.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	"github.com/ngrok/standby"
	"github.com/ngrok/standby/internal/config"
	"github.com/ngrok/standby/internal/tictactoe"
	"github.com/pkg/errors"
)

func main() {
	cfg, args, err := config.LoadClient(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	l, err := config.Logger(cfg.LogLevel, "cmd", "standby-client")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case len(args) == 0:
		err = play(ctx, l, cfg, os.Stdin, os.Stdout)
	case args[0] == "promote" && len(args) == 2:
		err = promote(l, args[1])
	default:
		fmt.Fprintf(os.Stderr, "usage: standby-client [flags] [promote <host:port>]\n")
		os.Exit(2)
	}
	if err != nil && ctx.Err() == nil {
		l.Crit("client failed", "err", err)
		os.Exit(1)
	}
}

func play(ctx context.Context, l log15.Logger, cfg *config.Client, in io.Reader, out io.Writer) error {
	primary, err := standby.ParseEndpoint(cfg.Primary)
	if err != nil {
		return err
	}
	alternate, err := standby.ParseEndpoint(cfg.Alternate)
	if err != nil {
		return err
	}
	s, err := standby.NewSession(standby.OpenUDP(l), primary, alternate,
		standby.WithSessionLogger(l),
		standby.WithBaseTimeout(cfg.BaseTimeout),
		standby.WithSwitchAfter(cfg.SwitchAfter),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	actor := standby.Actor(cfg.Actor[0])
	scanner := bufio.NewScanner(in)
	for {
		board := s.Board()
		fmt.Fprint(out, tictactoe.Render(board))
		if w := tictactoe.Winner(board); w != standby.Empty {
			fmt.Fprintf(out, "%v wins\n", w)
			return nil
		}
		if tictactoe.Full(board) {
			fmt.Fprintln(out, "draw")
			return nil
		}
		fmt.Fprintf(out, "%v to move (e.g. B2): ", actor)
		if !scanner.Scan() {
			return scanner.Err()
		}
		row, col, err := tictactoe.ParseCell(scanner.Text())
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		outcome, err := s.Submit(ctx, row, col, actor)
		if err != nil {
			return err
		}
		if outcome.Rejected {
			fmt.Fprintln(out, "that cell is taken, pick another")
			continue
		}
		if cfg.BothSides {
			actor = tictactoe.Other(actor)
		}
	}
}

func promote(l log15.Logger, target string) error {
	to, err := standby.ParseEndpoint(target)
	if err != nil {
		return err
	}
	ch, err := standby.OpenUDP(l)()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Send(standby.Promote{}, to); err != nil {
		return errors.Wrapf(err, "can't promote %v", to)
	}
	l.Info("sent promote", "to", to)
	return nil
}
