// Command standby-server runs one node of an active/standby tic-tac-toe
// server pair.
//
// The first server launched against a coordination directory is active;
// later ones stand by, replicate the board and take over when the active
// node stops answering liveness checks.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	"github.com/ngrok/standby"
	"github.com/ngrok/standby/internal/config"
	"github.com/ngrok/standby/internal/status"
	"github.com/ngrok/standby/internal/tictactoe"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, _, err := config.LoadServer(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	l, err := config.Logger(cfg.LogLevel, "cmd", "standby-server")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, l, cfg); err != nil {
		l.Crit("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, l log15.Logger, cfg *config.Server) error {
	role := standby.Role(cfg.Role)
	if role == "" {
		var err error
		role, err = standby.AssignRole(l, cfg.CoordinationDir)
		if err != nil {
			return err
		}
	}

	assignment := standby.Assignment{Role: role}
	if role == standby.RoleStandby {
		active, err := standby.ParseEndpoint(cfg.Active)
		if err != nil {
			return err
		}
		assignment.Active = active
	}
	peers := make([]standby.Endpoint, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		e, err := standby.ParseEndpoint(p)
		if err != nil {
			return err
		}
		peers = append(peers, e)
	}

	ch, err := standby.ListenUDP(ctx, l, cfg.Listen)
	if err != nil {
		return err
	}
	node, err := standby.NewNode(ch, tictactoe.Rules{}, assignment,
		standby.WithLogger(l),
		standby.WithLivenessInterval(cfg.LivenessInterval),
		standby.WithLivenessTimeout(cfg.LivenessTimeout),
		standby.WithPeers(peers...),
	)
	if err != nil {
		ch.Close()
		return err
	}
	defer node.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// a finished game stops the status server too
		defer cancel()
		return node.Run(ctx)
	})
	if cfg.StatusAddr != "" {
		ln, err := net.Listen("tcp", cfg.StatusAddr)
		if err != nil {
			cancel()
			if nodeErr := g.Wait(); nodeErr != nil {
				l.Error("node stopped with error", "err", nodeErr)
			}
			return errors.Wrapf(err, "can't listen on %s", cfg.StatusAddr)
		}
		g.Go(func() error {
			return status.Serve(ctx, l, ln, status.Router(node))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	board := node.Board()
	if (tictactoe.Rules{}).IsTerminal(board) {
		l.Info("game over", "winner", tictactoe.Winner(board))
		fmt.Print(tictactoe.Render(board))
	}
	return nil
}
