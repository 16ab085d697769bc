package fanwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/tuannm99/sqlfan/internal/run"
)

// Submitter starts runs. *run.Orchestrator implements it.
type Submitter interface {
	Start(ctx context.Context, targets []string, query string) (*run.Run, error)
}

// Lister lists target databases. *catalog.Catalog implements it.
type Lister interface {
	Databases(ctx context.Context) ([]string, error)
}

var ErrNoCatalog = errors.New("fanwire: database listing is not available")

type ServerConfig struct {
	Addr string
	// Lister may be nil, databases requests then fail.
	Lister Lister
	Logger *slog.Logger
}

// Run listens on sc.Addr and serves until ctx is cancelled.
func Run(ctx context.Context, sc ServerConfig, sub Submitter) error {
	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return Serve(ctx, ln, sc, sub)
}

// Serve accepts connections on ln until ctx is cancelled. It closes ln.
func Serve(ctx context.Context, ln net.Listener, sc ServerConfig, sub Submitter) error {
	defer func() { _ = ln.Close() }()

	logger := sc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sqlfan tcp server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	h := &handler{sub: sub, lister: sc.Lister, logger: logger}
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("accept", "err", err)
			continue
		}
		go h.handleConn(ctx, conn)
	}
}

type handler struct {
	sub    Submitter
	lister Lister
	logger *slog.Logger
}

func (h *handler) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	// Requests may be far apart, a run may stream for a long time.
	_ = conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	h.logger.Debug("client connected", "remote", remote)

	for {
		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			// Client closed or bad frame.
			h.logger.Debug("client gone", "remote", remote, "err", err)
			return
		}

		var err error
		switch req.Op {
		case OpSubmit:
			err = h.submit(ctx, conn, req)
		case OpDatabases:
			err = h.databases(ctx, conn, req)
		default:
			err = WriteFrame(conn, Response{ID: req.ID, Error: fmt.Sprintf("fanwire: unknown op %q", req.Op)})
		}
		if err != nil {
			h.logger.Warn("write response", "remote", remote, "err", err)
			return
		}
	}
}

// submit streams the events of one run. A rejected submission is reported as
// an error event followed by done, so clients handle both paths alike.
func (h *handler) submit(ctx context.Context, conn net.Conn, req Request) error {
	r, err := h.sub.Start(ctx, req.Targets, req.SQL)
	if err != nil {
		ev := run.Error(err.Error())
		if werr := WriteFrame(conn, Response{ID: req.ID, Event: &ev}); werr != nil {
			return werr
		}
		done := run.Done()
		return WriteFrame(conn, Response{ID: req.ID, Event: &done})
	}

	var werr error
	for ev := range r.Events() {
		if werr != nil {
			// The run cannot progress unless its events are consumed.
			continue
		}
		werr = writeEvent(conn, req.ID, ev)
		if errors.Is(werr, ErrFrameTooLarge) {
			h.logger.Warn("event dropped", "run", r.ID(), "kind", ev.Kind, "err", werr)
			msg := run.Error(fmt.Sprintf("%s output dropped: %v", ev.Kind, werr))
			werr = WriteFrame(conn, Response{ID: req.ID, Event: &msg})
		}
	}
	return werr
}

// writeEvent sends ev, spreading long text over several responses.
func writeEvent(w io.Writer, id uint64, ev run.Event) error {
	parts := splitText(ev.Text, ChunkSize)
	for i, part := range parts {
		chunk := run.Event{Kind: ev.Kind, Text: part}
		if err := WriteFrame(w, Response{ID: id, Event: &chunk, More: i < len(parts)-1}); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) databases(ctx context.Context, conn net.Conn, req Request) error {
	if h.lister == nil {
		return WriteFrame(conn, Response{ID: req.ID, Error: ErrNoCatalog.Error()})
	}
	dbs, err := h.lister.Databases(ctx)
	if err != nil {
		return WriteFrame(conn, Response{ID: req.ID, Error: err.Error()})
	}
	return WriteFrame(conn, Response{ID: req.ID, Databases: dbs})
}
