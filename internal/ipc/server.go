package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"pidish/internal/daemon"
	"pidish/internal/logging"
	"pidish/internal/printer"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

const serviceName = "Pidish"

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Send(req SendRequest, resp *SendResponse) error {
	resp.Verb = printer.NormalizeVerb(req.Wire[printer.KeyCommand])
	cmd, err := s.daemon.Submit(req.Wire)
	if err != nil {
		resp.Accepted = false
		resp.Message = err.Error()
		return nil
	}
	resp.Accepted = true
	resp.Verb = cmd.Verb()
	resp.Message = "queued"
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.Printer = status.Printer
	resp.Connector = status.Connector
	resp.LockPath = status.LockPath
	resp.HistoryPath = status.HistoryPath
	resp.VariablesPath = status.Variables
	stats, err := s.daemon.JobStats(s.ctx)
	if err != nil {
		s.logger.Debug("job stats unavailable", logging.Error(err))
		return nil
	}
	resp.JobStats = stats
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	if req.Limit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}
	jobs, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Jobs = jobs
	return nil
}

func (s *service) JobDescribe(req JobDescribeRequest, resp *JobDescribeResponse) error {
	if req.ID == "" {
		return errors.New("job id is required")
	}
	job, err := s.daemon.Job(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = *job
	return nil
}

func (s *service) HistoryClear(_ HistoryClearRequest, resp *HistoryClearResponse) error {
	removed, err := s.daemon.ClearHistory(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("job history cleared", logging.Int64("removed", removed))
	return nil
}

func (s *service) Objects(_ ObjectsRequest, resp *ObjectsResponse) error {
	objects, err := s.daemon.Objects()
	if err != nil {
		return err
	}
	resp.Root = s.daemon.ObjectsDir()
	resp.Objects = make([]Object, 0, len(objects))
	for _, obj := range objects {
		resp.Objects = append(resp.Objects, Object{Name: obj.Name, Path: obj.Path, Slices: obj.Slices})
	}
	return nil
}

func (s *service) Variables(_ VariablesRequest, resp *VariablesResponse) error {
	resp.Values = s.daemon.Variables()
	return nil
}
