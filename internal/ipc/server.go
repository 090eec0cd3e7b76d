package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"predictra/internal/daemon"
	"predictra/internal/logging"
	"predictra/internal/supervisor"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
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

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Predictra", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
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
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun predictra stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DBPath = status.DBPath
	resp.LockPath = status.LockFilePath
	resp.SocketPath = status.SocketPath
	resp.TotalMachines = status.Machines.Total
	resp.TrainedMachines = status.Machines.Trained
	resp.RunsInProgress = status.Machines.InProgress
	resp.FailedLastRun = status.Machines.Failed
	return nil
}

func (s *service) MachineCreate(req MachineCreateRequest, resp *MachineCreateResponse) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("machine name required")
	}
	m, err := s.daemon.CreateMachine(s.ctx, req.OwnerID, req.Name, req.Type, req.SensorColumns)
	if err != nil {
		return err
	}
	resp.Machine = FromMachine(m)
	s.log().Info("machine registered",
		logging.String(logging.FieldEventType, "machine_create"),
		logging.String(logging.FieldMachineID, m.ID))
	return nil
}

func (s *service) MachineList(req MachineListRequest, resp *MachineListResponse) error {
	machines, err := s.daemon.ListMachines(s.ctx, req.OwnerID)
	if err != nil {
		return err
	}
	resp.Machines = make([]Machine, 0, len(machines))
	for _, m := range machines {
		if m == nil {
			continue
		}
		resp.Machines = append(resp.Machines, FromMachine(m))
	}
	return nil
}

func (s *service) MachineDescribe(req MachineDescribeRequest, resp *MachineDescribeResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("machine id required")
	}
	m, err := s.daemon.GetMachine(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("machine %s not found", req.ID)
	}
	resp.Machine = FromMachine(m)
	return nil
}

func (s *service) MachineRemove(req MachineRemoveRequest, resp *MachineRemoveResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("machine id required")
	}
	removed, err := s.daemon.DeleteMachine(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Removed = removed
	if removed {
		s.log().Info("machine removed",
			logging.String(logging.FieldEventType, "machine_remove"),
			logging.String(logging.FieldMachineID, req.ID))
	}
	return nil
}

func (s *service) Train(req TrainRequest, resp *TrainResponse) error {
	s.log().Debug("training requested", logging.String(logging.FieldMachineID, req.MachineID))
	runID, err := s.daemon.StartTraining(s.ctx, supervisor.TrainRequest{
		OwnerID:       req.OwnerID,
		MachineID:     req.MachineID,
		CSVPath:       req.CSVPath,
		SensorColumns: req.SensorColumns,
	})
	if err != nil {
		return err
	}
	resp.RunID = runID
	s.log().Info("training run started via IPC",
		logging.String(logging.FieldEventType, "training_start"),
		logging.String(logging.FieldMachineID, req.MachineID),
		logging.String(logging.FieldRunID, runID))
	return nil
}

func (s *service) TrainingStatus(req TrainingStatusRequest, resp *TrainingStatusResponse) error {
	state, err := s.daemon.TrainingStatus(s.ctx, req.OwnerID, req.MachineID)
	if err != nil {
		return err
	}
	resp.Status = string(state.Status)
	resp.Progress = state.Progress
	resp.Message = state.Message
	resp.UpdatedAt = state.UpdatedAt
	return nil
}

func (s *service) Predict(req PredictRequest, resp *PredictResponse) error {
	s.log().Debug("prediction requested", logging.String(logging.FieldMachineID, req.MachineID))
	result, err := s.daemon.Predict(s.ctx, supervisor.PredictRequest{
		OwnerID:       req.OwnerID,
		MachineID:     req.MachineID,
		CSVPath:       req.CSVPath,
		SensorColumns: req.SensorColumns,
	})
	if err != nil {
		return err
	}
	*resp = FromPredictionResult(result)
	s.log().Info("prediction completed via IPC",
		logging.String(logging.FieldEventType, "prediction_complete"),
		logging.String(logging.FieldMachineID, req.MachineID),
		logging.Int("health", resp.HealthScore))
	return nil
}
