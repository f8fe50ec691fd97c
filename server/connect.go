package server

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// HealthProcedure is the gRPC health check, also answered over Connect.
	HealthProcedure = healthpb.Health_Check_FullMethodName

	// StatsProcedure answers the scheduler counters as a Struct.
	StatsProcedure = "/loom.v1.SchedulerService/Stats"
)

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(HealthProcedure, connect.NewUnaryHandler(HealthProcedure, s.check))
	mux.Handle(StatsProcedure, connect.NewUnaryHandler(StatsProcedure, s.stats))
	return mux
}

func (s *Server) check(ctx context.Context, req *connect.Request[healthpb.HealthCheckRequest]) (*connect.Response[healthpb.HealthCheckResponse], error) {
	res, err := s.health.Check(ctx, req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewResponse(res), nil
}

func (s *Server) stats(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	st := s.pool.Stats()
	msg, err := structpb.NewStruct(map[string]any{
		"running":     s.pool.Running(),
		"workers":     s.pool.Workers(),
		"submitted":   st.Submitted,
		"completed":   st.Completed,
		"faulted":     st.Faulted,
		"abandoned":   st.Abandoned,
		"slices":      st.Slices,
		"suspensions": st.Suspensions,
		"pending":     st.Pending,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}
