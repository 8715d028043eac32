package broker

import (
	"context"
)

// Server exposes any Client as a flotilla.Broker gRPC service.
type Server struct {
	client Client
}

func NewServer(client Client) *Server {
	return &Server{client: client}
}

func (s *Server) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	id, err := s.client.Submit(ctx, req.Descriptor)
	if err != nil {
		return nil, err
	}
	return &SubmitResponse{InstanceId: id}, nil
}

func (s *Server) GetReport(ctx context.Context, req *GetReportRequest) (*InstanceReport, error) {
	return s.client.GetReport(ctx, req.InstanceId)
}

func (s *Server) ListByType(ctx context.Context, req *ListByTypeRequest) (*ListByTypeResponse, error) {
	reports, err := s.client.ListByType(ctx, req.Type)
	if err != nil {
		return nil, err
	}
	return &ListByTypeResponse{Reports: reports}, nil
}

func (s *Server) Kill(ctx context.Context, req *KillRequest) (*Empty, error) {
	if err := s.client.Kill(ctx, req.InstanceId); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}
