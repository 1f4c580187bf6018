package api

import (
	"context"
	"io"
	"net/http"

	"github.com/fieldtrace/fieldtrace-core/internal/ingest"
)

// ingestFunc is one of the pipeline's two entry points.
type ingestFunc func(ctx context.Context, token string, payload *ingest.Payload) (*ingest.Result, error)

// handleIngestStandalone accepts telemetry from a standalone device.
// The bearer token is the device's identity token, not an operator
// credential.
func (s *Server) handleIngestStandalone(w http.ResponseWriter, r *http.Request) {
	s.handleIngest(w, r, s.pipeline.IngestStandalone)
}

// handleIngestGateway accepts telemetry from a gateway device, either
// its own or relayed for a node named by node_alias.
func (s *Server) handleIngestGateway(w http.ResponseWriter, r *http.Request) {
	s.handleIngest(w, r, s.pipeline.IngestGateway)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, accept ingestFunc) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	payload, err := ingest.ParsePayload(body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := accept(r.Context(), bearerToken(r), payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"record_id":   res.Record.ID,
		"session_id":  res.Record.SessionID,
		"received_at": res.Record.ReceivedAt,
		"exit_alerts": len(res.Events),
	})
}
