// Package server exposes the merge-and-dispatch engine over an HTTP/JSON
// boundary compatible with the Envialite front end.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/envialite/envialite/internal/delivery"
	"github.com/envialite/envialite/internal/dispatch"
)

// defaultMaxBodyBytes caps request bodies at 50 MB; batches carry their
// attachment pool inline as base64.
const defaultMaxBodyBytes = 52428800

// Config holds the server's collaborators and limits.
type Config struct {
	// Transport delivers composed messages; selected at startup.
	Transport delivery.Transport

	// MaxBodyBytes limits the request body size. Zero applies the default.
	MaxBodyBytes int64
}

// Server handles the engine's HTTP endpoints. All responses are well-formed
// JSON; no failure mode escapes to the transport boundary as anything else.
type Server struct {
	transport    delivery.Transport
	maxBodyBytes int64
	router       chi.Router
}

// New creates a Server for the given configuration.
func New(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		transport:    cfg.Transport,
		maxBodyBytes: cfg.MaxBodyBytes,
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(s.recoverMiddleware)
	r.Post("/send-emails", s.handleSendEmails)
	r.Post("/test-smtp", s.handleTestSMTP)
	s.router = r

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleSendEmails runs one merge batch and reports per-recipient results.
// Batch-fatal conditions (malformed payload, connection or authentication
// failure) produce {success:false, error} with no per-recipient results;
// a completed batch reports success even when individual sends failed.
func (s *Server) handleSendEmails(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeJSON(w, sendResponse{Success: false, Error: "invalid request payload: " + err.Error()})
		return
	}

	batch := req.toBatch()
	if len(batch.Recipients) == 0 {
		writeJSON(w, sendResponse{Success: false, Error: "no recipients provided"})
		return
	}

	slog.Info("dispatching batch",
		"recipients", len(batch.Recipients),
		"attachments", batch.Pool.Len(),
		"demo", batch.DemoMode,
		"transport", s.transport.Name(),
	)

	report, err := dispatch.Run(r.Context(), batch, s.transport)
	if err != nil {
		slog.Error("batch failed", "error", err)
		writeJSON(w, sendResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, sendResponse{
		Success: report.OK,
		Summary: report.Summary,
		Results: wireResults(report.Results),
		Demo:    report.Demo,
	})
}

// handleTestSMTP opens and immediately closes a delivery session to verify
// connectivity and credentials.
func (s *Server) handleTestSMTP(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeJSON(w, checkResponse{Success: false, Error: "invalid request payload: " + err.Error()})
		return
	}

	if s.transport.Name() == "smtp" &&
		(req.SMTPServer == "" || req.SMTPUser == "" || req.SMTPPassword == "") {
		writeJSON(w, checkResponse{Success: false, Error: "Missing SMTP settings"})
		return
	}

	settings := delivery.Settings{
		Host:     req.SMTPServer,
		Port:     int(req.SMTPPort),
		Username: req.SMTPUser,
		Password: req.SMTPPassword,
	}

	if err := dispatch.Check(r.Context(), s.transport, settings); err != nil {
		writeJSON(w, checkResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, checkResponse{Success: true, Message: "SMTP connection successful"})
}

// decodeBody reads and decodes a JSON request body within the size limit.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	return json.NewDecoder(body).Decode(dst)
}

// wireResults maps engine results to the wire shape, with an explicit null
// error for successful sends.
func wireResults(results []dispatch.Result) []wireResult {
	out := make([]wireResult, 0, len(results))
	for _, res := range results {
		wr := wireResult{
			Email:     res.Email,
			RowNumber: res.RowNumber,
			Success:   res.Success,
		}
		if res.Error != "" {
			detail := res.Error
			wr.Error = &detail
		}
		out = append(out, wr)
	}
	return out
}

// writeJSON writes a JSON response body. The engine always answers 200
// with a success flag; callers key off the body, not the status code.
func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// corsMiddleware applies permissive CORS headers so the static front end
// can be served from anywhere.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware converts a panic into a well-formed JSON error so no
// failure escapes the transport boundary uncaught.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in request handler",
					"path", r.URL.Path,
					"panic", rec,
				)
				writeJSON(w, sendResponse{Success: false, Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
