package detection

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/model/messages"
)

const maxBodyBytes = 16 << 20

// DetectResponse is the body of a successful /detect or /analyze call.
type DetectResponse struct {
	DetectionID    string                   `json:"detectionId"`
	Detection      entities.DetectionRecord `json:"detection"`
	SprayerPayload *messages.SprayerCommand `json:"sprayerPayload"`
	StorageID      string                   `json:"storageId"`
}

type apiError struct {
	Error string `json:"error"`
}

// NewHTTPMux exposes the service. Health and metrics routes are mounted by the caller.
func NewHTTPMux(svc *Service, logger *zap.Logger) *http.ServeMux {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("http")
	mux := http.NewServeMux()

	mux.HandleFunc("POST /detect", func(w http.ResponseWriter, r *http.Request) {
		var req DetectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.Process(r.Context(), req)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, NewDetectResponse(res))
	})

	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.Analyze(r.Context(), req)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, NewDetectResponse(res))
	})

	mux.HandleFunc("GET /detections/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		rec, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	return mux
}

// NewDetectResponse shapes a pipeline result for the HTTP API.
func NewDetectResponse(res Result) DetectResponse {
	return DetectResponse{
		DetectionID:    res.Record.DetectionID,
		Detection:      res.Record,
		SprayerPayload: res.Command,
		StorageID:      res.StorageID,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var ie *InputError
		if errors.As(err, &ie) {
			writeJSONError(w, http.StatusBadRequest, ie.Error())
			return false
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError hides upstream details from the client; they are in the log.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoProvider):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrUpstream):
		var ue *UpstreamError
		msg := "upstream failure"
		if errors.As(err, &ue) {
			msg = "upstream failure: " + ue.Collaborator
		}
		writeJSONError(w, http.StatusInternalServerError, msg)
	default:
		log.Error("unhandled error", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Error: message})
}
