package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/pipeline"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	minSubjectLength   = 3
	maxSubjectLength   = 500
	maxSummaryLength   = 10000
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// startReviewRequest is the JSON request body for starting a review run.
type startReviewRequest struct {
	Subject          string `json:"subject"`
	StartYear        int    `json:"start_year"`
	EndYear          int    `json:"end_year"`
	PerSourceCount   *int   `json:"per_source_count,omitempty"`
	ExecutiveSummary string `json:"executive_summary,omitempty"`
}

// startReview handles POST /api/v1/reviews. It validates the request,
// registers the run with the manager, and returns 202 before the pipeline
// finishes.
func (s *Server) startReview(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req startReviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if len(req.Subject) < minSubjectLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("subject must be at least %d characters", minSubjectLength))
		return
	}
	if len(req.Subject) > maxSubjectLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("subject must be at most %d characters", maxSubjectLength))
		return
	}
	if len(req.ExecutiveSummary) > maxSummaryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("executive_summary must be at most %d characters", maxSummaryLength))
		return
	}

	now := time.Now()
	if req.EndYear == 0 {
		req.EndYear = now.Year()
	}
	if req.StartYear == 0 {
		req.StartYear = req.EndYear - 5
	}

	rc := pipeline.RunConfig{
		Subject:          req.Subject,
		StartYear:        req.StartYear,
		EndYear:          req.EndYear,
		PerSourceCount:   pipeline.DefaultPerSourceCount,
		ExecutiveSummary: req.ExecutiveSummary,
	}
	if req.PerSourceCount != nil {
		rc.PerSourceCount = *req.PerSourceCount
	}
	if err := rc.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	runID, err := s.manager.Start(rc)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, startReviewResponse{
		ReviewID:  runID,
		Status:    string(domain.RunStateSearching),
		CreatedAt: now,
		Message:   "review run started",
	})
}

// getReview handles GET /api/v1/reviews/{runID}.
func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, chi.URLParam(r, "runID"))
	if !ok {
		return
	}

	status, found := s.manager.Get(runID)
	if !found {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}

	writeJSON(w, http.StatusOK, runStatusToStatusResponse(status))
}

// cancelReview handles DELETE /api/v1/reviews/{runID}. Cancelling a run that
// already finished is a conflict, not a success.
func (s *Server) cancelReview(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, chi.URLParam(r, "runID"))
	if !ok {
		return
	}

	found, inFlight := s.manager.Cancel(runID)
	if !found {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	if !inFlight {
		writeError(w, http.StatusConflict, "review is already in terminal state")
		return
	}

	writeJSON(w, http.StatusOK, cancelReviewResponse{
		Success: true,
		Message: "cancellation requested",
	})
}

// listReviews handles GET /api/v1/reviews. Runs are returned most recently
// started first, paginated with an opaque page token.
func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	all := s.manager.List()

	// Optional status filter.
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		filtered := all[:0:0]
		for _, st := range all {
			if string(st.Summary.State) == statusParam {
				filtered = append(filtered, st)
			}
		}
		all = filtered
	}

	totalCount := len(all)
	if offset > totalCount {
		offset = totalCount
	}
	end := offset + limit
	if end > totalCount {
		end = totalCount
	}

	page := all[offset:end]
	summaries := make([]reviewSummaryResponse, len(page))
	for i, st := range page {
		summaries[i] = runStatusToSummaryResponse(st)
	}

	writeJSON(w, http.StatusOK, listReviewsResponse{
		Reviews:       summaries,
		NextPageToken: encodePageToken(offset, limit, totalCount),
		TotalCount:    totalCount,
	})
}

// writeDomainError maps domain errors to HTTP status codes. Internal error
// details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrConfigurationInvalid):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrSourceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseRunID validates a run ID path parameter, writing a 400 error response
// if invalid. The parse error details are not echoed back.
func parseRunID(w http.ResponseWriter, s string) (string, bool) {
	if _, err := uuid.Parse(s); err != nil {
		writeError(w, http.StatusBadRequest, "run_id must be a valid UUID")
		return "", false
	}
	return s, true
}

// parsePaginationParams extracts page_size and page_token from query
// parameters, applying default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodePageToken encodes the next offset as a base64 page token. Returns an
// empty string when there are no more results.
func encodePageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
