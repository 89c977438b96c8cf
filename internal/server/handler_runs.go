package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/framestep/pkg/model"
)

// defaultSampleLimit is how many recent pass samples a run detail includes.
const defaultSampleLimit = 50

type runDetail struct {
	*model.Run
	Summary model.PassSummary  `json:"summary"`
	Samples []model.PassSample `json:"samples"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondUnavailable(w, reqID, "run store")
		return
	}

	opts := model.DefaultListOptions()
	var fieldErrs []model.FieldError
	if v, ok, err := queryInt(r, "limit"); err != nil {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "limit", Message: "must be an integer"})
	} else if ok {
		opts.Limit = v
	}
	if v, ok, err := queryInt(r, "offset"); err != nil {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "offset", Message: "must be an integer"})
	} else if ok {
		opts.Offset = v
	}
	if len(fieldErrs) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid query", fieldErrs...))
		return
	}
	opts.Clamp()

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}

	respondList(w, reqID, runs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondUnavailable(w, reqID, "run store")
		return
	}
	id := chi.URLParam(r, "id")

	limit := defaultSampleLimit
	if v, ok, err := queryInt(r, "samples"); err != nil || (ok && v < 0) {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid query",
			model.FieldError{Field: "samples", Message: "must be a non-negative integer"}))
		return
	} else if ok {
		limit = v
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return
	}

	summary, err := s.store.SummarizePasses(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	samples := []model.PassSample{}
	if limit > 0 {
		got, err := s.store.ListPassSamples(r.Context(), id, limit)
		if err != nil {
			respondInternal(w, reqID, err)
			return
		}
		if got != nil {
			samples = got
		}
	}

	respondOK(w, reqID, runDetail{Run: run, Summary: summary, Samples: samples})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (v int, ok bool, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
