package server

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/teranos/histsync/db"
	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/record"
	"github.com/teranos/histsync/store"
)

// pushResponse is the JSON response from POST /api/v0/record.
type pushResponse struct {
	Stored int `json:"stored"`
}

// HandleStatus returns the record count of every chain.
// GET /api/v0/record
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.Status(r.Context())
	if err != nil {
		if errors.Is(err, db.ErrDatabaseClosed) {
			writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
			return
		}
		logger.FromContext(r.Context(), s.log).Errorw("Failed to read status", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to read status")
		return
	}
	if status.Hosts == nil {
		status = record.NewStatus()
	}
	writeJSON(w, http.StatusOK, status)
}

// HandlePush stores a batch of records.
// POST /api/v0/record [record, ...]
func (s *Server) HandlePush(w http.ResponseWriter, r *http.Request) {
	var records []record.Record
	if err := readJSON(w, r, &records); err != nil {
		return
	}
	for i, rec := range records {
		if err := validateRecord(rec); err != nil {
			writeError(w, http.StatusBadRequest, "record "+strconv.Itoa(i)+": "+err.Error())
			return
		}
	}

	if err := s.store.PushBatch(r.Context(), records); err != nil {
		log := logger.FromContext(r.Context(), s.log)
		if errors.Is(err, db.ErrDatabaseClosed) {
			writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
			return
		}
		if errors.IsAny(err, store.ErrChainGap, store.ErrChainConflict) {
			log.Warnw("Rejected record batch", logger.FieldCount, len(records), logger.FieldError, err)
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Errorw("Failed to store records", logger.FieldCount, len(records), logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to store records")
		return
	}

	recordsStored.Add(float64(len(records)))
	writeJSON(w, http.StatusOK, pushResponse{Stored: len(records)})
}

// HandleNext returns a page of one chain.
// GET /api/v0/record/next?host=<uuid>&tag=<tag>&start=<idx>&count=<n>
func (s *Server) HandleNext(w http.ResponseWriter, r *http.Request) {
	host, tag, start, count, err := parseNextQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count = min(count, s.maxPage)

	records, err := s.store.Next(r.Context(), host, tag, start, count)
	if err != nil {
		if errors.Is(err, db.ErrDatabaseClosed) {
			writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
			return
		}
		logger.FromContext(r.Context(), s.log).Errorw("Failed to read records",
			logger.FieldHostID, host.String(),
			logger.FieldTag, tag,
			logger.FieldOffset, start,
			logger.FieldError, err,
		)
		writeError(w, http.StatusInternalServerError, "Failed to read records")
		return
	}
	if records == nil {
		records = []record.Record{}
	}
	recordsServed.Add(float64(len(records)))
	writeJSON(w, http.StatusOK, records)
}

func parseNextQuery(q url.Values) (host record.HostID, tag string, start record.Idx, count uint64, err error) {
	host, err = record.ParseHostID(q.Get("host"))
	if err != nil {
		return host, "", 0, 0, errors.NewInvalidRequestError("Invalid 'host' parameter")
	}
	tag = q.Get("tag")
	if tag == "" {
		return host, "", 0, 0, errors.NewInvalidRequestError("Missing 'tag' parameter")
	}
	n, err := strconv.ParseUint(q.Get("start"), 10, 64)
	if err != nil {
		return host, tag, 0, 0, errors.NewInvalidRequestError("Invalid 'start' parameter")
	}
	start = record.Idx(n)
	count, err = strconv.ParseUint(q.Get("count"), 10, 64)
	if err != nil || count == 0 {
		return host, tag, start, 0, errors.NewInvalidRequestError("Invalid 'count' parameter")
	}
	return host, tag, start, count, nil
}

func validateRecord(rec record.Record) error {
	if rec.ID == uuid.Nil {
		return errors.NewInvalidRequestError("missing id")
	}
	if rec.Host.UUID == uuid.Nil {
		return errors.NewInvalidRequestError("missing host")
	}
	if rec.Tag == "" {
		return errors.NewInvalidRequestError("missing tag")
	}
	if rec.Data == nil {
		return errors.NewInvalidRequestError("missing data")
	}
	return nil
}
