package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
	"github.com/secmon-lab/beetleboard/pkg/utils/errutil"
)

type syncResponse struct {
	Success  bool                `json:"success"`
	Users    int                 `json:"users"`
	Metadata *model.SyncMetadata `json:"metadata,omitempty"`
}

type passResponse struct {
	Success   bool                `json:"success"`
	Pass      model.SyncPass      `json:"pass"`
	Next      *model.SyncPass     `json:"next"`
	Processed int                 `json:"processed"`
	Fetched   int                 `json:"fetched"`
	Published bool                `json:"published"`
	Metadata  *model.SyncMetadata `json:"metadata,omitempty"`
}

// readPass decodes an optional pass descriptor. An empty body means a full sync.
func readPass(r *http.Request) (*model.SyncPass, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read request body")
	}
	if len(body) == 0 {
		return nil, nil
	}

	var pass model.SyncPass
	if err := json.Unmarshal(body, &pass); err != nil {
		return nil, goerr.Wrap(err, "invalid pass descriptor")
	}
	if err := pass.Validate(); err != nil {
		return nil, err
	}
	return &pass, nil
}

func syncFailureStatus(err error) int {
	switch {
	case errors.Is(err, usecase.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrIncompleteSync),
		errors.Is(err, usecase.ErrNoUsersFetched),
		errors.Is(err, usecase.ErrDiscoveryFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func syncHandler(trigger SyncTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		pass, err := readPass(r)
		if err != nil {
			writeError(ctx, w, http.StatusBadRequest, err.Error())
			return
		}

		if pass == nil {
			snapshot, err := trigger.TriggerManual(ctx)
			if err != nil {
				status := syncFailureStatus(err)
				if status == http.StatusConflict {
					writeError(ctx, w, status, "Sync already in progress")
					return
				}
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "manual sync failed"), status)
				return
			}
			writeJSON(ctx, w, http.StatusOK, syncResponse{
				Success:  true,
				Users:    len(snapshot.Records),
				Metadata: &snapshot.Meta,
			})
			return
		}

		result, err := trigger.TriggerPass(ctx, *pass)
		if err != nil {
			status := syncFailureStatus(err)
			if status == http.StatusConflict {
				writeError(ctx, w, status, "Sync already in progress")
				return
			}
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "sync pass failed", goerr.V("pass", pass.Pass)), status)
			return
		}

		resp := passResponse{
			Success:   true,
			Pass:      result.Pass,
			Next:      result.Next,
			Processed: result.Processed,
			Fetched:   result.Fetched,
		}
		if result.Snapshot != nil {
			resp.Published = true
			resp.Metadata = &result.Snapshot.Meta
		}
		writeJSON(ctx, w, http.StatusOK, resp)
	}
}

func syncBackgroundHandler(trigger SyncTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := trigger.TriggerBackground(ctx); err != nil {
			if errors.Is(err, usecase.ErrSyncInProgress) {
				writeError(ctx, w, http.StatusConflict, "Sync already in progress")
				return
			}
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to start background sync"), http.StatusInternalServerError)
			return
		}
		writeJSON(ctx, w, http.StatusAccepted, map[string]any{
			"success": true,
			"message": "Sync started in background",
		})
	}
}

func syncStatusHandler(trigger SyncTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, http.StatusOK, trigger.Status())
	}
}
