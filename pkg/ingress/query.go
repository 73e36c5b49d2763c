package ingress

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openhqm/openhqm/pkg/envelope"
	"github.com/openhqm/openhqm/pkg/errors"
)

// StatusResponse is the GET /api/v1/status/{cid} body.
type StatusResponse struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	SubmittedAt   string `json:"submitted_at"`
	UpdatedAt     string `json:"updated_at"`
}

func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()
	cid := c.Param("cid")

	var state envelope.RequestState
	if err := s.store.Get(ctx, envelope.RequestStateKey(cid), &state); err != nil {
		return respondErr(c, errors.NotFound("unknown correlation id", err))
	}

	return c.JSON(http.StatusOK, StatusResponse{
		CorrelationID: state.CorrelationID,
		Status:        state.Status,
		SubmittedAt:   state.SubmittedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		UpdatedAt:     state.UpdatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
	})
}

// ResponseResult is the GET /api/v1/response/{cid} body. Exactly one of
// Result or Error is populated once processing has finished; while
// PENDING/PROCESSING only Status is set.
type ResponseResult struct {
	CorrelationID string                 `json:"correlation_id"`
	Status        string                 `json:"status"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
	StatusCode    int                    `json:"status_code,omitempty"`
	Headers       map[string]string      `json:"headers,omitempty"`
}

func (s *Server) handleResponse(c echo.Context) error {
	ctx := c.Request().Context()
	cid := c.Param("cid")

	var state envelope.RequestState
	if err := s.store.Get(ctx, envelope.RequestStateKey(cid), &state); err != nil {
		return respondErr(c, errors.NotFound("unknown correlation id", err))
	}

	switch state.Status {
	case envelope.StatusCompleted:
		var record envelope.ResponseRecord
		if err := s.store.Get(ctx, envelope.ResponseRecordKey(cid), &record); err != nil {
			return respondErr(c, errors.NotFound("result expired or missing", err))
		}
		return c.JSON(http.StatusOK, ResponseResult{
			CorrelationID: cid,
			Status:        state.Status,
			Result:        record.Result,
			StatusCode:    record.StatusCode,
			Headers:       record.Headers,
		})
	case envelope.StatusFailed:
		var record envelope.ResponseRecord
		errMsg := "Processing failed"
		if err := s.store.Get(ctx, envelope.ResponseRecordKey(cid), &record); err == nil && record.Error != "" {
			errMsg = record.Error
		}
		return c.JSON(http.StatusOK, ResponseResult{
			CorrelationID: cid,
			Status:        state.Status,
			Error:         errMsg,
		})
	default:
		return c.JSON(http.StatusAccepted, ResponseResult{
			CorrelationID: cid,
			Status:        state.Status,
		})
	}
}
