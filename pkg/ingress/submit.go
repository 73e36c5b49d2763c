package ingress

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openhqm/openhqm/pkg/envelope"
	"github.com/openhqm/openhqm/pkg/errors"
	"github.com/openhqm/openhqm/pkg/logger"
	"github.com/openhqm/openhqm/pkg/queue"
)

// SubmitMetadata is the optional metadata block on a submit request.
type SubmitMetadata struct {
	Priority     int    `json:"priority" validate:"gte=0,lte=9"`
	Timeout      int    `json:"timeout,omitempty" validate:"omitempty,gt=0"`
	Endpoint     string `json:"endpoint,omitempty"`
	Method       string `json:"method,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	PartitionKey string `json:"partition_key,omitempty"`
	Type         string `json:"type,omitempty"`
}

// SubmitRequest is the POST /api/v1/submit body.
type SubmitRequest struct {
	Payload  map[string]interface{} `json:"payload" validate:"required"`
	Headers  map[string]string      `json:"headers,omitempty"`
	Metadata *SubmitMetadata        `json:"metadata,omitempty"`
}

// SubmitResponse is the 202 Accepted body.
type SubmitResponse struct {
	CorrelationID string    `json:"correlation_id"`
	Status        string    `json:"status"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

func (s *Server) handleSubmit(c echo.Context) error {
	ctx := c.Request().Context()

	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		submissionsTotal.WithLabelValues("validation_error").Inc()
		return respondErr(c, errors.InvalidArgument("request body must be a JSON object with a payload field", err))
	}
	if req.Metadata == nil {
		req.Metadata = &SubmitMetadata{}
	}
	if err := s.validate.ValidateStruct(req); err != nil {
		submissionsTotal.WithLabelValues("validation_error").Inc()
		return respondErr(c, errors.InvalidArgument("invalid submit request", err))
	}

	cid := uuid.NewString()
	now := time.Now().UTC()

	msg := &envelope.Message{
		CorrelationID: cid,
		Payload:       req.Payload,
		Headers:       req.Headers,
		Metadata: envelope.Metadata{
			Priority:     req.Metadata.Priority,
			Timeout:      req.Metadata.Timeout,
			Endpoint:     req.Metadata.Endpoint,
			Method:       req.Metadata.Method,
			SessionID:    req.Metadata.SessionID,
			PartitionKey: req.Metadata.PartitionKey,
			Type:         req.Metadata.Type,
		},
		SubmittedAt: now,
	}

	state := envelope.RequestState{
		CorrelationID: cid,
		Status:        envelope.StatusPending,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	if err := s.store.Set(ctx, envelope.RequestStateKey(cid), state, s.cfg.StateTTL); err != nil {
		submissionsTotal.WithLabelValues("store_error").Inc()
		return respondErr(c, errors.Unavailable("failed to record submission", err))
	}

	data, err := msg.Marshal()
	if err != nil {
		submissionsTotal.WithLabelValues("encode_error").Inc()
		return respondErr(c, errors.Internal("failed to encode request", err))
	}

	_, err = s.queue.Publish(ctx, s.cfg.RequestQueue, &queue.Message{
		CorrelationID: cid,
		Payload:       data,
		Priority:      req.Metadata.Priority,
		Timestamp:     now,
	}, queue.PublishOptions{Priority: req.Metadata.Priority})
	if err != nil {
		logger.L().ErrorContext(ctx, "publish failed after state write", "correlation_id", cid, "error", err)
		submissionsTotal.WithLabelValues("queue_unavailable").Inc()
		return respondErr(c, errors.Unavailable("queue unavailable, request not enqueued", err))
	}

	submissionsTotal.WithLabelValues("accepted").Inc()
	return c.JSON(http.StatusAccepted, SubmitResponse{
		CorrelationID: cid,
		Status:        envelope.StatusPending,
		SubmittedAt:   now,
	})
}

func respondErr(c echo.Context, err *errors.AppError) error {
	return c.JSON(errors.ToHTTPStatus(err), map[string]string{"error": err.Message})
}
