package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/narravox/internal/conversation"
	"github.com/narravox/internal/report"
)

// frameDelimiter separates envelope frames on the wire. Envelope JSON never
// contains a newline or the delimiter, so clients can split on it directly.
const frameDelimiter = "|||"

const defaultHeartbeat = 10 * time.Second

// getNarrative streams one report: a chunked text/plain body of JSON
// envelope frames separated by "|||", one frame per section, in completion
// order. Empty-object heartbeat frames keep the connection alive until the
// first section lands.
func (s *Server) getNarrative(c echo.Context) error {
	force, _ := strconv.ParseBool(c.QueryParam("force"))
	req := report.Request{
		ConversationID: c.Param("conversation_id"),
		ReportID:       c.QueryParam("report_id"),
		Model:          c.QueryParam("model"),
		ModelVersion:   c.QueryParam("model_version"),
		ForceRefresh:   force,
	}

	ctx := c.Request().Context()
	envelopes, err := s.reports.Run(ctx, req)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("Failed to start report")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start report")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	resp.WriteHeader(http.StatusOK)

	interval := s.cfg.Report.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeat
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if err := writeFrame(resp, []byte("{}")); err != nil {
				return nil
			}
		case envelope, ok := <-envelopes:
			if !ok {
				return nil
			}
			heartbeat.Stop()
			payload, err := json.Marshal(envelope)
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode section envelope")
				continue
			}
			if err := writeFrame(resp, payload); err != nil {
				return nil
			}
		}
	}
}

// writeFrame sends one delimited frame and flushes it down the wire.
func writeFrame(resp *echo.Response, payload []byte) error {
	if _, err := resp.Write(payload); err != nil {
		return err
	}
	if _, err := io.WriteString(resp, frameDelimiter); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
