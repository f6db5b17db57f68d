package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/session"
	"pizza-phone-agent/backend/internal/telephony"
	"pizza-phone-agent/backend/pkg/config"
	"pizza-phone-agent/backend/pkg/logger"
)

const twimlContentType = "text/xml; charset=utf-8"

// handleIncomingCall answers the call-setup webhook with a directive to
// bridge the call to /media-stream. The menu is warmed while answering;
// when that misses the setup deadline the fallback directive is sent.
func (s *Server) handleIncomingCall(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "bad form")
		return
	}
	form := c.Request.PostForm
	callSid := form.Get("CallSid")
	from := form.Get("From")
	log := logger.ForCall(s.logger, callSid, "")

	if s.cfg.ValidateTwilioSig {
		signature := c.GetHeader(telephony.SignatureHeader)
		if !telephony.ValidateSignature(s.cfg.TwilioAuthToken, s.webhookURL(c), form, signature) {
			log.Warn("Rejected call webhook with bad signature")
			c.String(http.StatusForbidden, "invalid signature")
			return
		}
	}

	streamURL := s.streamURL(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.Ms(s.cfg.CallSetupTimeoutMs))
	defer cancel()

	warmed := make(chan error, 1)
	go func() {
		_, err := s.menus.Menu(ctx)
		warmed <- err
	}()

	select {
	case err := <-warmed:
		if err != nil && ctx.Err() == nil {
			log.Warn("Menu unavailable during call setup", zap.Error(err))
		}
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		log.Warn("Call setup deadline passed, sending fallback",
			zap.Int("timeout_ms", s.cfg.CallSetupTimeoutMs))
		c.Data(http.StatusOK, twimlContentType, telephony.Fallback(streamURL))
		return
	}

	body, err := telephony.ConnectStream(streamURL, map[string]string{telephony.ParamFrom: from})
	if err != nil {
		log.Error("Failed to render call directive", zap.Error(err))
		body = telephony.Fallback(streamURL)
	}
	log.Info("Incoming call", zap.String("from", from))
	c.Data(http.StatusOK, twimlContentType, body)
}

// handleMediaStream runs one call's media websocket. The stream's start
// frame creates the session; the session ends when the stream does.
func (s *Server) handleMediaStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Media stream upgrade failed", zap.Error(err))
		return
	}
	stream := telephony.NewStreamConn(conn)
	defer stream.Close()

	var sess *session.Session
	defer func() {
		if sess != nil {
			endCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			s.sessions.End(endCtx, sess)
		}
	}()

	for {
		msg, err := stream.Read()
		if errors.Is(err, telephony.ErrMalformedFrame) {
			s.logger.Debug("Skipping malformed media frame", zap.Error(err))
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Media stream closed unexpectedly", zap.Error(err))
			}
			return
		}

		switch msg.Event {
		case telephony.EventConnected:
			s.logger.Debug("Media stream connected", zap.String("protocol", msg.Protocol))

		case telephony.EventStart:
			if msg.Start == nil || sess != nil {
				continue
			}
			stream.SetStreamSid(msg.Start.StreamSid)
			sess = s.startSession(c.Request.Context(), msg.Start, stream)

		case telephony.EventMedia:
			if sess == nil || msg.Media == nil {
				continue
			}
			if msg.Media.Track != "" && msg.Media.Track != "inbound" {
				continue
			}
			sess.PushCallerAudio(msg.Media.Payload)

		case telephony.EventMark:
			if msg.Mark != nil {
				s.logger.Debug("Playback mark", zap.String("name", msg.Mark.Name))
			}

		case telephony.EventStop:
			s.logger.Info("Media stream stopped", zap.String("stream_sid", msg.StreamSid))
			return
		}
	}
}

func (s *Server) startSession(ctx context.Context, start *telephony.StartPayload, stream *telephony.StreamConn) *session.Session {
	menuCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.MenuFetchTimeout)*time.Second)
	mn, err := s.menus.Menu(menuCtx)
	cancel()
	if err != nil {
		s.logger.Warn("Menu fetch failed, using built-in menu",
			zap.String("call_id", start.CallSid), zap.Error(err))
		mn = nil
	}

	sess, replaced := s.sessions.Create(ctx, start.CallSid, start.CallerID(), stream, mn)
	s.logger.Info("Media stream started",
		zap.String("call_id", start.CallSid),
		zap.String("stream_sid", start.StreamSid),
		zap.Bool("replaced", replaced),
	)
	return sess
}

// webhookURL is the URL the provider signed: the public host when one is
// configured, otherwise the host the request arrived on.
func (s *Server) webhookURL(c *gin.Context) string {
	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + s.publicHost(c) + c.Request.URL.RequestURI()
}

func (s *Server) streamURL(c *gin.Context) string {
	return "wss://" + s.publicHost(c) + "/media-stream"
}

func (s *Server) publicHost(c *gin.Context) string {
	if s.cfg.PublicHost != "" {
		return s.cfg.PublicHost
	}
	return c.Request.Host
}
