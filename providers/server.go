package providers

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/docflow/eventhub/config"
	"github.com/docflow/eventhub/src/hub"
	"github.com/docflow/eventhub/src/service"
)

// Server exposes the hub over HTTP: admin/info routes via Fiber and the
// WebSocket upgrade as a raw fasthttp handler, registered at the app level
// since Fiber v3 does not expose *fasthttp.RequestCtx.
type Server struct {
	hub      *hub.Hub
	svc      *service.Service
	cfg      *config.Config
	logger   zerolog.Logger
	upgrader websocket.FastHTTPUpgrader
}

// NewServer creates the HTTP surface for a running hub.
func NewServer(h *hub.Hub, svc *service.Service, cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{
		hub:    h,
		svc:    svc,
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}
}

// RegisterRoutes registers the admin routes.
func (s *Server) RegisterRoutes(r fiber.Router) {
	r.Get("/ws/info", s.handleInfo)
	r.Get("/ws/stats", s.handleStats)
	r.Get("/ws/connections", s.handleConnections)
	r.Post("/ws/publish", s.handlePublish)
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	stats := s.hub.Stats()
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   stats.Active,
		"running":   s.hub.Running(),
	})
}

func (s *Server) handleStats(c fiber.Ctx) error {
	return c.JSON(s.hub.Stats())
}

func (s *Server) handleConnections(c fiber.Ctx) error {
	conns := s.hub.ListConnections()
	return c.JSON(fiber.Map{
		"connections": conns,
		"count":       len(conns),
	})
}

type publishRequest struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data"`
	UserID        string         `json:"user_id"`
	RequiredRoles []string       `json:"required_roles"`
}

// handlePublish lets operators and local collaborators inject an event over
// HTTP instead of the Redis ingest.
func (s *Server) handlePublish(c fiber.Ctx) error {
	var req publishRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type is required"})
	}

	var delivered int
	if req.UserID != "" {
		delivered = s.svc.Unicast(req.UserID, req.Type, req.Data)
	} else {
		delivered = s.svc.Broadcast(req.Type, req.Data, req.RequiredRoles...)
	}
	return c.JSON(fiber.Map{"published": true, "delivered": delivered})
}

// FastHTTPHandler returns the raw fasthttp handler for WebSocket upgrades.
// Register this on the fasthttp server at the "/ws" path. Capacity rejection
// is accept-then-close: the upgrade completes, the client receives a 4001
// close frame, and the socket is torn down.
func (s *Server) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		token := clientToken(ctx)
		info := clientInfo(ctx)

		err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			id, err := s.hub.Connect(&fasthttpConn{conn: conn}, token, info)
			if err != nil {
				if errors.Is(err, hub.ErrCapacityExceeded) {
					s.logger.Warn().Msg("connection rejected: capacity exceeded")
				}
				return
			}
			s.hub.ReadPump(id)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// clientToken pulls the bearer credential from the token query parameter or
// the Authorization header.
func clientToken(ctx *fasthttp.RequestCtx) string {
	if tok := string(ctx.QueryArgs().Peek("token")); tok != "" {
		return tok
	}
	authz := string(ctx.Request.Header.Peek("Authorization"))
	if after, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return after
	}
	return ""
}

func clientInfo(ctx *fasthttp.RequestCtx) map[string]string {
	info := map[string]string{
		"remote_addr": ctx.RemoteAddr().String(),
	}
	if ua := string(ctx.Request.Header.Peek("User-Agent")); ua != "" {
		info["user_agent"] = ua
	}
	if origin := string(ctx.Request.Header.Peek("Origin")); origin != "" {
		info["origin"] = origin
	}
	if client := string(ctx.QueryArgs().Peek("client")); client != "" {
		info["client"] = client
	}
	return info
}

// fasthttpConn adapts fasthttp/websocket.Conn to types.Conn.
type fasthttpConn struct {
	conn *websocket.Conn
}

func (f *fasthttpConn) WriteJSON(v any) error { return f.conn.WriteJSON(v) }
func (f *fasthttpConn) ReadJSON(v any) error  { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error          { return f.conn.Close() }

func (f *fasthttpConn) WriteClose(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return f.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
}
