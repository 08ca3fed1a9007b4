package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shardwork/jobmesh/internal/transport"
)

// RPCDispatcher is the receiving side of a forwarded cross-runner call
// (spec.md REDESIGN FLAGS: transport polymorphism).
type RPCDispatcher interface {
	Handle(ctx context.Context, msg transport.Message) transport.Message
}

type InternalRPCHandler struct {
	dispatcher RPCDispatcher
	upgrader   websocket.Upgrader
}

func NewInternalRPCHandler(d RPCDispatcher) *InternalRPCHandler {
	return &InternalRPCHandler{
		dispatcher: d,
		// internal cluster traffic only; there's no browser origin to check.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// POST /internal/rpc — the HTTP transport's server side.
func (h *InternalRPCHandler) HTTP(ctx *gin.Context) {
	var msg transport.Message
	if err := ctx.ShouldBindJSON(&msg); err != nil {
		RespondBadRequest(ctx, "invalid_request", "malformed rpc message")
		return
	}
	reply := h.dispatcher.Handle(ctx.Request.Context(), msg)
	ctx.JSON(http.StatusOK, reply)
}

// GET /internal/rpc/ws — the websocket transport's server side: one
// upgraded connection multiplexing request/response frames until the
// peer disconnects.
func (h *InternalRPCHandler) Websocket(ctx *gin.Context) {
	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var msg transport.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		reply := h.dispatcher.Handle(ctx.Request.Context(), msg)
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}
