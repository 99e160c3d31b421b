package handler

import (
	"net/http"

	"modelmine/internal/model"
	"modelmine/internal/service"

	"github.com/gin-gonic/gin"
)

// NodeHandler handles node registration, heartbeats and listings
type NodeHandler struct {
	nodeService *service.NodeService
}

// NewNodeHandler creates node handler
func NewNodeHandler(nodeService *service.NodeService) *NodeHandler {
	return &NodeHandler{nodeService: nodeService}
}

// Register adds a node
// @Summary Register node
// @Tags nodes
// @Accept json
// @Produce json
// @Param request body model.RegisterNodeRequest true "Node"
// @Success 201 {object} model.Node
// @Router /nodes/register [post]
func (h *NodeHandler) Register(c *gin.Context) {
	var req model.RegisterNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	node, err := h.nodeService.Register(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, "register node", err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

// Heartbeat refreshes a node's liveness and metrics
// @Summary Node heartbeat
// @Tags nodes
// @Accept json
// @Produce json
// @Param request body model.HeartbeatRequest true "Heartbeat"
// @Success 200 {object} model.Node
// @Router /nodes/heartbeat [post]
func (h *NodeHandler) Heartbeat(c *gin.Context) {
	var req model.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	node, err := h.nodeService.Heartbeat(c.Request.Context(), req.NodeID, req.Metrics)
	if err != nil {
		respondError(c, "record heartbeat", err)
		return
	}
	c.JSON(http.StatusOK, node)
}

// List returns every node, newest first
func (h *NodeHandler) List(c *gin.Context) {
	nodes, err := h.nodeService.List(c.Request.Context())
	if err != nil {
		respondError(c, "list nodes", err)
		return
	}
	c.JSON(http.StatusOK, nonNilNodes(nodes))
}

// ListActive returns nodes passing the liveness check, oldest first
func (h *NodeHandler) ListActive(c *gin.Context) {
	nodes, err := h.nodeService.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, "list active nodes", err)
		return
	}
	c.JSON(http.StatusOK, nonNilNodes(nodes))
}

// Presence returns the cross-replica presence snapshot
func (h *NodeHandler) Presence(c *gin.Context) {
	nodes, err := h.nodeService.Presence(c.Request.Context())
	if err != nil {
		respondError(c, "read node presence", err)
		return
	}
	c.JSON(http.StatusOK, nonNilNodes(nodes))
}

func nonNilNodes(nodes []*model.Node) []*model.Node {
	if nodes == nil {
		return []*model.Node{}
	}
	return nodes
}
