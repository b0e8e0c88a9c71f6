package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mankindli/sub-gateway/internal/customers"
	"github.com/mankindli/sub-gateway/internal/model"
	"github.com/mankindli/sub-gateway/internal/store"
	"go.uber.org/zap"
)

type nodePayload struct {
	Share string         `json:"share"`
	Clash map[string]any `json:"clash"`
}

type nodePairPayload struct {
	Primary nodePayload `json:"primary"`
	Backup  nodePayload `json:"backup"`
}

type createCustomerPayload struct {
	Name        string          `json:"name"`
	Nodes       nodePairPayload `json:"nodes"`
	Enabled     *bool           `json:"enabled"`
	IPSource    string          `json:"ip_source"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	Remark      string          `json:"remark"`
	PrimaryName string          `json:"primary_name"`
	BackupName  string          `json:"backup_name"`
}

type updateCustomerPayload struct {
	Name           *string          `json:"name"`
	Enabled        *bool            `json:"enabled"`
	Nodes          *nodePairPayload `json:"nodes"`
	IPSource       *string          `json:"ip_source"`
	ExpiresAt      *time.Time       `json:"expires_at"`
	ClearExpiresAt bool             `json:"clear_expires_at"`
	Remark         *string          `json:"remark"`
	PrimaryName    *string          `json:"primary_name"`
	BackupName     *string          `json:"backup_name"`
}

type overridePayload struct {
	Primary   *nodePayload `json:"primary"`
	Backup    *nodePayload `json:"backup"`
	Note      string       `json:"note"`
	ClearNote bool         `json:"clear_note"`
}

type customerResponsePayload struct {
	Token         string            `json:"token"`
	Name          string            `json:"name"`
	Enabled       bool              `json:"enabled"`
	Nodes         model.NodePair    `json:"nodes"`
	Override      *model.Override   `json:"override,omitempty"`
	IPSource      string            `json:"ip_source,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Remark        string            `json:"remark,omitempty"`
	PrimaryName   string            `json:"primary_name,omitempty"`
	BackupName    string            `json:"backup_name,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	SubscribeURLs map[string]string `json:"subscribe_urls"`
}

type customerListItemPayload struct {
	Token         string            `json:"token"`
	Name          string            `json:"name"`
	Enabled       bool              `json:"enabled"`
	HasOverride   bool              `json:"has_override"`
	IPSource      string            `json:"ip_source,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Remark        string            `json:"remark,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	SubscribeURLs map[string]string `json:"subscribe_urls"`
}

type rotateResponsePayload struct {
	OldToken      string            `json:"old_token"`
	NewToken      string            `json:"new_token"`
	SubscribeURLs map[string]string `json:"subscribe_urls"`
}

func (h *httpHandler) subscribeURLs(token string) map[string]string {
	return map[string]string{
		"v2rayn": h.baseURL + "/s/" + token + "/v2rayn",
		"clash":  h.baseURL + "/s/" + token + "/clash",
	}
}

func (h *httpHandler) customerResponse(customer model.Customer) customerResponsePayload {
	return customerResponsePayload{
		Token:         customer.Token,
		Name:          customer.Name,
		Enabled:       customer.Enabled,
		Nodes:         customer.Nodes,
		Override:      customer.Override,
		IPSource:      customer.IPSource,
		ExpiresAt:     customer.ExpiresAt,
		Remark:        customer.Remark,
		PrimaryName:   customer.PrimaryName,
		BackupName:    customer.BackupName,
		CreatedAt:     customer.CreatedAt,
		UpdatedAt:     customer.UpdatedAt,
		SubscribeURLs: h.subscribeURLs(customer.Token),
	}
}

func payloadToNode(payload nodePayload) model.Node {
	return model.Node{Share: payload.Share, Clash: payload.Clash}
}

func payloadToNodePair(payload nodePairPayload) model.NodePair {
	return model.NodePair{
		Primary: payloadToNode(payload.Primary),
		Backup:  payloadToNode(payload.Backup),
	}
}

func payloadToOverridePatch(payload overridePayload) customers.OverridePatch {
	patch := customers.OverridePatch{Note: payload.Note, ClearNote: payload.ClearNote}
	if payload.Primary != nil {
		node := payloadToNode(*payload.Primary)
		patch.Primary = &node
	}
	if payload.Backup != nil {
		node := payloadToNode(*payload.Backup)
		patch.Backup = &node
	}
	return patch
}

func (h *httpHandler) handleCreateCustomer(c *gin.Context) {
	var payload createCustomerPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	created, err := h.customers.Create(c.Request.Context(), customers.CreateParams{
		Name:        payload.Name,
		Nodes:       payloadToNodePair(payload.Nodes),
		Enabled:     payload.Enabled,
		IPSource:    payload.IPSource,
		ExpiresAt:   payload.ExpiresAt,
		Remark:      payload.Remark,
		PrimaryName: payload.PrimaryName,
		BackupName:  payload.BackupName,
	})
	if err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.customerResponse(created))
}

func (h *httpHandler) handleListCustomers(c *gin.Context) {
	all, err := h.customers.List(c.Request.Context())
	if err != nil {
		h.respondAdminError(c, err)
		return
	}

	items := make([]customerListItemPayload, 0, len(all))
	for _, customer := range all {
		items = append(items, customerListItemPayload{
			Token:         customer.Token,
			Name:          customer.Name,
			Enabled:       customer.Enabled,
			HasOverride:   customer.Override != nil,
			IPSource:      customer.IPSource,
			ExpiresAt:     customer.ExpiresAt,
			Remark:        customer.Remark,
			CreatedAt:     customer.CreatedAt,
			UpdatedAt:     customer.UpdatedAt,
			SubscribeURLs: h.subscribeURLs(customer.Token),
		})
	}
	c.JSON(http.StatusOK, items)
}

func (h *httpHandler) handleGetCustomer(c *gin.Context) {
	customer, err := h.customers.Get(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.customerResponse(customer))
}

func (h *httpHandler) handleUpdateCustomer(c *gin.Context) {
	var payload updateCustomerPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	patch := customers.UpdatePatch{
		Name:           payload.Name,
		Enabled:        payload.Enabled,
		IPSource:       payload.IPSource,
		ExpiresAt:      payload.ExpiresAt,
		ClearExpiresAt: payload.ClearExpiresAt,
		Remark:         payload.Remark,
		PrimaryName:    payload.PrimaryName,
		BackupName:     payload.BackupName,
	}
	if payload.Nodes != nil {
		nodes := payloadToNodePair(*payload.Nodes)
		patch.Nodes = &nodes
	}

	updated, err := h.customers.Update(c.Request.Context(), c.Param("token"), patch)
	if err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.customerResponse(updated))
}

func (h *httpHandler) handleDeleteCustomer(c *gin.Context) {
	if err := h.customers.Delete(c.Request.Context(), c.Param("token")); err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "customer deleted"})
}

func (h *httpHandler) handleRotateToken(c *gin.Context) {
	oldToken := c.Param("token")
	rotated, err := h.customers.RotateToken(c.Request.Context(), oldToken)
	if err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, rotateResponsePayload{
		OldToken:      oldToken,
		NewToken:      rotated.Token,
		SubscribeURLs: h.subscribeURLs(rotated.Token),
	})
}

func (h *httpHandler) handleSetOverride(c *gin.Context) {
	var payload overridePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.customers.SetOverride(c.Request.Context(), c.Param("token"), payloadToOverridePatch(payload))
	if err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "override set"})
}

func (h *httpHandler) handleClearOverride(c *gin.Context) {
	if err := h.customers.ClearOverride(c.Request.Context(), c.Param("token")); err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "override cleared"})
}

func (h *httpHandler) handleEnableCustomer(c *gin.Context) {
	if err := h.customers.Enable(c.Request.Context(), c.Param("token")); err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "customer enabled"})
}

func (h *httpHandler) handleDisableCustomer(c *gin.Context) {
	if err := h.customers.Disable(c.Request.Context(), c.Param("token")); err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "customer disabled"})
}

func (h *httpHandler) handleSetDefaultOverride(c *gin.Context) {
	var payload overridePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.customers.SetDefaultOverride(c.Request.Context(), payloadToOverridePatch(payload))
	if err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "default override set"})
}

func (h *httpHandler) handleClearDefaultOverride(c *gin.Context) {
	if err := h.customers.ClearDefaultOverride(c.Request.Context()); err != nil {
		h.respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "default override cleared"})
}

// respondAdminError maps engine failures to admin responses. The admin
// surface is authenticated, so unlike the public endpoint it may state which
// failure actually occurred.
func (h *httpHandler) respondAdminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
	case errors.Is(err, customers.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("admin operation failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
