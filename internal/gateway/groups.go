package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// adminRoleID marks service administrators, the only users allowed to manage
// groups and templates.
const adminRoleID = "admin"

type createGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (g *Gateway) requireAdminRole(c *gin.Context, resourceType string) (*model.User, bool) {
	user := currentUser(c)
	if user.RoleID != adminRoleID {
		g.audit.LogAuthorization(c.Request.Context(), audit.OutcomeDenied,
			&audit.Subject{UserID: user.ID, Email: user.Email},
			&audit.Resource{Type: resourceType})
		g.writeError(c, util.NewAccessError(user.ID, "", resourceType+" management requires the admin role"))
		return nil, false
	}
	return user, true
}

func (g *Gateway) listGroups(c *gin.Context) {
	if _, ok := g.requireAdminRole(c, "group"); !ok {
		return
	}

	groups, err := g.store.Groups().List(c.Request.Context())
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (g *Gateway) createGroup(c *gin.Context) {
	user, ok := g.requireAdminRole(c, "group")
	if !ok {
		return
	}

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}

	group := &model.Group{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := g.store.Groups().Create(c.Request.Context(), group); err != nil {
		g.writeError(c, err)
		return
	}

	g.logger.Info("group created",
		observability.String("groupId", group.ID),
		observability.String("actor", user.ID))
	c.JSON(http.StatusCreated, group)
}

func (g *Gateway) deleteGroup(c *gin.Context) {
	user, ok := g.requireAdminRole(c, "group")
	if !ok {
		return
	}
	groupID := c.Param("id")

	if err := g.store.Groups().Delete(c.Request.Context(), groupID); err != nil {
		g.writeError(c, err)
		return
	}

	g.logger.Info("group deleted",
		observability.String("groupId", groupID),
		observability.String("actor", user.ID))
	c.Status(http.StatusNoContent)
}

func (g *Gateway) addGroupMember(c *gin.Context) {
	if _, ok := g.requireAdminRole(c, "group"); !ok {
		return
	}
	groupID := c.Param("id")
	userID := c.Param("userId")

	if _, err := g.store.Users().Get(c.Request.Context(), userID); err != nil {
		g.writeError(c, err)
		return
	}
	if err := g.store.Groups().AddMember(c.Request.Context(), groupID, userID); err != nil {
		g.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (g *Gateway) removeGroupMember(c *gin.Context) {
	if _, ok := g.requireAdminRole(c, "group"); !ok {
		return
	}
	groupID := c.Param("id")
	userID := c.Param("userId")

	if err := g.store.Groups().RemoveMember(c.Request.Context(), groupID, userID); err != nil {
		g.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
