package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/duesledger/internal/membership/domain"
)

type syncGroupRequest struct {
	Category             string `json:"category"`
	Amount               string `json:"amount"`
	DueDate              string `json:"due_date"`
	ConfirmSettledDetach bool   `json:"confirm_settled_detach"`
}

func (s *Server) bindSyncRequest(c *gin.Context) (membershipdomain.SyncRequest, error) {
	var req syncGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return membershipdomain.SyncRequest{}, invalidRequestError()
	}
	key, err := createChargeRequest{
		Category: req.Category,
		Amount:   req.Amount,
		DueDate:  req.DueDate,
	}.chargeKey()
	if err != nil {
		return membershipdomain.SyncRequest{}, err
	}
	return membershipdomain.SyncRequest{
		GroupID:              strings.TrimSpace(c.Param("id")),
		Charge:               key,
		ActorID:              actorID(c),
		ConfirmSettledDetach: req.ConfirmSettledDetach,
	}, nil
}

// PlanGroupSync is the dry run shown before the admin confirms a sync.
func (s *Server) PlanGroupSync(c *gin.Context) {
	req, err := s.bindSyncRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	plan, err := s.membershipSvc.Plan(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plan})
}

func (s *Server) SyncGroup(c *gin.Context) {
	req, err := s.bindSyncRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.membershipSvc.Sync(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
