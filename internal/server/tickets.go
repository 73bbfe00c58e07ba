package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/duesledger/internal/authorization"
	ticketdomain "github.com/smallbiznis/duesledger/internal/ticket/domain"
)

func (s *Server) loadTicket(c *gin.Context) (*ticketdomain.Ticket, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	ticket, err := s.ticketSvc.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(c, ticket.UserID, authorization.ObjectTicket, authorization.ActionTicketViewAll); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *Server) GetTicket(c *gin.Context) {
	ticket, err := s.loadTicket(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

func (s *Server) DownloadTicketReceipt(c *gin.Context) {
	ticket, err := s.loadTicket(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	receipt, err := s.ticketSvc.RenderReceipt(c.Request.Context(), ticket.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.Filename))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", receipt.Body, nil)
}

func (s *Server) ListChargeTickets(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	charge, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOwner(c, charge.Member(), authorization.ObjectTicket, authorization.ActionTicketViewAll); err != nil {
		AbortWithError(c, err)
		return
	}

	tickets, err := s.ticketSvc.ListByPayment(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tickets})
}

func (s *Server) ListMemberTickets(c *gin.Context) {
	memberID := strings.TrimSpace(c.Param("id"))
	if err := s.authorizeOwner(c, memberID, authorization.ObjectTicket, authorization.ActionTicketViewAll); err != nil {
		AbortWithError(c, err)
		return
	}

	tickets, err := s.ticketSvc.ListByUser(c.Request.Context(), memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tickets})
}

type purgeTicketRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) PurgeTicket(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req purgeTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.ticketSvc.Purge(c.Request.Context(), ticketdomain.PurgeRequest{
		TicketID: id,
		ActorID:  actorID(c),
		Reason:   strings.TrimSpace(req.Reason),
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
