package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	treasurydomain "github.com/smallbiznis/duesledger/internal/treasury/domain"
	"github.com/smallbiznis/duesledger/pkg/money"
)

func (s *Server) GetTreasury(c *gin.Context) {
	summary, err := s.treasurySvc.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

type settleExpenseRequest struct {
	Source string `json:"source"`
	Amount string `json:"amount"`
}

func (s *Server) SettleExpense(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req settleExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	settle := treasurydomain.SettleExpenseRequest{
		PaymentID: id,
		Source:    treasurydomain.Source(strings.ToLower(strings.TrimSpace(req.Source))),
		ActorID:   actorID(c),
	}
	if strings.TrimSpace(req.Amount) != "" {
		amount, err := money.Parse(req.Amount)
		if err != nil {
			AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
			return
		}
		settle.Amount = &amount
	}

	result, err := s.treasurySvc.SettleExpense(c.Request.Context(), settle)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
