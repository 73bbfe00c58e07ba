package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/duesledger/internal/authorization"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/duesledger/internal/reconciliation/domain"
	"github.com/smallbiznis/duesledger/pkg/money"
)

type createChargeRequest struct {
	MemberID    string `json:"member_id"`
	GroupID     string `json:"group_id"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	DueDate     string `json:"due_date"`
	Observation string `json:"observation"`
}

func (r createChargeRequest) chargeKey() (paymentdomain.ChargeKey, error) {
	amount, err := money.Parse(r.Amount)
	if err != nil {
		return paymentdomain.ChargeKey{}, newValidationError("amount", "invalid_amount", "invalid amount")
	}
	return paymentdomain.ChargeKey{
		Category: strings.TrimSpace(r.Category),
		Amount:   amount,
		DueDate:  paymentdomain.Date(strings.TrimSpace(r.DueDate)),
	}, nil
}

func (s *Server) CreateCharge(c *gin.Context) {
	var req createChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	key, err := req.chargeKey()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.CreateCharge(c.Request.Context(), paymentdomain.CreateChargeRequest{
		MemberID:    strings.TrimSpace(req.MemberID),
		Category:    key.Category,
		Amount:      key.Amount,
		DueDate:     string(key.DueDate),
		Observation: strings.TrimSpace(req.Observation),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CreateGroupCharge(c *gin.Context) {
	var req createChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	key, err := req.chargeKey()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, err := s.paymentSvc.CreateGroupCharge(c.Request.Context(), paymentdomain.CreateGroupChargeRequest{
		GroupID:     strings.TrimSpace(req.GroupID),
		Category:    key.Category,
		Amount:      key.Amount,
		DueDate:     string(key.DueDate),
		Observation: strings.TrimSpace(req.Observation),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rows})
}

func (s *Server) CreateExpense(c *gin.Context) {
	var req createChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	key, err := req.chargeKey()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.CreateExpense(c.Request.Context(), paymentdomain.CreateExpenseRequest{
		Category:    key.Category,
		Amount:      key.Amount,
		DueDate:     string(key.DueDate),
		Observation: strings.TrimSpace(req.Observation),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetCharge(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOwner(c, resp.Member(), authorization.ObjectCharge, authorization.ActionChargeViewAll); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMemberCharges(c *gin.Context) {
	memberID := strings.TrimSpace(c.Param("id"))
	if err := s.authorizeOwner(c, memberID, authorization.ObjectCharge, authorization.ActionChargeViewAll); err != nil {
		AbortWithError(c, err)
		return
	}

	rows, err := s.paymentSvc.ListByMember(c.Request.Context(), memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) ListGroupCharges(c *gin.Context) {
	var filter reconciliationdomain.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	charges, err := s.reconciliationSvc.ListGroupCharges(c.Request.Context(), reconciliationdomain.Filter{
		GroupID:  strings.TrimSpace(filter.GroupID),
		Category: strings.TrimSpace(filter.Category),
		Status:   reconciliationdomain.GroupStatus(strings.TrimSpace(string(filter.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": charges})
}

func (s *Server) GetGroupCharge(c *gin.Context) {
	key, err := chargeKeyFromQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	charge, err := s.reconciliationSvc.GetGroupCharge(c.Request.Context(), strings.TrimSpace(c.Param("group_id")), key)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": charge})
}

func chargeKeyFromQuery(c *gin.Context) (paymentdomain.ChargeKey, error) {
	var query struct {
		Category string `form:"category"`
		Amount   string `form:"amount"`
		DueDate  string `form:"due_date"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		return paymentdomain.ChargeKey{}, invalidRequestError()
	}
	return createChargeRequest{
		Category: query.Category,
		Amount:   query.Amount,
		DueDate:  query.DueDate,
	}.chargeKey()
}
