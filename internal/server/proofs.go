package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/duesledger/internal/authorization"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	proofdomain "github.com/smallbiznis/duesledger/internal/proof/domain"
	"github.com/smallbiznis/duesledger/pkg/db/pagination"
	"github.com/smallbiznis/duesledger/pkg/money"
)

type submitProofRequest struct {
	PaymentIDs    []string `json:"payment_ids"`
	GroupID       string   `json:"group_id"`
	Category      string   `json:"category"`
	ChargeAmount  string   `json:"charge_amount"`
	DueDate       string   `json:"due_date"`
	Amount        string   `json:"amount"`
	PaymentMethod string   `json:"payment_method"`
	Observation   string   `json:"observation"`
	ProofImage    string   `json:"proof_image"`
}

func (s *Server) SubmitProof(c *gin.Context) {
	var req submitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
		return
	}

	paymentIDs := make([]snowflake.ID, 0, len(req.PaymentIDs))
	for _, raw := range req.PaymentIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || id == 0 {
			AbortWithError(c, newValidationError("payment_ids", "invalid_payment_id", "invalid payment id"))
			return
		}
		paymentIDs = append(paymentIDs, id)
	}

	var charge *paymentdomain.ChargeKey
	if strings.TrimSpace(req.GroupID) != "" {
		key, err := createChargeRequest{
			Category: req.Category,
			Amount:   req.ChargeAmount,
			DueDate:  req.DueDate,
		}.chargeKey()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		charge = &key
	}

	proof, err := s.proofSvc.Submit(c.Request.Context(), proofdomain.SubmitRequest{
		PaymentIDs:    paymentIDs,
		GroupID:       strings.TrimSpace(req.GroupID),
		Charge:        charge,
		UserID:        actorID(c),
		Amount:        amount,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Observation:   strings.TrimSpace(req.Observation),
		ProofImage:    req.ProofImage,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": proof})
}

func (s *Server) GetProof(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	proof, err := s.proofSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOwner(c, proof.UserID, authorization.ObjectProof, authorization.ActionProofViewAll); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": proof})
}

func (s *Server) ListPendingProofs(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.proofSvc.ListPending(c.Request.Context(), proofdomain.ListPendingRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Proofs, "page_info": resp.PageInfo})
}

func (s *Server) ApproveProof(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.proofSvc.Approve(c.Request.Context(), proofdomain.ApproveRequest{
		ProofID:    id,
		ReviewerID: actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type rejectProofRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (s *Server) RejectProof(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req rejectProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	proof, err := s.proofSvc.Reject(c.Request.Context(), proofdomain.RejectRequest{
		ProofID:    id,
		ReviewerID: actorID(c),
		Reason:     proofdomain.RejectReason(strings.TrimSpace(req.Reason)),
		Note:       strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": proof})
}
