package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/authorization"
	"github.com/smallbiznis/duesledger/internal/config"
	membershipdomain "github.com/smallbiznis/duesledger/internal/membership/domain"
	obslogger "github.com/smallbiznis/duesledger/internal/observability/logger"
	obstracing "github.com/smallbiznis/duesledger/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	proofdomain "github.com/smallbiznis/duesledger/internal/proof/domain"
	reconciliationdomain "github.com/smallbiznis/duesledger/internal/reconciliation/domain"
	ticketdomain "github.com/smallbiznis/duesledger/internal/ticket/domain"
	treasurydomain "github.com/smallbiznis/duesledger/internal/treasury/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine            *gin.Engine
	log               *zap.Logger
	authzSvc          authorization.Service
	auditSvc          auditdomain.Service
	paymentSvc        paymentdomain.Service
	reconciliationSvc reconciliationdomain.Service
	membershipSvc     membershipdomain.Service
	proofSvc          proofdomain.Service
	ticketSvc         ticketdomain.Service
	treasurySvc       treasurydomain.Service
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Log               *zap.Logger
	AuthzSvc          authorization.Service
	AuditSvc          auditdomain.Service
	PaymentSvc        paymentdomain.Service
	ReconciliationSvc reconciliationdomain.Service
	MembershipSvc     membershipdomain.Service
	ProofSvc          proofdomain.Service
	TicketSvc         ticketdomain.Service
	TreasurySvc       treasurydomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		log:               p.Log.Named("http.server"),
		authzSvc:          p.AuthzSvc,
		auditSvc:          p.AuditSvc,
		paymentSvc:        p.PaymentSvc,
		reconciliationSvc: p.ReconciliationSvc,
		membershipSvc:     p.MembershipSvc,
		proofSvc:          p.ProofSvc,
		ticketSvc:         p.TicketSvc,
		treasurySvc:       p.TreasurySvc,
	}

	svc.registerAPIRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", ActorContext(), ActorRequired())

	// -------- Charges --------
	api.POST("/charges", s.authorize(authorization.ObjectCharge, authorization.ActionChargeCreate), s.CreateCharge)
	api.GET("/charges/:id", s.authorize(authorization.ObjectCharge, authorization.ActionChargeView), s.GetCharge)
	api.GET("/charges/:id/tickets", s.authorize(authorization.ObjectTicket, authorization.ActionTicketView), s.ListChargeTickets)
	api.GET("/members/:id/charges", s.authorize(authorization.ObjectCharge, authorization.ActionChargeView), s.ListMemberCharges)
	api.GET("/members/:id/tickets", s.authorize(authorization.ObjectTicket, authorization.ActionTicketView), s.ListMemberTickets)

	// -------- Group charges --------
	api.POST("/group-charges", s.authorize(authorization.ObjectCharge, authorization.ActionChargeCreate), s.CreateGroupCharge)
	api.GET("/group-charges", s.authorize(authorization.ObjectCharge, authorization.ActionChargeViewAll), s.ListGroupCharges)
	api.GET("/group-charges/:group_id", s.authorize(authorization.ObjectCharge, authorization.ActionChargeViewAll), s.GetGroupCharge)
	api.POST("/groups/:id/sync/plan", s.authorize(authorization.ObjectGroup, authorization.ActionGroupSync), s.PlanGroupSync)
	api.POST("/groups/:id/sync", s.authorize(authorization.ObjectGroup, authorization.ActionGroupSync), s.SyncGroup)

	// -------- Proofs --------
	api.POST("/proofs", s.authorize(authorization.ObjectProof, authorization.ActionProofSubmit), s.SubmitProof)
	api.GET("/proofs/pending", s.authorize(authorization.ObjectProof, authorization.ActionProofReview), s.ListPendingProofs)
	api.GET("/proofs/:id", s.authorize(authorization.ObjectProof, authorization.ActionProofView), s.GetProof)
	api.POST("/proofs/:id/approve", s.authorize(authorization.ObjectProof, authorization.ActionProofReview), s.ApproveProof)
	api.POST("/proofs/:id/reject", s.authorize(authorization.ObjectProof, authorization.ActionProofReview), s.RejectProof)

	// -------- Tickets --------
	api.GET("/tickets/:id", s.authorize(authorization.ObjectTicket, authorization.ActionTicketView), s.GetTicket)
	api.GET("/tickets/:id/receipt", s.authorize(authorization.ObjectTicket, authorization.ActionTicketView), s.DownloadTicketReceipt)
	api.DELETE("/tickets/:id", s.authorize(authorization.ObjectTicket, authorization.ActionTicketPurge), s.PurgeTicket)

	// -------- Treasury --------
	api.GET("/treasury", s.authorize(authorization.ObjectTreasury, authorization.ActionTreasuryView), s.GetTreasury)
	api.POST("/expenses", s.authorize(authorization.ObjectCharge, authorization.ActionChargeCreate), s.CreateExpense)
	api.POST("/expenses/:id/settle", s.authorize(authorization.ObjectExpense, authorization.ActionExpenseSettle), s.SettleExpense)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
