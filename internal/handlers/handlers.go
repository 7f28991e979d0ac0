package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"librarydesk/internal/models"
	"librarydesk/internal/payments"
	"librarydesk/internal/pkg/logger"
	"librarydesk/internal/services"
)

type LibraryHandler struct {
	svc      services.LibraryService
	payments services.PaymentService
	gateway  payments.Gateway
	log      *logger.Logger
}

func RegisterRoutes(r *gin.Engine, svc services.LibraryService, paymentSvc services.PaymentService, gw payments.Gateway, log *logger.Logger) {
	h := &LibraryHandler{svc: svc, payments: paymentSvc, gateway: gw, log: log.With("component", "handlers")}

	r.GET("/healthz", h.health)

	// Catalog
	r.GET("/books", h.listBooks)
	r.POST("/books", h.addBook)
	r.GET("/books/search", h.searchBooks)

	// Lending
	r.POST("/books/:id/borrow", h.borrowBook)
	r.POST("/books/:id/return", h.returnBook)
	r.GET("/books/:id/late-fee", h.lateFee)

	// Late-fee payments
	r.POST("/books/:id/late-fee/pay", h.payLateFees)
	r.POST("/payments/refunds", h.refundLateFee)

	// Patrons
	r.GET("/patrons/:id/status", h.patronStatus)
}

func (h *LibraryHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type addBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	TotalCopies int    `json:"total_copies"`
}

func (h *LibraryHandler) addBook(c *gin.Context) {
	var req addBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.svc.AddBookToCatalog(c.Request.Context(), req.Title, req.Author, req.ISBN, req.TotalCopies)
	c.JSON(statusFor(res.Outcome, http.StatusCreated), res)
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.svc.ListBooks(c.Request.Context())
	if err != nil {
		h.log.Error("listBooks failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list books"})
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) searchBooks(c *gin.Context) {
	searchType := c.DefaultQuery("type", "title")
	books, err := h.svc.SearchBooks(c.Request.Context(), c.Query("q"), searchType)
	if err != nil {
		h.log.Error("searchBooks failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, books)
}

type patronRequest struct {
	PatronID string `json:"patron_id"`
}

func (h *LibraryHandler) borrowBook(c *gin.Context) {
	bookID, req, ok := bindPatronRequest(c)
	if !ok {
		return
	}
	res := h.svc.BorrowBook(c.Request.Context(), req.PatronID, bookID)
	c.JSON(statusFor(res.Outcome, http.StatusCreated), res)
}

func (h *LibraryHandler) returnBook(c *gin.Context) {
	bookID, req, ok := bindPatronRequest(c)
	if !ok {
		return
	}
	res := h.svc.ReturnBook(c.Request.Context(), req.PatronID, bookID)
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}

func (h *LibraryHandler) lateFee(c *gin.Context) {
	bookID, ok := bookIDParam(c)
	if !ok {
		return
	}
	q := h.svc.CalculateLateFee(c.Request.Context(), c.Query("patron_id"), bookID)
	c.JSON(feeQuoteStatus(q.Status), q)
}

func (h *LibraryHandler) payLateFees(c *gin.Context) {
	bookID, req, ok := bindPatronRequest(c)
	if !ok {
		return
	}
	res := h.payments.PayLateFees(c.Request.Context(), req.PatronID, bookID, h.gateway)
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}

type refundRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
}

func (h *LibraryHandler) refundLateFee(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.payments.RefundLateFeePayment(c.Request.Context(), req.TransactionID, req.Amount, h.gateway)
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}

func (h *LibraryHandler) patronStatus(c *gin.Context) {
	report, err := h.svc.PatronStatusReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidPatronID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patron id"})
			return
		}
		h.log.Error("patronStatus failed", "patron_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build patron report"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func bookIDParam(c *gin.Context) (uuid.UUID, bool) {
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return uuid.Nil, false
	}
	return bookID, true
}

func bindPatronRequest(c *gin.Context) (uuid.UUID, patronRequest, bool) {
	var req patronRequest
	bookID, ok := bookIDParam(c)
	if !ok {
		return uuid.Nil, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, req, false
	}
	return bookID, req, true
}

func statusFor(o models.Outcome, success int) int {
	switch o {
	case models.OutcomeOK:
		return success
	case models.OutcomeInvalid:
		return http.StatusBadRequest
	case models.OutcomeNotFound:
		return http.StatusNotFound
	case models.OutcomeRejected:
		return http.StatusConflict
	case models.OutcomeDeclined:
		return http.StatusPaymentRequired
	case models.OutcomeGatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func feeQuoteStatus(s models.FeeStatus) int {
	switch s {
	case models.FeeStatusSuccess, models.FeeStatusNotOverdue:
		return http.StatusOK
	case models.FeeStatusInvalidPatron:
		return http.StatusBadRequest
	case models.FeeStatusBookNotFound, models.FeeStatusNoActiveRecord:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
