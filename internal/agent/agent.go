// Package agent serves the device-local HTTP API the till UI talks to. Every
// route answers from the local cache, so the till keeps working offline.
package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"

	"go-pos-sync/internal/catalog"
	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/pipeline"
	"go-pos-sync/internal/session"
	"go-pos-sync/internal/shift"
	"go-pos-sync/internal/syncer"
)

// Connectivity reports the latest probe result.
type Connectivity interface {
	Online() bool
}

// Deps are the device components behind the API.
type Deps struct {
	DeviceID string
	Clock    clock.Clock
	Session  *session.Session
	Gateway  *gateway.Gateway
	Pipeline *pipeline.Pipeline
	Shifts   *shift.Accumulator
	Catalog  *catalog.Catalog
	Sweeper  *syncer.Sweeper
	Monitor  Connectivity
}

type Server struct {
	Deps
}

func New(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clock.WallClock
	}
	return &Server{Deps: d}
}

// Register mounts the local routes on r.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/status", s.Status)
	r.POST("/sync", s.Sync)

	r.GET("/session", s.CurrentUser)
	r.GET("/session/users", s.GetUsers)
	r.POST("/session/login", s.Login)
	r.POST("/session/logout", s.Logout)

	r.GET("/products", s.GetProducts)
	r.GET("/products/low-stock", s.GetLowStock)
	r.POST("/products", s.SaveProduct)
	r.DELETE("/products/:id", s.DeleteProduct)

	r.GET("/sales", s.GetSales)
	r.GET("/sales/pending", s.GetPendingSales)
	r.POST("/sales", s.CreateSale)

	r.GET("/shifts", s.GetShifts)
	r.GET("/shifts/active", s.GetActiveShift)
	r.POST("/shifts/start", s.StartShift)
	r.POST("/shifts/:id/close", s.CloseShift)
}

func (s *Server) online() bool {
	return s.Monitor != nil && s.Monitor.Online()
}

// operator resolves the logged in user or answers 401.
func (s *Server) operator(c *gin.Context) (*models.User, bool) {
	user, err := s.Session.CurrentUser()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return nil, false
	}
	return user, true
}

// syncStatus maps an outcome to the response code: 202 when the change is
// only stored locally.
func syncStatus(out gateway.Outcome, ok int) int {
	if out.Accepted() {
		return ok
	}
	return http.StatusAccepted
}

func (s *Server) Status(c *gin.Context) {
	var user *string
	if u, err := s.Session.CurrentUser(); err == nil {
		user = &u.Name
	}
	c.JSON(http.StatusOK, gin.H{
		"deviceId":   s.DeviceID,
		"online":     s.online(),
		"needsLogin": s.Gateway != nil && s.Gateway.NeedsLogin(),
		"user":       user,
		"pending": gin.H{
			"sales":          len(s.Pipeline.Pending()),
			"shifts":         len(s.Shifts.Pending()),
			"productEdits":   len(s.Catalog.PendingEdits()),
			"productDeletes": len(s.Catalog.PendingDeletes()),
		},
	})
}

// Sync runs one sweep right away.
func (s *Server) Sync(c *gin.Context) {
	c.JSON(http.StatusOK, s.Sweeper.Sweep(c.Request.Context()))
}

type loginRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}
	user, err := s.Session.Login(c.Request.Context(), req.UserID, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	// A fresh token may unblock the queues.
	if s.Sweeper != nil {
		s.Sweeper.Notify()
	}
	c.JSON(http.StatusOK, user)
}

// GetUsers lists the operators the till can log in as.
func (s *Server) GetUsers(c *gin.Context) {
	c.JSON(http.StatusOK, s.Session.Users())
}

func (s *Server) Logout(c *gin.Context) {
	s.Session.Logout()
	c.Status(http.StatusNoContent)
}

func (s *Server) CurrentUser(c *gin.Context) {
	if user, ok := s.operator(c); ok {
		c.JSON(http.StatusOK, user)
	}
}

// GetProducts refreshes the mirror when the remote is up, then serves it.
func (s *Server) GetProducts(c *gin.Context) {
	if s.online() {
		s.Gateway.FetchProducts(c.Request.Context())
	}
	c.JSON(http.StatusOK, s.Catalog.Products())
}

func (s *Server) GetLowStock(c *gin.Context) {
	c.JSON(http.StatusOK, s.Catalog.LowStock())
}

func (s *Server) SaveProduct(c *gin.Context) {
	user, ok := s.operator(c)
	if !ok {
		return
	}
	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product data"})
		return
	}

	saved, out, err := s.Catalog.SaveProduct(c.Request.Context(), product, catalog.Editor{ID: user.ID, Name: user.Name})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(syncStatus(out, http.StatusOK), gin.H{"product": saved, "sync": out})
}

func (s *Server) DeleteProduct(c *gin.Context) {
	if _, ok := s.operator(c); !ok {
		return
	}
	out, err := s.Catalog.DeleteProduct(c.Request.Context(), c.Param("id"))
	if errors.Is(err, catalog.ErrUnknownProduct) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(syncStatus(out, http.StatusOK), gin.H{"sync": out})
}

func (s *Server) GetSales(c *gin.Context) {
	c.JSON(http.StatusOK, s.Pipeline.Sales())
}

func (s *Server) GetPendingSales(c *gin.Context) {
	c.JSON(http.StatusOK, s.Pipeline.Pending())
}

type saleRequest struct {
	Items []pipeline.Line `json:"items" binding:"required"`
}

// snapshot fills missing names and prices from the product mirror.
func (s *Server) snapshot(lines []pipeline.Line) []pipeline.Line {
	for i := range lines {
		p, ok := s.Catalog.Product(lines[i].ProductID)
		if !ok {
			continue
		}
		if lines[i].ProductName == "" {
			lines[i].ProductName = p.Name
		}
		if lines[i].UnitPrice == 0 {
			lines[i].UnitPrice = p.Price
		}
	}
	return lines
}

// CreateSale rings up a sale: it is stored locally, pushed once, and added
// to the active shift whatever the remote said.
func (s *Server) CreateSale(c *gin.Context) {
	user, ok := s.operator(c)
	if !ok {
		return
	}
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sale data"})
		return
	}

	origin := models.OriginOffline
	if s.online() {
		origin = models.OriginOnline
	}
	ctx := c.Request.Context()
	sale := pipeline.NewSale(s.snapshot(req.Items), pipeline.User{ID: user.ID, Name: user.Name}, origin, s.Clock.Now())
	res, err := s.Pipeline.SubmitSale(ctx, sale)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	open, err := s.Shifts.AddSaleToShift(ctx, res.Sale)
	if err != nil && !errors.Is(err, shift.ErrNoActiveShift) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if res.Synced {
		// Stock only comes down through the authoritative list.
		s.refreshProducts(ctx)
	}

	code := http.StatusCreated
	if !res.Synced {
		code = http.StatusAccepted
	}
	c.JSON(code, gin.H{"result": res, "shift": open})
}

func (s *Server) refreshProducts(ctx context.Context) {
	if s.Gateway != nil {
		s.Gateway.FetchProducts(ctx)
	}
}

func (s *Server) GetShifts(c *gin.Context) {
	c.JSON(http.StatusOK, s.Shifts.Shifts())
}

func (s *Server) GetActiveShift(c *gin.Context) {
	active := s.Shifts.ActiveShift()
	if active == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": shift.ErrNoActiveShift.Error()})
		return
	}
	c.JSON(http.StatusOK, active)
}

func (s *Server) StartShift(c *gin.Context) {
	user, ok := s.operator(c)
	if !ok {
		return
	}
	started, err := s.Shifts.StartShift(c.Request.Context(), user.ID, user.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, started)
}

func (s *Server) CloseShift(c *gin.Context) {
	closed, err := s.Shifts.CloseShift(c.Request.Context(), c.Param("id"))
	if errors.Is(err, shift.ErrShiftNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, closed)
}
