package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type startRequest struct {
	StartTime      time.Time        `json:"start_time" binding:"required"`
	InitialBalance *decimal.Decimal `json:"initial_balance"`
	Speed          *decimal.Decimal `json:"speed"`
}

// startSimulation creates a new run, superseding any active one, and puts
// it straight into running state.
func (s *Server) startSimulation(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}

	balance := dec(s.cfg.Simulation.InitialBalance)
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}
	speed := decimal.NewFromInt(1)
	if req.Speed != nil {
		speed = *req.Speed
	}
	if !s.speedInBounds(speed) {
		badRequest(c, "speed out of bounds")
		return
	}

	if _, err := s.session.Start(req.StartTime, balance, speed); err != nil {
		fail(c, err)
		return
	}
	if err := s.session.Run(); err != nil {
		fail(c, err)
		return
	}
	status, err := s.session.Status()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, status)
}

func (s *Server) pauseSimulation(c *gin.Context) {
	if err := s.session.Pause(); err != nil {
		fail(c, err)
		return
	}
	s.simulationStatus(c)
}

func (s *Server) resumeSimulation(c *gin.Context) {
	if err := s.session.Resume(); err != nil {
		fail(c, err)
		return
	}
	s.simulationStatus(c)
}

func (s *Server) stopSimulation(c *gin.Context) {
	sum, err := s.session.Stop()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type speedRequest struct {
	Speed decimal.Decimal `json:"speed" binding:"required"`
}

func (s *Server) setSpeed(c *gin.Context) {
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if !s.speedInBounds(req.Speed) {
		badRequest(c, "speed out of bounds")
		return
	}
	if err := s.session.SetSpeed(req.Speed); err != nil {
		fail(c, err)
		return
	}
	s.simulationStatus(c)
}

type advanceRequest struct {
	NewTime time.Time `json:"new_time" binding:"required"`
}

func (s *Server) advanceTime(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	rep, err := s.session.AdvanceTime(req.NewTime)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) simulationStatus(c *gin.Context) {
	status, err := s.session.Status()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) speedInBounds(speed decimal.Decimal) bool {
	return speed.GreaterThanOrEqual(dec(s.cfg.Simulation.MinSpeed)) &&
		speed.LessThanOrEqual(dec(s.cfg.Simulation.MaxSpeed))
}
