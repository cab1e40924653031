package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fxreplay/alerts"
	"fxreplay/sim"
	"fxreplay/store"
)

// analyticsTarget resolves the run analytics read from: the bound session
// when one exists, otherwise the most recent run on disk so a stopped run's
// history stays queryable after a restart.
func (s *Server) analyticsTarget() (*store.Simulation, error) {
	status, err := s.session.Status()
	if err == nil {
		return status, nil
	}
	if !isKind(err, sim.ErrNoActiveSimulation) {
		return nil, err
	}
	return s.store.LatestSimulation()
}

func (s *Server) metrics(c *gin.Context) {
	target, err := s.analyticsTarget()
	if err != nil {
		fail(c, err)
		return
	}
	m, err := s.analytics.Metrics(target.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) equityCurve(c *gin.Context) {
	target, err := s.analyticsTarget()
	if err != nil {
		fail(c, err)
		return
	}
	points, err := s.analytics.EquityCurve(target.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

func (s *Server) evaluateAlerts(c *gin.Context) {
	target, err := s.analyticsTarget()
	if err != nil {
		fail(c, err)
		return
	}
	found, err := s.alerts.Evaluate(target.ID, target.SimTime)
	if err != nil {
		fail(c, err)
		return
	}
	if found == nil {
		found = []alerts.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": found})
}
