package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fxreplay/importer"
	"fxreplay/market"
)

// candles serves the closed series plus the in-progress bar for a
// timeframe, cut off at the simulation clock so the client never sees
// future data.
func (s *Server) candles(c *gin.Context) {
	tf, err := market.ParseTimeframe(c.DefaultQuery("timeframe", string(market.M10)))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit := 200
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "200")); err == nil && v > 0 {
		limit = v
	}
	if limit > 2000 {
		limit = 2000
	}

	status, err := s.session.Status()
	if err != nil {
		fail(c, err)
		return
	}
	asOf := status.SimTime

	closed, err := s.feed.SeriesUpTo(tf, asOf, limit)
	if err != nil {
		fail(c, err)
		return
	}
	if closed == nil {
		closed = []market.Candle{}
	}

	resp := gin.H{
		"timeframe": tf,
		"as_of":     asOf,
		"candles":   closed,
	}
	if partial, ok, err := s.feed.PartialCandle(tf, market.CandleStart(tf, asOf), asOf); err != nil {
		fail(c, err)
		return
	} else if ok {
		resp["partial"] = partial
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) dataRange(c *gin.Context) {
	ranges, err := s.store.DataRange()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranges": ranges})
}

type importRequest struct {
	Path      string `json:"path" binding:"required"`
	Timeframe string `json:"timeframe" binding:"required"`
}

func (s *Server) importCandles(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := importer.ImportFile(s.store, tf, req.Path)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
