package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fxreplay/sim"
	"fxreplay/store"
)

type orderRequest struct {
	Side    store.Side       `json:"side" binding:"required"`
	LotSize decimal.Decimal  `json:"lot_size" binding:"required"`
	SLPrice *decimal.Decimal `json:"sl_price"`
	SLPips  *decimal.Decimal `json:"sl_pips"`
	TPPrice *decimal.Decimal `json:"tp_price"`
	TPPips  *decimal.Decimal `json:"tp_pips"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if req.Side != store.Buy && req.Side != store.Sell {
		badRequest(c, "side must be buy or sell")
		return
	}
	if req.LotSize.GreaterThan(dec(s.cfg.Simulation.MaxLotSize)) {
		badRequest(c, "lot size exceeds the configured maximum")
		return
	}

	sl, ok := level(req.SLPrice, req.SLPips)
	if !ok {
		badRequest(c, "sl_price and sl_pips are mutually exclusive")
		return
	}
	tp, ok := level(req.TPPrice, req.TPPips)
	if !ok {
		badRequest(c, "tp_price and tp_pips are mutually exclusive")
		return
	}

	order, pos, err := s.session.CreateOrder(req.Side, req.LotSize, sl, tp)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order, "position": pos})
}

func (s *Server) listOrders(c *gin.Context) {
	limit, offset := pagination(c)
	orders, total, err := s.session.Orders(limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}

func (s *Server) openPositions(c *gin.Context) {
	positions, err := s.session.OpenPositions()
	if err != nil {
		fail(c, err)
		return
	}
	if positions == nil {
		positions = []*sim.PositionView{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) closePosition(c *gin.Context) {
	trade, err := s.session.ClosePosition(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

type sltpRequest struct {
	SLPrice *decimal.Decimal `json:"sl_price"`
	SLPips  *decimal.Decimal `json:"sl_pips"`
	TPPrice *decimal.Decimal `json:"tp_price"`
	TPPips  *decimal.Decimal `json:"tp_pips"`
}

func (s *Server) setSLTP(c *gin.Context) {
	var req sltpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	sl, ok := level(req.SLPrice, req.SLPips)
	if !ok {
		badRequest(c, "sl_price and sl_pips are mutually exclusive")
		return
	}
	tp, ok := level(req.TPPrice, req.TPPips)
	if !ok {
		badRequest(c, "tp_price and tp_pips are mutually exclusive")
		return
	}

	pos, err := s.session.SetSLTP(c.Param("id"), sl, tp)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) accountSnapshot(c *gin.Context) {
	snap, err := s.session.AccountSnapshot()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) tradeHistory(c *gin.Context) {
	limit, offset := pagination(c)
	trades, total, err := s.session.TradeHistory(limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "total": total})
}

type pendingRequest struct {
	Type         store.PendingType `json:"order_type" binding:"required"`
	Side         store.Side        `json:"side" binding:"required"`
	LotSize      decimal.Decimal   `json:"lot_size" binding:"required"`
	TriggerPrice decimal.Decimal   `json:"trigger_price" binding:"required"`
}

func (s *Server) createPendingOrder(c *gin.Context) {
	var req pendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if req.Side != store.Buy && req.Side != store.Sell {
		badRequest(c, "side must be buy or sell")
		return
	}
	if req.LotSize.GreaterThan(dec(s.cfg.Simulation.MaxLotSize)) {
		badRequest(c, "lot size exceeds the configured maximum")
		return
	}

	o, err := s.session.CreatePendingOrder(req.Type, req.Side, req.LotSize, req.TriggerPrice)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

type pendingUpdateRequest struct {
	LotSize      *decimal.Decimal `json:"lot_size"`
	TriggerPrice *decimal.Decimal `json:"trigger_price"`
}

func (s *Server) updatePendingOrder(c *gin.Context) {
	var req pendingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	o, err := s.session.UpdatePendingOrder(c.Param("id"), req.LotSize, req.TriggerPrice)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) cancelPendingOrder(c *gin.Context) {
	if err := s.session.CancelPendingOrder(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listPendingOrders(c *gin.Context) {
	limit, offset := pagination(c)
	status := store.PendingStatus(c.Query("status"))
	orders, total, err := s.session.PendingOrders(status, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}

// level folds an optional price/pips pair into a Level, rejecting bodies
// that set both forms.
func level(price, pips *decimal.Decimal) (sim.Level, bool) {
	switch {
	case price != nil && pips != nil:
		return sim.Level{}, false
	case price != nil:
		return sim.PriceLevel(*price), true
	case pips != nil:
		return sim.PipsLevel(*pips), true
	}
	return sim.Level{}, true
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 {
		limit = v
	}
	if limit > 500 {
		limit = 500
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
