// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the exchange over HTTP: the public decision API on
// gin, and the operator surface (metrics, trace feed, ledger) on a
// separate admin server.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/engine"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/rtb"
)

// Server is the public decision API.
type Server struct {
	engine *engine.Engine
	log    log.Logger
	router *gin.Engine
}

// NewServer builds the public API router around an engine.
func NewServer(eng *engine.Engine, logger log.Logger, release bool) *Server {
	if release {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{engine: eng, log: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", s.handleHealth)
	v1 := router.Group("/v1")
	{
		v1.POST("/decision", s.handleDecision)
		v1.POST("/skan/postback", s.handlePostback)
	}
	router.POST("/openrtb2/auction", s.handleOpenRTB)

	s.router = router
	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

func (s *Server) handleDecision(c *gin.Context) {
	var req core.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.DeviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id is required"})
		return
	}

	res, err := s.engine.Decide(c.Request.Context(), &req)
	if err != nil {
		s.log.Error("decision failed", "request_id", req.RequestID, "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleOpenRTB(c *gin.Context) {
	var br openrtb2.BidRequest
	if err := c.ShouldBindJSON(&br); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid request: " + err.Error()})
		return
	}

	req, err := rtb.FromBidRequest(&br)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.engine.Decide(c.Request.Context(), req)
	if err != nil {
		s.log.Error("openrtb decision failed", "request_id", br.ID, "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rtb.ToBidResponse(&br, res))
}

// postbackBody is the privacy-constrained conversion postback payload.
// Only the coarse conversion value arrives; no device or user identifier.
// ConversionValue is a pointer so bucket 0 is distinguishable from a
// missing field.
type postbackBody struct {
	ConversionValue *int     `json:"conversion_value" binding:"required"`
	Weight          *float64 `json:"weight,omitempty"`
}

func (s *Server) handlePostback(c *gin.Context) {
	skan := s.engine.SKAN()
	if skan == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "conversion optimization disabled"})
		return
	}

	var body postbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid postback: " + err.Error()})
		return
	}
	cv := *body.ConversionValue
	if cv < 0 || cv > 63 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversion_value must be in [0,63]"})
		return
	}

	weight := 0.1
	if body.Weight != nil {
		weight = *body.Weight
	}
	if weight <= 0 || weight > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weight must be in (0,1]"})
		return
	}
	skan.RecordPostback(cv, weight)
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}
