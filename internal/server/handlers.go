package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"price-tracker/internal/config"
	"price-tracker/internal/storage"
)

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// respondError returns the generic envelope. Internal detail stays in the
// logs, never in the response body.
func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, envelope{Success: false, Error: msg})
}

type priceEntry struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Change24h  float64 `json:"change_24h"`
	AssetType  string  `json:"asset_type"`
	ObservedAt string  `json:"observed_at"`
}

func (s *Server) getPrices(c *gin.Context) {
	samples, err := s.store.LatestPerSymbol(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load current prices")
		respondError(c, http.StatusInternalServerError, "failed to fetch prices")
		return
	}

	data := lo.SliceToMap(samples, func(sample storage.PriceSample) (string, priceEntry) {
		return sample.Symbol, priceEntry{
			Symbol:     sample.Symbol,
			Price:      sample.Price.InexactFloat64(),
			Change24h:  sample.Change24h.InexactFloat64(),
			AssetType:  sample.AssetType,
			ObservedAt: sample.ObservedAt.UTC().Format(time.RFC3339),
		}
	})

	respondOK(c, data)
}

func (s *Server) getChart(c *gin.Context) {
	symbol := c.Param("symbol")
	if !s.rules.Whitelisted(symbol) {
		respondError(c, http.StatusBadRequest, "invalid symbol")
		return
	}

	hours := s.cfg.ChartDefaultHours
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > s.cfg.ChartMaxHours {
			respondError(c, http.StatusBadRequest, "invalid hours value")
			return
		}
		hours = parsed
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)

	samples, err := s.store.ListRange(c.Request.Context(), symbol, from, to)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to load chart data")
		respondError(c, http.StatusInternalServerError, "failed to fetch chart data")
		return
	}
	if len(samples) == 0 {
		respondError(c, http.StatusNotFound, "no historical data available")
		return
	}

	data := gin.H{
		"x": lo.Map(samples, func(sample storage.PriceSample, _ int) string {
			return sample.ObservedAt.UTC().Format(time.RFC3339)
		}),
		"y": lo.Map(samples, func(sample storage.PriceSample, _ int) float64 {
			return sample.Price.InexactFloat64()
		}),
		"symbol": symbol,
	}

	respondOK(c, data)
}

func (s *Server) getAlerts(c *gin.Context) {
	stats := s.engine.CollectStats(time.Now().UTC())
	respondOK(c, gin.H{
		"total_alerts_sent": stats.TotalAlertsSent,
		"active_alerts":     stats.ActiveCooldowns,
		"threshold":         stats.ThresholdPct.InexactFloat64(),
		"cooldown_seconds":  stats.CooldownSeconds,
	})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.store.CollectStats(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load store stats")
		respondError(c, http.StatusInternalServerError, "failed to fetch statistics")
		return
	}

	data := gin.H{
		"total_entries": stats.TotalEntries,
		"unique_assets": stats.UniqueAssets,
	}
	if stats.FirstEntry != nil {
		data["first_entry"] = stats.FirstEntry.UTC().Format(time.RFC3339)
	}
	if stats.LatestEntry != nil {
		data["latest_entry"] = stats.LatestEntry.UTC().Format(time.RFC3339)
	}

	respondOK(c, data)
}

type thresholdRequest struct {
	Threshold float64 `json:"threshold"`
}

func (s *Server) updateThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request data")
		return
	}
	if req.Threshold < config.MinThresholdPct || req.Threshold > config.MaxThresholdPct {
		respondError(c, http.StatusBadRequest, "invalid threshold value (must be between 0.1 and 100.0)")
		return
	}

	s.engine.SetThreshold(decimal.NewFromFloat(req.Threshold))
	s.logger.Info().Float64("threshold", req.Threshold).Msg("alert threshold updated")
	respondOK(c, gin.H{"threshold": req.Threshold})
}

type cooldownRequest struct {
	Cooldown int `json:"cooldown"`
}

func (s *Server) updateCooldown(c *gin.Context) {
	var req cooldownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request data")
		return
	}

	cooldown := time.Duration(req.Cooldown) * time.Second
	if cooldown < config.MinCooldown || cooldown > config.MaxCooldown {
		respondError(c, http.StatusBadRequest, "invalid cooldown value (must be between 60 and 3600 seconds)")
		return
	}

	s.engine.SetCooldown(cooldown)
	s.logger.Info().Int("cooldown_seconds", req.Cooldown).Msg("alert cooldown updated")
	respondOK(c, gin.H{"cooldown": req.Cooldown})
}

type cleanupRequest struct {
	Days int `json:"days"`
}

func (s *Server) cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request data")
		return
	}
	if req.Days < config.MinCleanupDays || req.Days > config.MaxCleanupDays {
		respondError(c, http.StatusBadRequest, "invalid days value (must be between 1 and 365)")
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -req.Days)
	removed, err := s.store.DeleteSamplesBefore(c.Request.Context(), cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("cleanup failed")
		respondError(c, http.StatusInternalServerError, "failed to cleanup data")
		return
	}

	s.logger.Info().Int64("removed", removed).Int("days", req.Days).Msg("cleanup complete")
	respondOK(c, gin.H{"removed": removed, "days": req.Days})
}
