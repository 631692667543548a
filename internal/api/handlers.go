package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/device"
)

var validate = validator.New()

// --- Request structs ---

type ConnectDeviceRequest struct {
	DeviceType  string `json:"device_type" validate:"required"`
	AccessToken string `json:"access_token" validate:"required"`
	ExternalID  string `json:"external_id" validate:"omitempty"`
}

type CollectRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

type IngestRequest struct {
	Readings []*biometric.Reading `json:"readings" validate:"required,min=1"`
}

type ProfileRequest struct {
	RestingHeartRate float64 `json:"resting_heart_rate" validate:"required,gte=20,lte=120"`
	MaxHeartRate     float64 `json:"max_heart_rate" validate:"required,gtfield=RestingHeartRate,lte=250"`
	StressBaseline   float64 `json:"stress_baseline" validate:"gte=0,lte=100"`
	FatigueBaseline  float64 `json:"fatigue_baseline" validate:"gte=0,lte=100"`
	SleepBaseline    float64 `json:"sleep_baseline" validate:"gte=0,lte=1440"`
	ActivityBaseline float64 `json:"activity_baseline" validate:"gte=0,lte=1"`
}

type ConsentRequest struct {
	DataTypes         map[biometric.DataType]bool `json:"data_types" validate:"required"`
	SharingLevel      biometric.SharingLevel      `json:"sharing_level" validate:"required"`
	RetentionDays     int                         `json:"retention_days" validate:"required"`
	AllowResearch     bool                        `json:"allow_research"`
	EmergencyOverride bool                        `json:"emergency_override"`
}

type TeamAggregatesRequest struct {
	MemberIDs []string `json:"member_ids" validate:"required,min=1,dive,required"`
}

func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: &APIError{Code: 400, Message: "invalid JSON: " + err.Error()}})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: &APIError{Code: 400, Message: "validation failed: " + err.Error()}})
		return false
	}
	return true
}

// --- Device handlers ---

func (s *Server) connectDevice(c *gin.Context) {
	userID := c.Param("id")
	var req ConnectDeviceRequest
	if !bind(c, &req) {
		return
	}

	dev, err := s.orch.ConnectDevice(c.Request.Context(), userID, req.DeviceType, device.Credentials{
		AccessToken: req.AccessToken,
		ExternalID:  req.ExternalID,
	})
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to connect device")
		return
	}
	respondSuccess(c, http.StatusCreated, dev, nil)
}

func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.orch.ListDevices(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to list devices")
		return
	}
	respondSuccess(c, http.StatusOK, devices, nil)
}

func (s *Server) disconnectDevice(c *gin.Context) {
	err := s.orch.DisconnectDevice(c.Request.Context(), c.Param("id"), c.Param("deviceID"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to disconnect device")
		return
	}
	respondSuccess(c, http.StatusOK, nil, map[string]any{"disconnected": true})
}

func (s *Server) syncDevice(c *gin.Context) {
	count, err := s.orch.SyncDevice(c.Request.Context(), c.Param("id"), c.Param("deviceID"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to sync device")
		return
	}
	respondSuccess(c, http.StatusOK, nil, map[string]any{"accepted": count})
}

func (s *Server) collectData(c *gin.Context) {
	userID := c.Param("id")
	var req CollectRequest
	if !bind(c, &req) {
		return
	}

	readings, err := s.orch.CollectBiometricData(c.Request.Context(), userID, device.TimeRange{
		Start: req.Start,
		End:   req.End,
	})
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to collect data")
		return
	}
	respondSuccess(c, http.StatusOK, readings, map[string]any{"count": len(readings)})
}

func (s *Server) ingestReadings(c *gin.Context) {
	userID := c.Param("id")
	var req IngestRequest
	if !bind(c, &req) {
		return
	}

	accepted, err := s.orch.IngestReadings(c.Request.Context(), userID, req.Readings)
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to ingest readings")
		return
	}
	respondSuccess(c, http.StatusOK, accepted, map[string]any{
		"accepted": len(accepted),
		"rejected": len(req.Readings) - len(accepted),
	})
}

// --- Profile handlers ---

func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.orch.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to fetch profile")
		return
	}
	respondSuccess(c, http.StatusOK, profile, nil)
}

func (s *Server) updateProfile(c *gin.Context) {
	userID := c.Param("id")
	var req ProfileRequest
	if !bind(c, &req) {
		return
	}

	profile := &biometric.Profile{
		UserID:           userID,
		RestingHeartRate: req.RestingHeartRate,
		MaxHeartRate:     req.MaxHeartRate,
		StressBaseline:   req.StressBaseline,
		FatigueBaseline:  req.FatigueBaseline,
		SleepBaseline:    req.SleepBaseline,
		ActivityBaseline: req.ActivityBaseline,
	}
	if err := s.orch.UpdateProfile(c.Request.Context(), profile); err != nil {
		handleServiceError(c, s.logger, err, "failed to update profile")
		return
	}
	respondSuccess(c, http.StatusOK, profile, nil)
}

// --- Consent handlers ---

func (s *Server) getConsent(c *gin.Context) {
	settings, err := s.privacy.CheckConsentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to fetch consent settings")
		return
	}
	respondSuccess(c, http.StatusOK, settings, nil)
}

func (s *Server) updateConsent(c *gin.Context) {
	userID := c.Param("id")
	var req ConsentRequest
	if !bind(c, &req) {
		return
	}

	settings := &biometric.ConsentSettings{
		UserID:            userID,
		DataTypes:         req.DataTypes,
		SharingLevel:      req.SharingLevel,
		RetentionDays:     req.RetentionDays,
		AllowResearch:     req.AllowResearch,
		EmergencyOverride: req.EmergencyOverride,
	}
	if err := s.privacy.UpdateConsentSettings(c.Request.Context(), settings); err != nil {
		handleServiceError(c, s.logger, err, "failed to update consent settings")
		return
	}
	respondSuccess(c, http.StatusOK, settings, nil)
}

func (s *Server) getAuditLog(c *gin.Context) {
	userID := c.Param("id")
	start, ok := parseTimeQuery(c, "start")
	if !ok {
		return
	}
	end, ok := parseTimeQuery(c, "end")
	if !ok {
		return
	}

	entries, err := s.privacy.GetAuditLog(c.Request.Context(), userID, start, end)
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to fetch audit log")
		return
	}
	respondSuccess(c, http.StatusOK, entries, map[string]any{"count": len(entries)})
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: &APIError{
			Code:    400,
			Message: "'" + key + "' must be RFC3339: " + err.Error(),
		}})
		return nil, false
	}
	return &t, true
}

// --- Health-metric handlers ---

func (s *Server) getStress(c *gin.Context) {
	report, err := s.orch.CalculateStressLevel(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to calculate stress level")
		return
	}
	respondSuccess(c, http.StatusOK, report, nil)
}

func (s *Server) getFatigue(c *gin.Context) {
	report, err := s.orch.DetectFatigue(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to detect fatigue")
		return
	}
	respondSuccess(c, http.StatusOK, report, nil)
}

func (s *Server) getWellness(c *gin.Context) {
	report, err := s.orch.AssessWellnessScore(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to assess wellness score")
		return
	}
	respondSuccess(c, http.StatusOK, report, nil)
}

func (s *Server) getHRV(c *gin.Context) {
	report, err := s.orch.AnalyzeHeartRateVariability(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to analyze heart rate variability")
		return
	}
	respondSuccess(c, http.StatusOK, report, nil)
}

// --- Alert handlers ---

func (s *Server) listAlerts(c *gin.Context) {
	alerts, err := s.orch.ListAlerts(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to list alerts")
		return
	}
	respondSuccess(c, http.StatusOK, alerts, map[string]any{"count": len(alerts)})
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	err := s.orch.AcknowledgeAlert(c.Request.Context(), c.Param("id"), c.Param("alertID"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to acknowledge alert")
		return
	}
	respondSuccess(c, http.StatusOK, nil, map[string]any{"acknowledged": true})
}

func (s *Server) clearAlerts(c *gin.Context) {
	if err := s.orch.ClearAlerts(c.Request.Context(), c.Param("id")); err != nil {
		handleServiceError(c, s.logger, err, "failed to clear alerts")
		return
	}
	respondSuccess(c, http.StatusOK, nil, map[string]any{"cleared": true})
}

// --- Team handlers ---

func (s *Server) teamAggregates(c *gin.Context) {
	teamID := c.Param("id")
	var req TeamAggregatesRequest
	if !bind(c, &req) {
		return
	}

	aggs, err := s.orch.TeamAggregates(c.Request.Context(), teamID, req.MemberIDs)
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to build team aggregates")
		return
	}
	respondSuccess(c, http.StatusOK, aggs, map[string]any{"windows": len(aggs)})
}

func (s *Server) complianceReport(c *gin.Context) {
	report, err := s.privacy.GenerateComplianceReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to generate compliance report")
		return
	}
	respondSuccess(c, http.StatusOK, report, nil)
}
