package handler

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/config"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/crypto"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/metrics"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/middleware"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/report"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/repository"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureHeader carries the hex HMAC of a signed report body
const SignatureHeader = "X-Sentinel-Signature"

// Handler handles HTTP requests
type Handler struct {
	sentinel *service.Sentinel
	repo     repository.Repository
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(sentinel *service.Sentinel, repo repository.Repository, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		sentinel: sentinel,
		repo:     repo,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	if h.cfg.Server.AuthSecret != "" {
		api.Use(middleware.AuthMiddleware(h.cfg.Server.AuthSecret, h.logger))
	}
	{
		api.GET("/contacts", h.ListContacts)
		api.GET("/contacts/:phone", h.GetContact)
		api.GET("/intents", h.ListIntents)
		api.GET("/meta", h.GetMeta)
		api.GET("/stats", h.GetStats)

		api.POST("/scan", h.StartScan)
		api.GET("/scan/jobs/:id", h.GetScanJob)
		api.POST("/profiles/rebuild", h.RebuildProfiles)

		api.GET("/report", h.GetReport)
		api.GET("/export/csv", h.ExportCSV)
		api.GET("/config", h.GetConfig)
	}
}

// pageParams reads limit and offset; zero means the repository default
func pageParams(c *gin.Context) (int, int, error) {
	limit, offset := 0, 0
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}
	return limit, offset, nil
}

// ListContacts returns profiles ordered by risk
func (h *Handler) ListContacts(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contacts, err := h.repo.ListContacts(c.Request.Context(), c.Query("risk_label"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get contacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts": contacts,
		"total":    len(contacts),
		"offset":   offset,
	})
}

// GetContact returns one profile by phone number
func (h *Handler) GetContact(c *gin.Context) {
	contact, err := h.repo.GetContact(c.Request.Context(), c.Param("phone"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get contact"})
		return
	}
	c.JSON(http.StatusOK, contact)
}

// ListIntents returns flagged messages, newest first
func (h *Handler) ListIntents(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	intents, err := h.repo.ListIntents(c.Request.Context(), c.Query("phone"), c.Query("severity"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get intents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"intents": intents,
		"total":   len(intents),
		"offset":  offset,
	})
}

// GetMeta returns the latest run metadata
func (h *Handler) GetMeta(c *gin.Context) {
	meta, err := h.repo.LatestMeta(c.Request.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no scan has been run yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get metadata"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

// GetStats returns store statistics
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.repo.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type scanRequest struct {
	XMLDir      string   `json:"xml_dir"`
	Address     string   `json:"address"`
	Addresses   []string `json:"addresses"`
	KeywordOnly *bool    `json:"keyword_only"`
	RunLabel    string   `json:"run_label"`
}

// StartScan queues an asynchronous scan
func (h *Handler) StartScan(c *gin.Context) {
	var req scanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	scan := service.ScanRequest{
		XMLDir:      req.XMLDir,
		Addresses:   req.Addresses,
		KeywordOnly: h.cfg.Scan.KeywordOnly,
		RunLabel:    req.RunLabel,
	}
	if scan.XMLDir == "" {
		scan.XMLDir = h.cfg.Scan.XMLDir
	}
	if req.Address != "" {
		scan.Addresses = append(scan.Addresses, req.Address)
	}
	if req.KeywordOnly != nil {
		scan.KeywordOnly = *req.KeywordOnly
	}

	info, err := os.Stat(scan.XMLDir)
	if err != nil || !info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "xml_dir must be an existing directory"})
		return
	}

	job, err := h.sentinel.StartScanJob(c.Request.Context(), scan)
	if err != nil {
		h.logger.Error("Failed to start scan job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start scan"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Scan started. Check /api/v1/scan/jobs/" + job.ID + " for status",
	})
}

// GetScanJob returns scan job status
func (h *Handler) GetScanJob(c *gin.Context) {
	job, err := h.sentinel.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// RebuildProfiles re-aggregates contact profiles from stored data
func (h *Handler) RebuildProfiles(c *gin.Context) {
	profiles, err := h.sentinel.RebuildProfiles(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to rebuild profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rebuild profiles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts_profiled": len(profiles)})
}

// GetReport returns the export payload, signed when a secret is configured
func (h *Handler) GetReport(c *gin.Context) {
	export, err := h.sentinel.BuildReport(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to build report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}
	data, err := export.JSON()
	if err != nil {
		h.logger.Error("Failed to encode report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}

	if secret := h.cfg.Report.SigningSecret; secret != "" {
		signature, err := crypto.Sign(data, secret)
		if err != nil {
			h.logger.Error("Failed to sign report", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign report"})
			return
		}
		c.Header(SignatureHeader, signature)
	}

	c.Header("Content-Disposition", "attachment; filename=sentinel_report.json")
	c.Data(http.StatusOK, "application/json", data)
}

// ExportCSV exports contact profiles to CSV
func (h *Handler) ExportCSV(c *gin.Context) {
	profiles, err := h.sentinel.Contacts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=contacts.csv")
	if err := report.WriteContactsCSV(c.Writer, profiles); err != nil {
		h.logger.Error("Failed to write CSV", zap.Error(err))
	}
}

// GetConfig returns the running configuration without secrets
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Redacted())
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	status := "healthy"
	db := "ok"
	if _, err := h.repo.Stats(c.Request.Context()); err != nil {
		status, db = "degraded", "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "sentinel",
		"database": db,
	})
}
