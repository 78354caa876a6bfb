package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"therapist-effects/app"
	"therapist-effects/domain/core"
	"therapist-effects/domain/run"
	"therapist-effects/internal"
	"therapist-effects/internal/errors"
	"therapist-effects/internal/profiling"
)

// ResultSource resolves a study name to its cached artifact
type ResultSource interface {
	Names() []core.StudyName
	Results(ctx context.Context, driver *app.ReplicationDriver, name core.StudyName) (*run.Artifact, error)
}

// StudyHandler serves cached study results. It never starts a simulation.
type StudyHandler struct {
	catalog ResultSource
	driver  *app.ReplicationDriver
	logger  *internal.Logger
}

// NewStudyHandler creates a new study handler
func NewStudyHandler(catalog ResultSource, driver *app.ReplicationDriver) *StudyHandler {
	return &StudyHandler{
		catalog: catalog,
		driver:  driver,
		logger:  internal.DefaultLogger,
	}
}

// ListStudies returns the study names and their current run status
func (h *StudyHandler) ListStudies(c *gin.Context) {
	studies := make([]gin.H, 0, len(h.catalog.Names()))
	for _, name := range h.catalog.Names() {
		entry := gin.H{"name": name, "cached": false}
		artifact, err := h.catalog.Results(c.Request.Context(), h.driver, name)
		if err == nil {
			entry["cached"] = true
			entry["hash"] = artifact.Hash
			entry["run_id"] = artifact.RunID
			entry["created_at"] = artifact.CreatedAt
		}
		studies = append(studies, entry)
	}
	c.JSON(http.StatusOK, gin.H{"studies": studies})
}

// GetStudy returns the cached summary of one study
func (h *StudyHandler) GetStudy(c *gin.Context) {
	artifact, ok := h.artifact(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, artifact)
}

// GetShape returns the shape of every sampling distribution of a cached study.
// Artifacts written without per-replicate estimates have nothing to profile.
func (h *StudyHandler) GetShape(c *gin.Context) {
	artifact, ok := h.artifact(c)
	if !ok {
		return
	}
	if len(artifact.Result.Estimates) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "study was run without per-replicate estimates",
			"code":  errors.CodeNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"study":  artifact.Config.Study,
		"shapes": profiling.AnalyzeEstimates(artifact.Result.Estimates),
	})
}

// artifact resolves the :name parameter to a cached artifact and writes the
// error response when there is none
func (h *StudyHandler) artifact(c *gin.Context) (*run.Artifact, bool) {
	name, err := core.ParseStudyName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
		return nil, false
	}

	artifact, err := h.catalog.Results(c.Request.Context(), h.driver, name)
	switch {
	case err == nil:
		return artifact, true
	case stderrors.Is(err, core.ErrCacheMiss) || stderrors.Is(err, core.ErrCacheCorruption):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no cached results for " + string(name) + "; run the simulate command first",
			"code":  errors.CodeNotFound,
		})
	default:
		respondError(c, h.logger, err)
	}
	return nil, false
}

func respondError(c *gin.Context, logger *internal.Logger, err error) {
	err = errors.Classify(err)
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput, errors.CodeConfigInvalid:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	default:
		logger.Error("request %s failed: %v", c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}
