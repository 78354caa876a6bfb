// Package api exposes cached study results and the overlap calculator over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"therapist-effects/app"
)

// NewRouter registers every route on a fresh gin engine
func NewRouter(catalog ResultSource, driver *app.ReplicationDriver) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	studies := NewStudyHandler(catalog, driver)
	overlaps := NewOverlapHandler()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "simulated": driver.Simulated()})
	})
	router.GET("/studies", studies.ListStudies)
	router.GET("/studies/:name", studies.GetStudy)
	router.GET("/studies/:name/shape", studies.GetShape)
	router.GET("/overlap", overlaps.GetMeasures)
	router.GET("/overlap/curve", overlaps.GetCurve)

	return router
}
