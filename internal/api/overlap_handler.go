package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"therapist-effects/domain/overlap"
	"therapist-effects/internal"
	"therapist-effects/internal/errors"
)

// OverlapHandler evaluates the overlap measures on request
type OverlapHandler struct {
	logger *internal.Logger
}

// NewOverlapHandler creates a new overlap handler
func NewOverlapHandler() *OverlapHandler {
	return &OverlapHandler{logger: internal.DefaultLogger}
}

// GetMeasures handles GET /overlap?d=&icc=
func (h *OverlapHandler) GetMeasures(c *gin.Context) {
	d, err := floatQuery(c, "d", "")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	icc, err := floatQuery(c, "icc", "")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	measures, err := overlap.Compute(d, icc)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"d": d, "icc": icc, "measures": measures})
}

// GetCurve handles GET /overlap/curve?d=&from=&to=&step=
func (h *OverlapHandler) GetCurve(c *gin.Context) {
	params := make(map[string]float64, 4)
	for _, q := range []struct{ name, def string }{
		{"d", ""}, {"from", "0.01"}, {"to", "0.3"}, {"step", "0.01"},
	} {
		v, err := floatQuery(c, q.name, q.def)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		params[q.name] = v
	}

	points, err := overlap.Curve(params["d"], params["from"], params["to"], params["step"])
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"d": params["d"], "points": points})
}

func floatQuery(c *gin.Context, name, def string) (float64, error) {
	raw := c.DefaultQuery(name, def)
	if raw == "" {
		return 0, errors.InvalidInput("query parameter " + name + " is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.InvalidInput("query parameter " + name + " must be a number")
	}
	return v, nil
}
