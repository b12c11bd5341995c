package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"petfeeder/internal/fill"
	"petfeeder/internal/inventory"
	"petfeeder/internal/trigger"
)

// GetState returns the controller's last published snapshot.
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.Snapshot())
}

// Healthz reports liveness and whether the device state has been synced.
func (h *Handler) Healthz(c *gin.Context) {
	snap := h.ctl.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"synced":          snap.Synced,
		"last_poll":       snap.LastPoll,
		"pending_reports": len(snap.PendingReports),
	})
}

// StartFill begins a refill session.
func (h *Handler) StartFill(c *gin.Context) {
	reply, err := h.ctl.Submit(c.Request.Context(), trigger.StartFill)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if reply.Err != nil {
		if errors.Is(reply.Err, fill.ErrSessionActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "a fill session is already active"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": reply.Err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "fill in progress"})
}

type reportResponse struct {
	Kind     inventory.Kind `json:"kind"`
	Quantity float64        `json:"quantity"`
	Error    string         `json:"error,omitempty"`
}

type fillResponse struct {
	Outcome    fill.Outcome     `json:"outcome"`
	AddedFood  float64          `json:"added_food"`
	AddedWater float64          `json:"added_water"`
	Reported   []reportResponse `json:"reported"`
	Failed     []reportResponse `json:"failed"`
}

func newFillResponse(res *fill.Result) fillResponse {
	out := fillResponse{
		Outcome:    res.Outcome,
		AddedFood:  res.AddedFood,
		AddedWater: res.AddedWater,
		Reported:   []reportResponse{},
		Failed:     []reportResponse{},
	}
	for _, r := range res.Reported {
		out.Reported = append(out.Reported, reportResponse{Kind: r.Kind, Quantity: r.Quantity})
	}
	for _, r := range res.Failed {
		out.Failed = append(out.Failed, reportResponse{Kind: r.Kind, Quantity: r.Quantity, Error: r.Err.Error()})
	}
	return out
}

// EndFill ends the refill session and returns its outcome. Rejected refills
// answer 422, a missing session 409.
func (h *Handler) EndFill(c *gin.Context) {
	reply, err := h.ctl.Submit(c.Request.Context(), trigger.EndFill)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if reply.Err != nil || reply.Fill == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fill session did not report a result"})
		return
	}

	switch reply.Fill.Outcome {
	case fill.NoActiveSession:
		c.JSON(http.StatusConflict, gin.H{"error": "no active fill session"})
	case fill.FoodOverflow, fill.WaterOverflow:
		c.JSON(http.StatusUnprocessableEntity, newFillResponse(reply.Fill))
	default:
		c.JSON(http.StatusOK, newFillResponse(reply.Fill))
	}
}
