package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/queue"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
)

type AttackRequest struct {
	AttackType string `json:"attack_type" form:"attack_type"`
}

// SimulateAttack runs an attack scenario against a copy of the chain and
// stores the result as the latest one.
func (h *Handlers) SimulateAttack(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	var req AttackRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}

	res, err := h.chain.SimulateAttackNamed(req.AttackType)
	var unknown *ledger.UnknownAttackTypeError
	if errors.As(err, &unknown) {
		return apiErr(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "attack simulation failed")
	}

	h.metrics.ObserveAttack(res.AttackType, res.Detected())
	h.audit(p.Username, models.ActionValidateChain, "Blockchain validation performed: "+res.AttackType)
	if err := h.db.Results.SaveAttack(res); err != nil {
		h.log.Error("save attack result", zap.Error(err))
	}
	return c.JSON(http.StatusOK, res)
}

type SnapshotRequest struct {
	SnapshotName string `json:"snapshot_name" form:"snapshot_name"`
}

// AnalyzeSnapshot summarizes the chain under a name, Snapshot_<unix> by
// default, and stores it as the latest snapshot.
func (h *Handlers) AnalyzeSnapshot(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	var req SnapshotRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	name := req.SnapshotName
	if name == "" {
		name = "Snapshot_" + strconv.FormatInt(h.now().Unix(), 10)
	}

	snap := h.chain.AnalyzeSnapshot(name)
	h.metrics.ObserveValidation(snap.Validation.Valid, 0)
	h.audit(p.Username, models.ActionAnalyzeSnapshot, "Snapshot analysis performed: "+name)
	if err := h.db.Results.SaveSnapshot(snap); err != nil {
		h.log.Error("save snapshot result", zap.Error(err))
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handlers) ValidateChain(c echo.Context) error {
	return c.JSON(http.StatusOK, h.validate())
}

func (h *Handlers) ListBlocks(c echo.Context) error {
	return c.JSON(http.StatusOK, h.chain.Blocks())
}

// TriggerRebuild enqueues an immediate sealed chain rebuild.
func (h *Handlers) TriggerRebuild(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	if h.queue == nil {
		return apiErr(c, http.StatusServiceUnavailable, "background rebuilds are disabled")
	}

	queued, err := queue.EnqueueRebuild(c.Request().Context(), h.queue, queue.RebuildPayload{
		Reason:      "manual",
		RequestedBy: p.Username,
		RequestedAt: h.now().UTC(),
	}, 0)
	if err != nil {
		h.log.Error("enqueue manual rebuild", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to enqueue rebuild")
	}

	status := "queued"
	if !queued {
		status = "already_queued"
	}
	h.audit(p.Username, models.ActionRebuildChain, "Blockchain rebuild requested")
	return c.JSON(http.StatusAccepted, map[string]string{"status": status})
}

// ListArchives returns the most recent sealed chain archives.
func (h *Handlers) ListArchives(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	return c.JSON(http.StatusOK, h.db.Archives.Latest(limit))
}
