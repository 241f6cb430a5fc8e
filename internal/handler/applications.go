package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// ListApplications handles GET /applications?status=&job_id=&user_id=.
// The core narrows the filter to what the caller may see.
func (h *Handler) ListApplications(c echo.Context) error {
	f := store.ApplicationFilter{
		Status: model.ApplicationStatus(queryUpper(c, "status")),
		JobID:  queryUint(c, "job_id"),
		UserID: queryUint(c, "user_id"),
		Limit:  queryInt(c, "limit"),
		Offset: queryInt(c, "offset"),
	}
	apps, err := h.Svc.Marketplace.ListApplications(c.Request().Context(), actorFrom(c), f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": apps})
}

// DecideApplication handles PATCH /applications/:id/status.
func (h *Handler) DecideApplication(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pengajuan tidak valid")
	}
	status, ok := bindStatus(c)
	if !ok {
		return badRequest(c, "Status wajib diisi")
	}
	app, err := h.Svc.Marketplace.Decide(c.Request().Context(), actorFrom(c), id, model.ApplicationStatus(status))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, app)
}

type proofReq struct {
	ProofImage1    string `json:"proof_image1"`
	ProofImage2    string `json:"proof_image2"`
	SubmissionNote string `json:"submission_note"`
}

// SubmitProof handles POST /applications/:id/proof.
func (h *Handler) SubmitProof(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pengajuan tidak valid")
	}
	var req proofReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Format permintaan tidak valid")
	}
	app, err := h.Svc.Marketplace.SubmitProof(c.Request().Context(), actorFrom(c), id,
		strings.TrimSpace(req.ProofImage1), strings.TrimSpace(req.ProofImage2), req.SubmissionNote)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, app)
}
