package httptransport

import (
	"net/http"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"

	dErrors "kindergarten/pkg/domain-errors"
)

const qrSize = 256

// handleGardenQR renders a PNG QR code linking to the kindergarten's
// registration page, for printed posters.
func (h *Handler) handleGardenQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := param(r, "garden")
	g, err := h.Gardens.GetByName(ctx, name)
	if err != nil {
		h.fail(ctx, w, "failed to load garden", err, "garden", name)
		return
	}

	link := h.PublicBaseURL + "/gardens/" + url.PathEscape(g.Name) + "/registration"
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		h.fail(ctx, w, "qr encoding failed", dErrors.Wrap(err, dErrors.CodeInternal, "qr encoding failed"), "garden", name)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
