package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/httpx"
)

// PortalHandler serves the role landing pages. The pages themselves belong
// to the submission, review and program modules; here they only confirm
// who is signed in.
type PortalHandler struct {
	logger *slog.Logger
}

func NewPortalHandler(logger *slog.Logger) *PortalHandler {
	return &PortalHandler{logger: logger}
}

func (h *PortalHandler) page(title, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := auth.SessionFromContext(r.Context())
		if httpx.WantsJSON(r) {
			httpx.JSON(w, http.StatusOK, map[string]any{
				"page":    title,
				"user_id": sess.UserID,
				"roles":   sess.Roles,
				"role":    sess.LegacyLabel(),
			})
			return
		}
		render(w, r, h.logger, http.StatusOK, "portal.html", map[string]any{"Title": title, "Body": body})
	}
}

func (h *PortalHandler) Submissions() http.HandlerFunc {
	return h.page("Submissions", "Review incoming applications and their status.")
}

func (h *PortalHandler) Reviewer() http.HandlerFunc {
	return h.page("Reviewer", "Score the applications assigned to your group.")
}

func (h *PortalHandler) Students() http.HandlerFunc {
	return h.page("Student portal", "Your academy materials and schedule.")
}

func (h *PortalHandler) ProgramAdmin() http.HandlerFunc {
	return h.page("Program", "Edit and publish the academy program.")
}
