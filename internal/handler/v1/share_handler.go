package v1

import (
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/gin-gonic/gin"
)

// ShareHandler serves anonymous share-link access.
type ShareHandler struct {
	links *service.ShareLinkService
}

func NewShareHandler(links *service.ShareLinkService) *ShareHandler {
	return &ShareHandler{links: links}
}

func (h *ShareHandler) Info(c *gin.Context) {
	link, err := h.links.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toSharedRecordInfo(link))
}

func (h *ShareHandler) Download(c *gin.Context) {
	link, rc, err := h.links.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer rc.Close()
	sendFile(c, &link.Record, rc)
}
