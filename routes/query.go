package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragdocs-api/models"
	"ragdocs-api/services"
	"ragdocs-api/utils"
)

// HandleQuery runs the full query pipeline: cache, enhancement, hybrid
// retrieval, reranking and answer generation.
func HandleQuery(queryService *services.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "query is required", nil)
			return
		}

		resp, err := queryService.Query(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, models.ErrAllLanesFailed) {
				utils.RespondWithError(c, http.StatusBadGateway, "retrieval_failed",
					"Search is temporarily unavailable", nil)
				return
			}
			utils.RespondWithInternalError(c, "Query failed", nil)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
