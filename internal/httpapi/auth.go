package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/auth"
	"rfidattend/internal/validator"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		validationFailed(c, fields)
		return
	}
	if err := h.Operator.Authenticate(req.Username, req.Password); err != nil {
		h.log.Info().Str("username", req.Username).Msg("operator login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	pair, err := h.Issuer.Issue(req.Username, auth.RoleOperator)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if fields := validator.Bind(c, &req); fields != nil {
		validationFailed(c, fields)
		return
	}
	pair, err := h.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}
