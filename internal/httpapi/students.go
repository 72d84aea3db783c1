package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
	"rfidattend/internal/validator"
)

func (h *handler) listStudents(c *gin.Context) {
	students, err := h.Service.ListStudents(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (h *handler) getStudent(c *gin.Context) {
	st, err := h.Service.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handler) createStudent(c *gin.Context) {
	var in attendance.StudentInput
	if fields := validator.Bind(c, &in); fields != nil {
		validationFailed(c, fields)
		return
	}
	st, err := h.Service.CreateStudent(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *handler) updateStudent(c *gin.Context) {
	var in attendance.StudentInput
	if fields := validator.Bind(c, &in); fields != nil {
		validationFailed(c, fields)
		return
	}
	st, err := h.Service.UpdateStudent(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handler) deleteStudent(c *gin.Context) {
	if err := h.Service.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
