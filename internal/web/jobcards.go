package web

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/icodeuridevice/AICarServiceAgent/internal/jobcards"
)

func (s *Server) handleOpenJobCard(c echo.Context) error {
	var body struct {
		Technician string `json:"technician_name"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	j, err := s.JobCards.Open(c.Request().Context(), c.Param("id"), body.Technician)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newJobCardView(j))
}

func (s *Server) handleListJobCards(c echo.Context) error {
	active := c.QueryParam("active") == "true"
	js, err := s.JobCards.List(c.Request().Context(), active)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]jobCardView, 0, len(js))
	for _, j := range js {
		out = append(out, newJobCardView(j))
	}
	return c.JSON(http.StatusOK, echo.Map{"jobcards": out})
}

func (s *Server) handleGetJobCard(c echo.Context) error {
	j, err := s.JobCards.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newJobCardView(j))
}

func (s *Server) handleUpdateJobCard(c echo.Context) error {
	var body struct {
		TechnicianName *string  `json:"technician_name"`
		WorkNotes      *string  `json:"work_notes"`
		TotalCost      *float64 `json:"total_cost"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	j, err := s.JobCards.Update(c.Request().Context(), c.Param("id"), jobcards.Patch{
		TechnicianName: body.TechnicianName,
		WorkNotes:      body.WorkNotes,
		TotalCost:      body.TotalCost,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newJobCardView(j))
}

func (s *Server) handleCompleteJobCard(c echo.Context) error {
	j, err := s.JobCards.Complete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newJobCardView(j))
}
