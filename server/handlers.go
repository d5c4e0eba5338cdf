package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"git.0xdad.com/tblyler/lifespan/notify"
	"git.0xdad.com/tblyler/lifespan/reminder"
)

// createRequest is the JSON body for POST /reminders
type createRequest struct {
	MedicineName string    `json:"medicine_name"`
	Times        []string  `json:"times"`
	DurationDays int       `json:"duration_days"`
	StartDate    time.Time `json:"start_date"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.agent == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"received":    true,
			"controlling": false,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
	defer cancel()

	if err := s.agent.Ping(ctx); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"received":    true,
		"controlling": s.agent.Controlling(),
	})
}

func (s *Server) handleList(c echo.Context) error {
	all, _ := strconv.ParseBool(c.QueryParam("all"))
	if all {
		return c.JSON(http.StatusOK, s.store.All())
	}

	active := s.store.ListActive(s.now())
	if active == nil {
		active = []*reminder.Reminder{}
	}

	return c.JSON(http.StatusOK, active)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Stats())
}

func (s *Server) handleCreate(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r, err := s.store.Add(req.MedicineName, req.Times, req.DurationDays, req.StartDate)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, r)
}

func (s *Server) handleGet(c echo.Context) error {
	id, err := reminderID(c)
	if err != nil {
		return err
	}

	r, err := s.store.Get(id)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleUpdate(c echo.Context) error {
	id, err := reminderID(c)
	if err != nil {
		return err
	}

	var patch reminder.Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r, err := s.store.Update(id, patch)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleRemove(c echo.Context) error {
	id, err := reminderID(c)
	if err != nil {
		return err
	}

	if err := s.store.Remove(id); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAction(c echo.Context) error {
	action, err := notify.ParseAction(c.Param("action"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tag := c.Param("tag")
	if err := s.agent.Report(c.Request().Context(), tag, action, c.QueryParam("reminder_id")); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusAccepted, map[string]bool{"received": true})
}

func reminderID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid reminder id")
	}

	return id, nil
}
