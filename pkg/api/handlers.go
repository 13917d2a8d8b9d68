package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

// Handlers serves the read-only query endpoints over the store
type Handlers struct {
	store store.Store
	log   logrus.FieldLogger
}

// NewHandlers creates the API handlers
func NewHandlers(st store.Store, log logrus.FieldLogger) *Handlers {
	return &Handlers{
		store: st,
		log:   log.WithField("component", "api.handlers"),
	}
}

// Register mounts the endpoints on an API group
func (h *Handlers) Register(group fiber.Router) {
	group.Get("/plants/:plant_id/power", h.getPowerRange)
	group.Get("/plants/:plant_id/energy", h.getEnergyRange)
}

// getPowerRange returns power samples for a plant in [from, to], ascending
// by timestamp. from/to are RFC 3339 instants.
func (h *Handlers) getPowerRange(c fiber.Ctx) error {
	plantID, err := strconv.ParseInt(c.Params("plant_id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid plant id")
	}

	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid 'from' timestamp")
	}

	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid 'to' timestamp")
	}

	samples, err := h.store.PowerRange(c.Context(), plantID, from, to)
	if err != nil {
		h.log.WithError(err).Error("Power range query failed")

		return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
	}

	if samples == nil {
		samples = []store.PowerSample{}
	}

	return c.JSON(samples)
}

// getEnergyRange returns daily energy totals for a plant in [from, to],
// ascending by date. from/to are ISO dates.
func (h *Handlers) getEnergyRange(c fiber.Ctx) error {
	plantID, err := strconv.ParseInt(c.Params("plant_id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid plant id")
	}

	from, err := timewindow.ParseDay(c.Query("from"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid 'from' date")
	}

	to, err := timewindow.ParseDay(c.Query("to"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid 'to' date")
	}

	totals, err := h.store.EnergyRange(c.Context(), plantID, from, to)
	if err != nil {
		h.log.WithError(err).Error("Energy range query failed")

		return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
	}

	if totals == nil {
		totals = []store.DailyEnergy{}
	}

	return c.JSON(totals)
}
