package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nanohr/nanofit/pkg/comfort"
	"github.com/nanohr/nanofit/pkg/session"
	"github.com/nanohr/nanofit/pkg/store"
	"github.com/nanohr/nanofit/pkg/workout"
)

// API denotes a REST API over a tracker session and workout recorder
type API struct {
	session  *session.Session
	recorder *workout.Recorder
	store    store.Store
	userID   string
	router   *fiber.App
}

// New instantiates a new API and starts listening on the given endpoint
func New(s *session.Session, r *workout.Recorder, st store.Store, userID, endpoint string) *API {

	api := API{
		session:  s,
		recorder: r,
		store:    st,
		userID:   userID,
		router:   fiber.New(fiber.Config{DisableStartupMessage: true}),
	}

	api.setupRoutes()

	// Start to listen in goroutine
	go func() {
		if err := api.router.Listen(endpoint); err != nil {
			panic(err)
		}
	}()

	return &api
}

// Shutdown stops the listener
func (api *API) Shutdown() error {
	return api.router.Shutdown()
}

func (api *API) setupRoutes() {
	api.router.Get("/state", api.handleState())
	api.router.Get("/devices", api.handleDevices())
	api.router.Get("/telemetry", api.handleTelemetry())
	api.router.Get("/environment", api.handleEnvironment())
	api.router.Get("/sessions", api.handleSessions())

	api.router.Post("/scan", api.handleScan())
	api.router.Post("/scan/stop", api.handleScanStop())
	api.router.Post("/connect", api.handleConnect())
	api.router.Post("/disconnect", api.handleDisconnect())
	api.router.Post("/environment/measure", api.handleMeasure())

	api.router.Post("/workout/start", api.handleWorkoutStart())
	api.router.Post("/workout/end", api.handleWorkoutEnd())
	api.router.Post("/activity/start", api.handleActivityStart())
	api.router.Post("/activity/pause", api.handleActivityPause())
	api.router.Post("/activity/resume", api.handleActivityResume())
	api.router.Post("/activity/end", api.handleActivityEnd())
}

func (api *API) handleState() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		state := api.session.State()

		resp := fiber.Map{
			"phase": state.Phase.String(),
		}
		if state.DeviceName != "" {
			resp["device_name"] = state.DeviceName
		}
		if state.DeviceAddr != "" {
			resp["device_addr"] = state.DeviceAddr
		}
		if state.Err != "" {
			resp["error"] = state.Err
		}

		return c.JSON(resp)
	}
}

func (api *API) handleDevices() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.JSON(api.session.Devices())
	}
}

func (api *API) handleTelemetry() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		snap := api.session.Telemetry().Snapshot()
		return c.JSON(fiber.Map{
			"heart_rate_bpm":   snap.HeartRateBPM,
			"temperature_c":    snap.TemperatureC,
			"humidity_percent": snap.HumidityPercent,
			"cumulative_steps": snap.CumulativeSteps,
		})
	}
}

func (api *API) handleEnvironment() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		snap := api.session.Telemetry().Snapshot()
		if snap.TemperatureC == nil || snap.HumidityPercent == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "no environment measurement available",
			})
		}

		return c.JSON(fiber.Map{
			"temperature_c":    *snap.TemperatureC,
			"humidity_percent": *snap.HumidityPercent,
			"heat_index_c":     comfort.HeatIndexC(*snap.TemperatureC, *snap.HumidityPercent),
			"suitability":      comfort.Classify(*snap.TemperatureC, *snap.HumidityPercent),
		})
	}
}

func (api *API) handleSessions() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		sessions, err := api.store.List(c.Context(), api.userID)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"message": err.Error(),
			})
		}
		return c.JSON(sessions)
	}
}

func (api *API) handleScan() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		api.session.StartScan()
		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (api *API) handleScanStop() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		api.session.StopScan()
		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (api *API) handleConnect() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var req struct {
			Addr string `json:"addr"`
			Name string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil || req.Addr == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "addr is required",
			})
		}

		api.session.Connect(req.Addr, req.Name)
		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (api *API) handleDisconnect() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		api.session.Disconnect()
		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (api *API) handleMeasure() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		api.session.RequestEnvironmentMeasurement()
		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (api *API) handleWorkoutStart() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := api.recorder.StartWorkout(); err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": err.Error(),
			})
		}
		return c.SendStatus(fiber.StatusCreated)
	}
}

func (api *API) handleWorkoutEnd() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		sess, err := api.recorder.EndWorkout()
		if err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": err.Error(),
			})
		}
		return c.JSON(sess)
	}
}

func (api *API) handleActivityStart() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var req struct {
			Type string `json:"type"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "invalid request body",
			})
		}

		if err := api.recorder.StartActivity(workout.ActivityType(req.Type)); err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": err.Error(),
			})
		}
		return c.SendStatus(fiber.StatusCreated)
	}
}

func (api *API) handleActivityPause() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := api.recorder.PauseActivity(); err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": err.Error(),
			})
		}
		return c.SendStatus(fiber.StatusOK)
	}
}

func (api *API) handleActivityResume() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := api.recorder.ResumeActivity(); err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": err.Error(),
			})
		}
		return c.SendStatus(fiber.StatusOK)
	}
}

func (api *API) handleActivityEnd() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		entry, err := api.recorder.EndActivity()
		if err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": err.Error(),
			})
		}
		return c.JSON(entry)
	}
}
