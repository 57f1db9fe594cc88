package httpapi

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/radar-overlay/internal/radar"
)

var validate = newValidator()

// newValidator registers the "zoom" tag, bounded by radar.MaxZoom.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("zoom", func(fl validator.FieldLevel) bool {
		z := fl.Field().Int()
		return z >= 0 && z <= radar.MaxZoom
	})
	return v
}

// FrameSource supplies the current animation frame when a request omits it.
type FrameSource interface {
	Frame() uint64
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. frames may be nil,
// in which case requests without a frame use frame 0.
func RegisterRoutes(app *fiber.App, service *radar.Service, frames FrameSource) {
	v1 := app.Group("/api/v1/radar")

	v1.Get("/timestamps", func(c *fiber.Ctx) error {
		service.Timestamps(c.UserContext())
		return c.JSON(service.TimestampStats())
	})

	v1.Get("/frame", func(c *fiber.Ctx) error {
		frame, err := parseFrame(c, frames)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		list := service.Timestamps(c.UserContext())
		return c.JSON(fiber.Map{
			"frame":     frame,
			"timestamp": radar.ResolveFrame(list, frame),
			"available": len(list),
		})
	})

	v1.Get("/tiles/:zoom/:x/:y", func(c *fiber.Ctx) error {
		var q tileQuery
		if err := q.bind(c, frames); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		tile := q.toTile()
		if !tile.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("tile %s is outside the zoom grid", tile))
		}

		req := radar.NewTileRequest(tile, q.Frame)
		result := service.FetchTile(c.UserContext(), req)

		c.Set("X-Request-Id", req.ID)
		c.Set("X-Radar-Timestamp", strconv.FormatInt(result.Timestamp, 10))
		if result.Missing() {
			c.Set("X-Radar-Tile", "missing")
			return c.SendStatus(fiber.StatusNoContent)
		}

		c.Set(fiber.HeaderContentType, "image/"+result.Format)
		c.Set(fiber.HeaderCacheControl, "public, max-age=600")
		return c.Send(result.Image)
	})

	v1.Get("/locate", func(c *fiber.Ctx) error {
		q, err := parseLocateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := q.toLocation()
		tile, err := service.LocateTile(c.UserContext(), loc, q.Zoom)
		if err != nil {
			switch {
			case errors.Is(err, radar.ErrNoLocator):
				return fiber.NewError(fiber.StatusServiceUnavailable, "geocoding is not configured")
			case errors.Is(err, radar.ErrInvalidTile):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusBadGateway, "failed to geocode location")
		}

		return c.JSON(fiber.Map{
			"location": loc,
			"tile":     tile,
			"path":     fmt.Sprintf("/api/v1/radar/tiles/%d/%d/%d", tile.Zoom, tile.X, tile.Y),
		})
	})
}

// tileQuery holds path and query parameters for the tile endpoint.
type tileQuery struct {
	Zoom  int `validate:"zoom"`
	X     int `validate:"gte=0"`
	Y     int `validate:"gte=0"`
	Frame uint64
}

func (q *tileQuery) bind(c *fiber.Ctx, frames FrameSource) error {
	var err error
	if q.Zoom, err = c.ParamsInt("zoom"); err != nil {
		return errors.New("zoom must be an integer")
	}
	if q.X, err = c.ParamsInt("x"); err != nil {
		return errors.New("x must be an integer")
	}
	if q.Y, err = c.ParamsInt("y"); err != nil {
		return errors.New("y must be an integer")
	}
	q.Frame, err = parseFrame(c, frames)
	return err
}

func (q tileQuery) toTile() radar.Tile {
	return radar.Tile{Zoom: q.Zoom, X: q.X, Y: q.Y}
}

// locateQuery holds query parameters for the locate endpoint.
type locateQuery struct {
	City    string `validate:"required"`
	Country string `validate:"required"`
	Zoom    int    `validate:"zoom"`
}

func (l locateQuery) toLocation() radar.Location {
	return radar.Location{
		City:    l.City,
		Country: l.Country,
	}
}

func parseLocateQuery(c *fiber.Ctx) (locateQuery, error) {
	var q locateQuery

	q.City = c.Query("city")
	q.Country = c.Query("country")
	q.Zoom = c.QueryInt("zoom", 7)

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// parseFrame reads ?frame=N, falling back to the live animation frame.
func parseFrame(c *fiber.Ctx, frames FrameSource) (uint64, error) {
	raw := c.Query("frame")
	if raw == "" {
		if frames == nil {
			return 0, nil
		}
		return frames.Frame(), nil
	}
	frame, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("frame must be a non-negative integer")
	}
	return frame, nil
}
