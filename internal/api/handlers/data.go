package handlers

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/catalog"
)

// DataHandler serves the exported snapshot and its version marker
type DataHandler struct {
	dir    string
	logger *logrus.Logger
}

// NewDataHandler creates a new data handler serving files from dir
func NewDataHandler(dir string, logger *logrus.Logger) *DataHandler {
	return &DataHandler{dir: dir, logger: logger}
}

// Snapshot serves data.json
func (h *DataHandler) Snapshot(c *fiber.Ctx) error {
	return h.serve(c, catalog.DataFile, fiber.MIMEApplicationJSONCharsetUTF8)
}

// Marker serves data.json.update
func (h *DataHandler) Marker(c *fiber.Ctx) error {
	return h.serve(c, catalog.MarkerFile, fiber.MIMETextPlainCharsetUTF8)
}

// serve reads the file on every request; exports replace it by rename
func (h *DataHandler) serve(c *fiber.Ctx, name, contentType string) error {
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fiber.NewError(fiber.StatusNotFound, "No catalog exported yet")
	}
	if err != nil {
		h.logger.WithError(err).WithField("file", name).Error("Failed to read catalog file")
		return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Send(data)
}
