package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"savecsv/internal/domain"
	"savecsv/internal/export"
	"savecsv/internal/journal"
	u "savecsv/internal/utils"
)

const defaultHistoryLimit = 20

// ExportService exposes the export pipeline over HTTP.
type ExportService struct {
	Config   *u.Config
	Exporter *export.Exporter
}

// NewExportService creates a new ExportService instance.
func NewExportService(cfg u.Config, exporter *export.Exporter) *ExportService {
	return &ExportService{
		Config:   &cfg,
		Exporter: exporter,
	}
}

// HandleSaveCSV serves every verb of the save-csv endpoint. OPTIONS answers
// 200 with an empty body; anything but POST is rejected before the body is
// looked at. CORS headers go on every reply, with or without an Origin.
func (svc *ExportService) HandleSaveCSV(c *fiber.Ctx) error {
	setCORSHeaders(c)
	switch c.Method() {
	case fiber.MethodOptions:
		c.Status(fiber.StatusOK)
		return nil
	case fiber.MethodPost:
	default:
		return domain.ErrMethodNotAllowed
	}

	res, err := svc.Exporter.Export(c.UserContext(), RequestID(c), c.Body())
	if err != nil {
		return err
	}
	u.Info("CSV exported", "request_id", RequestID(c), "saved_to", res.SavedTo, "rows", res.Rows, "bytes", res.Bytes)
	return c.JSON(res)
}

// HandleListExports returns the journal entries of one member.
func (svc *ExportService) HandleListExports(c *fiber.Ctx) error {
	memberCode := utils.CopyString(c.Params("member_code"))
	if memberCode == "" {
		return domain.ErrMissingFields
	}
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}

	entries, err := svc.Exporter.History(c.UserContext(), memberCode, limit)
	if err != nil {
		if errors.Is(err, journal.ErrDisabled) {
			return fiber.NewError(fiber.StatusNotFound, "Export journal is disabled")
		}
		u.Error("Failed to read export journal", "member_code", memberCode, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to read export journal")
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return c.JSON(fiber.Map{
		"member_code": memberCode,
		"exports":     entries,
	})
}

func setCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, "POST,OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type")
}

// RequestID returns the id assigned by the requestid middleware, if any.
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
