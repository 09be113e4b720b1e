package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fit-atlas/internal/application/export"
	"fit-atlas/internal/application/index"
	querysvc "fit-atlas/internal/application/query"
	"fit-atlas/internal/domain"
	"fit-atlas/internal/middleware"
	"fit-atlas/internal/pkg/response"
	"fit-atlas/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// exportMaxRows caps the rows written to one export file.
const exportMaxRows = 100000

// Handlers bundles query handlers with dependencies.
type Handlers struct {
	Service *querysvc.Service
	Audits  *querysvc.GormAudit
}

type queryBody struct {
	Text       string `json:"text"`
	AsOfDate   string `json:"as_of_date"`
	SessionID  string `json:"session_id"`
	MaxResults int    `json:"max_results"`
}

func (h *Handlers) request(c *fiber.Ctx) (querysvc.Request, error) {
	var body queryBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return querysvc.Request{}, errBadBody
	}
	req := querysvc.Request{
		Text:       body.Text,
		SessionID:  body.SessionID,
		TraceID:    middleware.GetTraceID(c),
		MaxResults: body.MaxResults,
	}
	if req.MaxResults < 0 {
		return req, errBadLimit
	}
	if req.SessionID == "" {
		req.SessionID = middleware.GetSessionID(c)
	} else if !validation.IsValidSessionID(req.SessionID) {
		return req, errBadSession
	}
	if body.AsOfDate != "" {
		d, err := validation.ParseDate(body.AsOfDate)
		if err != nil {
			return req, err
		}
		req.AsOf = &d
	}
	return req, nil
}

var (
	errBadBody    = errors.New("Request body must be JSON with a text field")
	errBadSession = errors.New("session_id must be 1-128 letters, digits, dashes or underscores")
	errBadLimit   = errors.New("max_results must not be negative")
)

// Query POST /api/v1/query
func (h *Handlers) Query(c *fiber.Ctx) error {
	req, err := h.request(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	resp, err := h.Service.Query(c.UserContext(), req)
	if err != nil {
		return writeError(c, err, resp)
	}
	return response.Success(c, message(resp), resp, metadata(resp))
}

// Parse POST /api/v1/query/parse
func (h *Handlers) Parse(c *fiber.Ctx) error {
	var body queryBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return writeError(c, errBadBody, nil)
	}
	parsed, err := h.Service.Parse(body.Text)
	if err != nil {
		return writeError(c, err, nil)
	}
	return response.Success(c, "Query parsed", parsed, nil)
}

// Export POST /api/v1/query/export?format=xlsx|pdf
func (h *Handlers) Export(c *fiber.Ctx) error {
	format := strings.ToLower(c.Query("format", export.FormatXLSX))
	contentType, err := export.ContentType(format)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	req, err := h.request(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	if req.MaxResults == 0 {
		req.MaxResults = exportMaxRows
	}
	resp, err := h.Service.Query(c.UserContext(), req)
	if err != nil {
		return writeError(c, err, resp)
	}
	out, err := export.Render(format, resp)
	if err != nil {
		log.Error().Err(err).Str("trace_id", req.TraceID).Str("format", format).Msg("Export failed")
		return response.Error(c, "Export failed", fiber.StatusInternalServerError, nil)
	}
	name := fmt.Sprintf("fit-query-%s.%s", resp.AsOf.Format("20060102"), format)
	return response.Attachment(c, contentType, name, out)
}

// Asset GET /api/v1/assets/:id?as_of=
func (h *Handlers) Asset(c *fiber.Ctx) error {
	var asOf *time.Time
	if s := c.Query("as_of"); s != "" {
		d, err := validation.ParseDate(s)
		if err != nil {
			return writeError(c, err, nil)
		}
		asOf = &d
	}
	detail, err := h.Service.Describe(c.Params("id"), asOf)
	if err != nil {
		return writeError(c, err, nil)
	}
	return response.Success(c, "Asset found", detail, nil)
}

// RecentAudits GET /api/v1/query/audits?limit= (admin key required)
func (h *Handlers) RecentAudits(c *fiber.Ctx) error {
	if h.Audits == nil {
		return response.Unavailable(c, "Audit log is not configured")
	}
	rows, err := h.Audits.Recent(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return writeError(c, err, nil)
	}
	return response.Success(c, "Recent queries", rows, fiber.Map{"count": len(rows)})
}

func message(resp *querysvc.Response) string {
	if resp.TotalMatches == 0 {
		return "No matching installations"
	}
	return fmt.Sprintf("%d matching installations", resp.TotalMatches)
}

func metadata(resp *querysvc.Response) fiber.Map {
	return fiber.Map{
		"intent":        resp.Intent,
		"total_matches": resp.TotalMatches,
		"truncated":     resp.Truncated,
		"warnings":      len(resp.Warnings),
	}
}

// writeError maps service errors to status codes. Refusals keep the warnings
// and suggestions in the error details.
func writeError(c *fiber.Ctx, err error, resp *querysvc.Response) error {
	switch {
	case errors.Is(err, querysvc.ErrUnderspecifiedQuery), errors.Is(err, domain.ErrRangeInconsistency):
		details := fiber.Map{}
		if resp != nil {
			details["filter_understood"] = resp.Filter
			details["warnings"] = resp.Warnings
			details["suggestions"] = resp.Suggestions
			details["as_of_date"] = resp.AsOf
		}
		return response.Refused(c, err.Error(), details)
	case errors.Is(err, querysvc.ErrEmptyText), errors.Is(err, validation.ErrInvalidDate),
		errors.Is(err, errBadBody), errors.Is(err, errBadSession), errors.Is(err, errBadLimit):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, querysvc.ErrAssetNotFound):
		return response.NotFound(c, querysvc.ErrAssetNotFound.Error(), fiber.Map{"asset_id": c.Params("id")})
	case errors.Is(err, index.ErrNotLoaded):
		return response.Unavailable(c, err.Error())
	}
	log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Str("path", c.Path()).Msg("Query failed")
	return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
}
