package controller

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"chain-of-agents-be/internal/dto"
	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/internal/pkg/serverutils"
	"chain-of-agents-be/internal/service"
	"chain-of-agents-be/pkg/coa"
	"chain-of-agents-be/pkg/document"
	"chain-of-agents-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChainController interface {
	RegisterRoutes(r fiber.Router, guards ...fiber.Handler)
	ProcessStream(ctx *fiber.Ctx) error
	Process(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
	GetRun(ctx *fiber.Ctx) error
}

type chainController struct {
	service service.IChainService
	logger  logger.ILogger
}

func NewChainController(service service.IChainService, log logger.ILogger) IChainController {
	return &chainController{service: service, logger: log}
}

func (c *chainController) RegisterRoutes(r fiber.Router, guards ...fiber.Handler) {
	// Public endpoints
	r.Get("/health", c.Health)

	protected := r.Group("", guards...)
	protected.Post("/process-stream", c.ProcessStream)
	protected.Post("/process", c.Process)

	h := protected.Group("/api/chain/v1")
	h.Get("/runs/:id", c.GetRun)
}

func (c *chainController) ProcessStream(ctx *fiber.Ctx) error {
	doc, query, err := c.parseInput(ctx)
	if err != nil {
		return err
	}
	if c.service.Busy() {
		return coa.ErrRunInProgress
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		writer := stream.NewEventWriter(w)

		// The request context ends when the handler returns; the stream
		// outlives it.
		_, err := c.service.Stream(context.Background(), doc, query, writer)
		if err == nil {
			return
		}

		var emitErr *coa.EmitError
		if errors.As(err, &emitErr) {
			c.logger.Warn("CHAIN", "Client disconnected during stream", map[string]interface{}{"error": err.Error()})
			return
		}
		if writeErr := writer.WriteFrame(stream.ErrorFrame(err)); writeErr != nil {
			c.logger.Warn("CHAIN", "Failed to write error frame", map[string]interface{}{"error": writeErr.Error()})
		}
	})
	return nil
}

func (c *chainController) Process(ctx *fiber.Ctx) error {
	doc, query, err := c.parseInput(ctx)
	if err != nil {
		return err
	}

	answer, err := c.service.Process(ctx.Context(), doc, query)
	if err != nil {
		return err
	}

	return ctx.JSON(dto.ProcessResponse{Result: answer})
}

func (c *chainController) Health(ctx *fiber.Ctx) error {
	worker, manager := c.service.Models()
	if err := c.service.Health(ctx.Context()); err != nil {
		c.logger.Warn("CHAIN", "Health check failed", map[string]interface{}{"error": err.Error()})
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(dto.HealthResponse{Status: "unavailable"})
	}
	return ctx.JSON(dto.HealthResponse{Status: "ok", WorkerModel: worker, ManagerModel: manager})
}

func (c *chainController) GetRun(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid run id")
	}

	res, err := c.service.GetRun(ctx.Context(), id)
	if errors.Is(err, service.ErrRunNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, "Run not found"))
	}
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get run", res))
}

// parseInput reads either a multipart upload (pdf + query) or a JSON body
// with pre-extracted text.
func (c *chainController) parseInput(ctx *fiber.Ctx) (coa.Document, string, error) {
	contentType := string(ctx.Request().Header.ContentType())
	if strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
		return c.parseUpload(ctx)
	}

	var req dto.ProcessTextRequest
	if err := ctx.BodyParser(&req); err != nil {
		return coa.Document{}, "", fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return coa.Document{}, "", err
	}
	return document.FromText(req.Text), req.Query, nil
}

func (c *chainController) parseUpload(ctx *fiber.Ctx) (coa.Document, string, error) {
	fileHeader, err := ctx.FormFile(stream.FieldPDF)
	if err != nil {
		return coa.Document{}, "", &coa.ValidationError{Field: "pdf", Reason: "no PDF file provided"}
	}
	query := ctx.FormValue(stream.FieldQuery)
	if strings.TrimSpace(query) == "" {
		return coa.Document{}, "", &coa.ValidationError{Field: "query", Reason: "no query provided"}
	}

	file, err := fileHeader.Open()
	if err != nil {
		return coa.Document{}, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return coa.Document{}, "", err
	}

	doc, err := document.FromPDF(data)
	if err != nil {
		return coa.Document{}, "", &coa.ValidationError{Field: "document", Reason: err.Error()}
	}

	c.logger.Info("CHAIN", "PDF received", map[string]interface{}{
		"filename": fileHeader.Filename,
		"size":     fileHeader.Size,
		"pages":    doc.PageCount,
	})
	return doc, query, nil
}
