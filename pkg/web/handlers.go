// Package web provides HTTP handlers and REST API endpoints for runs and approvals.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/registry"
	"github.com/dukex/flowgate/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const timeFormat = time.RFC3339

type APIHandlers struct {
	graphService    *services.Graphs
	runService      *services.Runs
	approvalService *services.Approvals
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	graphService *services.Graphs,
	runService *services.Runs,
	approvalService *services.Approvals,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		graphService:    graphService,
		runService:      runService,
		approvalService: approvalService,
		validator:       validator,
		registry:        registry,
	}
}

// Routes mounts every endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/nodes", h.GetNodes)

	g := router.Group("/graphs")
	g.Put("/:id", h.PutGraph)
	g.Get("/:id", h.GetGraph)

	r := router.Group("/runs")
	r.Post("/", h.StartRun)
	r.Get("/:id", h.GetRun)
	r.Post("/:id/step", h.StepRun)
	r.Post("/:id/advance", h.AdvanceRun)
	r.Post("/:id/cancel", h.CancelRun)

	a := router.Group("/approvals")
	a.Post("/", h.RequestApproval)
	a.Get("/:id", h.GetApproval)
	a.Post("/:id/decision", h.DecideApproval)
	a.Get("/:id/resume-data", h.GetResumeData)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.graphService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowgate API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flowgate API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetNodes(c fiber.Ctx) error {
	factories := h.registry.GetAvailableNodes()

	nodes := make([]fiber.Map, 0, len(factories))
	for _, factory := range factories {
		nodes = append(nodes, fiber.Map{
			"type":        factory.Kind(),
			"name":        factory.Name(),
			"description": factory.Description(),
			"schema":      factory.Schema(),
		})
	}

	return c.JSON(fiber.Map{"nodes": nodes})
}

func (h *APIHandlers) PutGraph(c fiber.Ctx) error {
	var graph models.Graph
	if err := c.Bind().JSON(&graph); err != nil {
		return badRequest(c, "Invalid graph: "+err.Error())
	}

	saved, err := h.graphService.Save(c.Context(), c.Params("id"), &graph)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	graph, err := h.graphService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(graph)
}

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.Start(c.Context(), services.StartRunRequest{
		WorkflowID: req.WorkflowID,
		Input:      req.Input,
		Advance:    req.Advance,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformRunResponse(run))
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformRunResponse(run))
}

func (h *APIHandlers) StepRun(c fiber.Ctx) error {
	result, err := h.runService.Step(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) AdvanceRun(c fiber.Ctx) error {
	result, err := h.runService.Advance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	status, err := h.runService.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": status})
}

func (h *APIHandlers) RequestApproval(c fiber.Ctx) error {
	var req RequestApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.approvalService.Request(c.Context(), approval.Request{
		ApprovalID:  req.ApprovalID,
		ExecutionID: req.ExecutionID,
		WorkflowID:  req.WorkflowID,
		NodeID:      req.NodeID,
		Message:     req.Message,
		UserID:      req.UserID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *APIHandlers) GetApproval(c fiber.Ctx) error {
	record, err := h.approvalService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.runService.Decide(c.Context(), c.Params("id"), approval.Decision{
		Status:    req.Status,
		DecidedBy: req.DecidedBy,
		Comment:   req.Comment,
	})
	if err != nil {
		// The decision was stored; only the resume failed.
		if result != nil {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"approval":     result.Approval,
				"resume_error": err.Error(),
			})
		}

		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetResumeData(c fiber.Ctx) error {
	record, err := h.approvalService.ResumeData(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}
