package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-lti-bridge/core"
)

type BridgeService interface {
	Launch(ctx context.Context, method string, requestURL string, params core.LaunchParams) (core.LaunchResult, error)
	SubmitGrade(ctx context.Context, method string, requestURL string, params core.LaunchParams) (core.GradeSubmission, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type HandleLaunchCommand struct {
	service BridgeService
}

func NewHandleLaunchCommand(service BridgeService) *HandleLaunchCommand {
	return &HandleLaunchCommand{service: service}
}

func (c *HandleLaunchCommand) Execute(ctx context.Context, msg HandleLaunchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: launch service is required")
	}
	out, err := c.service.Launch(ctx, msg.Method, msg.RequestURL, msg.Params)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubmitGradeCommand struct {
	service BridgeService
}

func NewSubmitGradeCommand(service BridgeService) *SubmitGradeCommand {
	return &SubmitGradeCommand{service: service}
}

func (c *SubmitGradeCommand) Execute(ctx context.Context, msg SubmitGradeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: grade service is required")
	}
	out, err := c.service.SubmitGrade(ctx, msg.Method, msg.RequestURL, msg.Params)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeExpiredCommand struct {
	service BridgeService
}

func NewPurgeExpiredCommand(service BridgeService) *PurgeExpiredCommand {
	return &PurgeExpiredCommand{service: service}
}

func (c *PurgeExpiredCommand) Execute(ctx context.Context, msg PurgeExpiredMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retention service is required")
	}
	out, err := c.service.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
