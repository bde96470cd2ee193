package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-lti-bridge/core"
)

const (
	TypeHandleLaunch = "ltibridge.command.launch.handle"
	TypeSubmitGrade  = "ltibridge.command.grade.submit"
	TypePurgeExpired = "ltibridge.command.retention.purge"
)

type HandleLaunchMessage struct {
	Method     string
	RequestURL string
	Params     core.LaunchParams
}

func (HandleLaunchMessage) Type() string { return TypeHandleLaunch }

func (m HandleLaunchMessage) Validate() error {
	if strings.TrimSpace(m.RequestURL) == "" {
		return fmt.Errorf("command: request url is required")
	}
	if len(m.Params) == 0 {
		return fmt.Errorf("command: launch parameters are required")
	}
	return nil
}

type SubmitGradeMessage struct {
	Method     string
	RequestURL string
	Params     core.LaunchParams
}

func (SubmitGradeMessage) Type() string { return TypeSubmitGrade }

func (m SubmitGradeMessage) Validate() error {
	if strings.TrimSpace(m.RequestURL) == "" {
		return fmt.Errorf("command: request url is required")
	}
	if !m.Params.Has(core.ParamResultSourcedID) {
		return fmt.Errorf("command: %s is required", core.ParamResultSourcedID)
	}
	if !m.Params.Has(core.ParamGrade) {
		return fmt.Errorf("command: %s is required", core.ParamGrade)
	}
	return nil
}

type PurgeExpiredMessage struct{}

func (PurgeExpiredMessage) Type() string { return TypePurgeExpired }

func (PurgeExpiredMessage) Validate() error { return nil }
