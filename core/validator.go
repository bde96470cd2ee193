package core

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ValidateLaunch decides whether params form a well-formed basic launch.
// Checks run in a fixed order and stop at the first failure so the error
// always names a single deterministic field: message type, version,
// resource_link_id, survey URL, survey id. No side effects.
func ValidateLaunch(params LaunchParams) error {
	if len(params) == 0 {
		return invalidLaunch(ParamMessageType, "launch parameters are empty")
	}
	if params.Get(ParamMessageType) != MessageTypeBasicLaunch {
		return invalidLaunch(ParamMessageType, fmt.Sprintf(
			"core: %s must be %q", ParamMessageType, MessageTypeBasicLaunch,
		))
	}
	if params.Get(ParamVersion) != VersionLTI1p0 {
		return invalidLaunch(ParamVersion, fmt.Sprintf(
			"core: %s must be %q", ParamVersion, VersionLTI1p0,
		))
	}
	if !params.Has(ParamResourceLinkID) {
		return invalidLaunch(ParamResourceLinkID, fmt.Sprintf(
			"core: %s is required", ParamResourceLinkID,
		))
	}
	if !params.Has(ParamSurveyURL) {
		return invalidLaunch(ParamSurveyURL, fmt.Sprintf(
			"core: %s is required", ParamSurveyURL,
		))
	}
	if !params.Has(ParamSurveyID) {
		return invalidLaunch(ParamSurveyID, fmt.Sprintf(
			"core: %s is required", ParamSurveyID,
		))
	}
	return nil
}

func invalidLaunch(field string, message string) error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(bridgeHTTPStatus(goerrors.CategoryValidation)).
		WithTextCode(BridgeErrorInvalidLaunch).
		WithMetadata(map[string]any{"field": field})
}
