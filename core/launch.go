package core

import (
	"net/url"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SurveyTarget is the resolved destination of a launch after override
// policy is applied.
type SurveyTarget struct {
	BaseURL  string
	SurveyID string
}

// ResolveSurveyTarget applies the override policy: launch-supplied values
// win only when the matching override flag is enabled, otherwise the
// configured defaults hold. Pure function of its inputs.
func ResolveSurveyTarget(cfg Config, params LaunchParams) (SurveyTarget, error) {
	target := SurveyTarget{
		BaseURL:  strings.TrimSpace(cfg.SurveyBaseURL),
		SurveyID: strings.TrimSpace(cfg.SurveyID),
	}
	if cfg.Overrides.AllowURL {
		if u := params.Get(ParamSurveyURL); u != "" {
			target.BaseURL = u
		}
	}
	if cfg.Overrides.AllowID {
		if id := params.Get(ParamSurveyID); id != "" {
			target.SurveyID = id
		}
	}

	if target.BaseURL == "" {
		return SurveyTarget{}, invalidLaunch(ParamSurveyURL, "core: no survey url resolved for launch")
	}
	if target.SurveyID == "" {
		return SurveyTarget{}, invalidLaunch(ParamSurveyID, "core: no survey id resolved for launch")
	}
	return target, nil
}

// BuildRedirectURL renders the survey redirect for a resolved target,
// carrying the survey id as the SID query parameter plus any parameters the
// passthrough policy admits. Existing query parameters on the base URL are
// preserved; SID always reflects the resolved survey id.
func BuildRedirectURL(cfg Config, target SurveyTarget, params LaunchParams) (string, error) {
	parsed, err := url.Parse(target.BaseURL)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "core: parse survey url").
			WithTextCode(BridgeErrorBadInput)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", invalidLaunch(ParamSurveyURL, "core: survey url must be absolute")
	}

	query := parsed.Query()
	query.Set(ParamSurveySessionKey, target.SurveyID)
	for _, name := range passthroughParams(cfg, params) {
		query.Set(name, params.Get(name))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// passthroughParams selects which launch parameters travel to the survey
// provider. OAuth material and the bridge's own custom parameters never
// pass through, regardless of policy.
func passthroughParams(cfg Config, params LaunchParams) []string {
	var names []string
	if cfg.Passthrough.All {
		for name := range params {
			names = append(names, name)
		}
	} else {
		for _, name := range cfg.Passthrough.Params {
			names = append(names, strings.TrimSpace(name))
		}
	}

	out := names[:0]
	for _, name := range names {
		if name == "" || !params.Has(name) {
			continue
		}
		if strings.HasPrefix(name, "oauth_") {
			continue
		}
		switch name {
		case ParamSurveyURL, ParamSurveyID, ParamGrade, ParamReturnURL, ParamSurveySessionKey:
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
