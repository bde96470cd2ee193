package core

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// poxEnvelopeTemplate is the fixed IMS outcome-service envelope carrying a
// replaceResultRequest. Placeholders: message id, sourced id, grade.
const poxEnvelopeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<imsx_POXEnvelopeRequest xmlns="http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0">
  <imsx_POXHeader>
    <imsx_POXRequestHeaderInfo>
      <imsx_version>V1.0</imsx_version>
      <imsx_messageIdentifier>%s</imsx_messageIdentifier>
    </imsx_POXRequestHeaderInfo>
  </imsx_POXHeader>
  <imsx_POXBody>
    <replaceResultRequest>
      <resultRecord>
        <sourcedGUID>
          <sourcedId>%s</sourcedId>
        </sourcedGUID>
        <result>
          <resultScore>
            <language>en</language>
            <textString>%s</textString>
          </resultScore>
        </result>
      </resultRecord>
    </replaceResultRequest>
  </imsx_POXBody>
</imsx_POXEnvelopeRequest>`

// BuildReplaceResultEnvelope renders the POX body for one grade. The
// message identifier is process-unique; the grade must already be range
// checked.
func BuildReplaceResultEnvelope(resultID string, grade float64) (body []byte, messageID string, err error) {
	resultID = strings.TrimSpace(resultID)
	if resultID == "" {
		return nil, "", fmt.Errorf("core: result id is required")
	}
	messageID = uuid.NewString()
	rendered := fmt.Sprintf(
		poxEnvelopeTemplate,
		messageID,
		escapeXML(resultID),
		FormatGrade(grade),
	)
	return []byte(rendered), messageID, nil
}

// FormatGrade renders a grade as a fixed-point decimal with exactly one
// fractional digit, half-up, locale independent: 0.85 -> "0.9",
// 0.84 -> "0.8".
func FormatGrade(grade float64) string {
	rounded := math.Floor(grade*10+0.5) / 10
	return strconv.FormatFloat(rounded, 'f', 1, 64)
}

// ValidGrade reports whether a grade satisfies the protocol range. The
// boundary values 0.0 and 1.0 are both accepted.
func ValidGrade(grade float64) bool {
	return grade >= 0.0 && grade <= 1.0
}

// OutcomeAccepted scans the provider response body for the success marker.
func OutcomeAccepted(body []byte, marker string) bool {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		marker = "success"
	}
	return strings.Contains(string(body), marker)
}

func escapeXML(value string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(value)); err != nil {
		return value
	}
	return b.String()
}
