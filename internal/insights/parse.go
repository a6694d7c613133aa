package insights

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnexpectedFormat is returned when the model's JSON lacks one of the
// three insight lists.
var ErrUnexpectedFormat = errors.New("unexpected AI response format")

// Insights is the structured report returned to clients.
type Insights struct {
	Great    []string `json:"great"`
	NotGreat []string `json:"not_great"`
	Improve  []string `json:"improve"`
}

var (
	openingFence = regexp.MustCompile("^```(?:json)?\\s*")
	closingFence = regexp.MustCompile("\\s*```$")
)

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(text string) string {
	text = openingFence.ReplaceAllString(text, "")
	text = closingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ParseResponse decodes the model output. Every list must be present and be
// an array of strings.
func ParseResponse(text string) (*Insights, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(StripFences(text)), &raw); err != nil {
		return nil, err
	}

	var out Insights
	for key, dst := range map[string]*[]string{
		"great":     &out.Great,
		"not_great": &out.NotGreat,
		"improve":   &out.Improve,
	} {
		v, ok := raw[key]
		if !ok {
			return nil, ErrUnexpectedFormat
		}
		if err := json.Unmarshal(v, dst); err != nil || *dst == nil {
			return nil, ErrUnexpectedFormat
		}
	}
	return &out, nil
}
