package classifier

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nao1215/phishguard/internal/model"
)

// verdictField describes one response shape the service may use.
type verdictField struct {
	path  string
	parse func(gjson.Result) (bool, bool)
}

// verdictFields lists the accepted response shapes. The first field present
// in the response decides the verdict.
var verdictFields = []verdictField{
	{path: "isPhishing", parse: parseBool},
	{path: "phishing", parse: parseBool},
	{path: "prediction", parse: parseLabel(map[string]bool{
		"phishing":   true,
		"legitimate": false,
		"safe":       false,
	})},
	{path: "verdict", parse: parseLabel(map[string]bool{
		"phishing": true,
		"safe":     false,
	})},
}

// ParseVerdict normalizes a classification response body to a boolean.
// The following shapes are accepted, checked in this order:
//
//	{"isPhishing": true}
//	{"phishing": true}
//	{"prediction": "Phishing" | "Legitimate" | "Safe"}
//	{"verdict": "phishing" | "safe"}
//
// Labels are matched case-insensitively. Any other body, including one that
// only carries an "error" field, yields a model.KindMalformedResponse error.
func ParseVerdict(body []byte) (bool, error) {
	if !gjson.ValidBytes(body) {
		return false, model.NewScanError(model.KindMalformedResponse, ErrNotJSON)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return false, model.NewScanError(model.KindMalformedResponse, ErrNotJSON)
	}

	for _, field := range verdictFields {
		value := doc.Get(field.path)
		if !value.Exists() {
			continue
		}
		isPhishing, ok := field.parse(value)
		if !ok {
			return false, model.NewScanError(model.KindMalformedResponse,
				fmt.Errorf("%w: %s=%s", ErrWrongVerdictType, field.path, value.Raw))
		}
		return isPhishing, nil
	}

	if msg := doc.Get("error"); msg.Exists() {
		return false, model.NewScanError(model.KindMalformedResponse,
			fmt.Errorf("%w: service reported %q", ErrNoVerdict, msg.String()))
	}
	return false, model.NewScanError(model.KindMalformedResponse, ErrNoVerdict)
}

func parseBool(v gjson.Result) (bool, bool) {
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	default:
		return false, false
	}
}

func parseLabel(labels map[string]bool) func(gjson.Result) (bool, bool) {
	return func(v gjson.Result) (bool, bool) {
		if v.Type != gjson.String {
			return false, false
		}
		isPhishing, ok := labels[strings.ToLower(strings.TrimSpace(v.Str))]
		return isPhishing, ok
	}
}
