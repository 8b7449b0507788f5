// Package checkpoint reconciles the model's parameter names against the
// names recorded in a saved checkpoint, so weights can be restored even when
// the checkpoint writer appended slot suffixes like ":0".
package checkpoint

import (
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

var slotSuffix = regexp.MustCompile(`^(.*):\d+$`)

// TrimSlot strips a trailing ":N" slot suffix from a variable name.
// Names without a suffix pass through unchanged.
func TrimSlot(name string) string {
	if m := slotSuffix.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

// AssignmentMap maps checkpoint variable names to model parameter names.
// A checkpoint variable matches when its slot-trimmed name equals a model
// parameter name; unmatched variables on either side are simply absent from
// the result. The second return value is the set of model names that the
// checkpoint covers.
func AssignmentMap(modelNames, checkpointNames []string) (map[string]string, map[string]bool) {
	model := make(map[string]bool, len(modelNames))
	for _, n := range modelNames {
		model[TrimSlot(n)] = true
	}

	assignment := make(map[string]string)
	covered := make(map[string]bool)
	for _, cn := range checkpointNames {
		name := TrimSlot(cn)
		if !model[name] {
			continue
		}
		assignment[cn] = name
		covered[name] = true
	}
	return assignment, covered
}

// Restore copies checkpoint values into the live parameter tensors. Values
// are keyed by checkpoint name (slot suffixes tolerated); parameters the
// checkpoint does not cover keep their current contents. A matched value
// whose element count disagrees with the tensor is an error.
func Restore(params map[string]device.Tensor, values map[string][]float32) error {
	names := make([]string, 0, len(params))
	for n := range params {
		names = append(names, n)
	}
	ckptNames := make([]string, 0, len(values))
	for n := range values {
		ckptNames = append(ckptNames, n)
	}

	assignment, covered := AssignmentMap(names, ckptNames)
	for ckptName, modelName := range assignment {
		t := params[modelName]
		r, c := t.Dims()
		v := values[ckptName]
		if len(v) != r*c {
			return fmt.Errorf("checkpoint: %s: %d values for a [%d %d] tensor", ckptName, len(v), r, c)
		}
		t.CopyFrom(v)
	}

	log.Debug().
		Int("restored", len(assignment)).
		Int("fresh", len(params)-len(covered)).
		Msg("checkpoint restore")
	return nil
}
