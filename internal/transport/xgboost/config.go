package xgboost

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

var paramKey = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reserved keys are set by the runner itself.
var reserved = map[string]bool{
	"task":        true,
	"data":        true,
	"num_round":   true,
	"model_in":    true,
	"model_out":   true,
	"name_dump":   true,
	"dump_format": true,
}

// ValidateParams rejects keys the runner owns and anything that could break
// the line-oriented config format.
func ValidateParams(params map[string]string) error {
	for k, v := range params {
		if !paramKey.MatchString(k) {
			return fmt.Errorf("param %q: invalid name: %w", k, domain.ErrInvalidArgument)
		}
		if reserved[k] {
			return fmt.Errorf("param %q is set by the trainer: %w", k, domain.ErrInvalidArgument)
		}
		if v == "" || strings.ContainsAny(v, "\r\n#\"") {
			return fmt.Errorf("param %q: invalid value %q: %w", k, v, domain.ErrInvalidArgument)
		}
	}
	return nil
}

// writeTrainConfig renders a CLI config for a training task. Params are
// written in key order so the file is reproducible.
func writeTrainConfig(w io.Writer, job TrainJob) error {
	var b strings.Builder
	b.WriteString("task = train\n")
	for _, k := range sortedKeys(job.Params) {
		fmt.Fprintf(&b, "%s = %s\n", k, job.Params[k])
	}
	fmt.Fprintf(&b, "num_round = %d\n", job.Rounds)
	fmt.Fprintf(&b, "data = \"%s?format=libsvm\"\n", job.DataPath)
	fmt.Fprintf(&b, "model_out = \"%s\"\n", job.ModelOut)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeDumpConfig(w io.Writer, modelPath, dumpPath string) error {
	_, err := fmt.Fprintf(w, "task = dump\nmodel_in = \"%s\"\nname_dump = \"%s\"\ndump_format = json\n", modelPath, dumpPath)
	return err
}

// checkPath rejects paths the config syntax cannot carry.
func checkPath(name, p string) error {
	if p == "" || strings.ContainsAny(p, "\r\n\"") {
		return fmt.Errorf("%s path %q: %w", name, p, domain.ErrInvalidArgument)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
