package cli

import (
	"encoding/json"
	"fmt"
	"io"

	httpAdapter "github.com/aretw0/blobrelay/internal/adapters/http"
	"github.com/aretw0/blobrelay/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by RenderInstances.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// RenderInstances writes the public view of each instance to w.
// The YAML form reuses the JSON field names.
func RenderInstances(w io.Writer, format string, instances ...*domain.Instance) error {
	views := make([]httpAdapter.InstanceView, 0, len(instances))
	for _, inst := range instances {
		if inst != nil {
			views = append(views, httpAdapter.NewInstanceView(inst))
		}
	}
	var v any = views
	if len(views) == 1 {
		v = views[0]
	}

	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
