package servus

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmarkhas/servus/internal/registry"
)

// ServiceInfo is a point-in-time view of one entry, used by inspection and
// debugging tooling. It is a copy: mutating it never touches the registry.
type ServiceInfo struct {
	Key          string    `yaml:"key"`
	State        string    `yaml:"state"`
	Tags         []string  `yaml:"tags,omitempty"`
	RegisteredBy string    `yaml:"registered_by,omitempty"`
	RegisteredAt time.Time `yaml:"registered_at"`
	Exempt       bool      `yaml:"exempt,omitempty"`
	Dependencies []string  `yaml:"dependencies,omitempty"`
	Waiters      int       `yaml:"waiters,omitempty"`
}

func infoFrom(in registry.Info) ServiceInfo {
	return ServiceInfo{
		Key:          in.Key,
		State:        in.State.String(),
		Tags:         in.Tags,
		RegisteredBy: in.RegisteredBy,
		RegisteredAt: in.RegisteredAt,
		Exempt:       in.Exempt,
		Dependencies: in.Dependencies,
		Waiters:      in.Waiters,
	}
}

// Services returns a consistent snapshot of every entry, sorted by key.
func (r *Registry) Services() []ServiceInfo {
	snapshot := r.services.Snapshot()
	infos := make([]ServiceInfo, 0, len(snapshot))
	for _, in := range snapshot {
		infos = append(infos, infoFrom(in))
	}
	return infos
}

// ServicesWithTag returns snapshot entries carrying tag. Never errors;
// empty when nothing matches.
func (r *Registry) ServicesWithTag(tag string) []ServiceInfo {
	return r.servicesByKeys(r.services.WithTag(tag))
}

// ServicesWithAnyTag returns snapshot entries carrying at least one of the
// given tags.
func (r *Registry) ServicesWithAnyTag(tags ...string) []ServiceInfo {
	return r.servicesByKeys(r.services.WithAnyTag(tags...))
}

// ServicesWithAllTags returns snapshot entries carrying every given tag.
func (r *Registry) ServicesWithAllTags(tags ...string) []ServiceInfo {
	return r.servicesByKeys(r.services.WithAllTags(tags...))
}

func (r *Registry) servicesByKeys(keys []string) []ServiceInfo {
	if len(keys) == 0 {
		return nil
	}

	wanted := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		wanted[key] = struct{}{}
	}

	var infos []ServiceInfo
	for _, in := range r.services.Snapshot() {
		if _, ok := wanted[in.Key]; ok {
			infos = append(infos, infoFrom(in))
		}
	}
	return infos
}

func (r *Registry) PrintGraph() {
	r.FprintGraph(os.Stdout)
}

func (r *Registry) FprintGraph(w io.Writer) {
	infos := r.Services()

	if len(infos) == 0 {
		_, _ = fmt.Fprintln(w, "(empty registry)")
		return
	}

	for _, svc := range infos {
		status := "○"
		if svc.State == "ready" {
			status = "●"
		}

		if len(svc.Dependencies) == 0 {
			_, _ = fmt.Fprintf(w, "%s %s\n", status, svc.Key)
		} else {
			_, _ = fmt.Fprintf(w, "%s %s ← %s\n", status, svc.Key, strings.Join(svc.Dependencies, ", "))
		}
	}
}

func (r *Registry) SprintGraph() string {
	var sb strings.Builder
	r.FprintGraph(&sb)
	return sb.String()
}

func (r *Registry) FprintGraphDOT(w io.Writer) {
	infos := r.Services()

	_, _ = fmt.Fprintln(w, "digraph services {")
	_, _ = fmt.Fprintln(w, "  rankdir=LR;")
	_, _ = fmt.Fprintln(w, "  node [shape=box];")

	for _, svc := range infos {
		label := escapeLabel(svc.Key)
		style := ""
		if svc.State == "ready" {
			style = ", style=filled, fillcolor=lightblue"
		}
		_, _ = fmt.Fprintf(w, "  %q [label=%q%s];\n", svc.Key, label, style)
	}

	_, _ = fmt.Fprintln(w)

	for _, svc := range infos {
		for _, dep := range svc.Dependencies {
			_, _ = fmt.Fprintf(w, "  %q -> %q;\n", svc.Key, dep)
		}
	}

	_, _ = fmt.Fprintln(w, "}")
}

func (r *Registry) SprintGraphDOT() string {
	var sb strings.Builder
	r.FprintGraphDOT(&sb)
	return sb.String()
}

// SprintSnapshotYAML renders the full snapshot as YAML for log dumps and
// external inspection tooling.
func (r *Registry) SprintSnapshotYAML() (string, error) {
	out, err := yaml.Marshal(r.Services())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "*", "")
	if idx := strings.LastIndex(s, "/"); idx != -1 {
		s = s[idx+1:]
	}
	return s
}
