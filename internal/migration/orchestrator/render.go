package orchestrator

import (
	"bytes"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/gate"
)

// Render returns the manifests Launch would create for req as a multi
// document YAML stream, without the run's Lease. The output is empty when
// the gate decides against a run.
func (o *Orchestrator) Render(req migration.Request) ([]byte, gate.Decision, error) {
	p := o.plan(req)
	if !p.decision.ShouldRun {
		return nil, p.decision, nil
	}

	objs := p.objects()
	var manifests []any
	if p.cfg.Artifacts.Backend != config.BackendS3 {
		manifests = append(manifests, objs.artifactClaim())
	}
	manifests = append(manifests, objs.statusRecord(o.now()))
	if p.cfg.Execution.CreateRBAC {
		manifests = append(manifests, objs.statusRole(), objs.statusRoleBinding())
	}
	for _, job := range p.template().Jobs() {
		manifests = append(manifests, job)
	}

	var buf bytes.Buffer
	for _, m := range manifests {
		data, err := yaml.Marshal(m)
		if err != nil {
			return nil, p.decision, fmt.Errorf("failed to marshal manifest: %w", err)
		}
		buf.WriteString("---\n")
		buf.Write(data)
	}
	return buf.Bytes(), p.decision, nil
}
