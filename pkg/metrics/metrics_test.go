package metrics_test

import (
	"testing"

	"github.com/bitmuster/resultblend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.SetBuildInfo("v1", "abc", "today")
	m.RecordDocumentStaged(10)
	m.RecordBlend("succeeded", 0.5, 2048)
	m.RecordAuthRejection("missing")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := make(map[string]bool, len(families))
	for _, f := range families {
		found[f.GetName()] = true
	}

	for _, name := range []string{
		"resultblend_build_info",
		"resultblend_documents_staged_total",
		"resultblend_staged_bytes_total",
		"resultblend_blends_total",
		"resultblend_artifact_bytes",
		"resultblend_auth_rejections_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}

	// A second registry gets its own collectors.
	metrics.New(prometheus.NewRegistry())
}
