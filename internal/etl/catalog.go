package etl

import "fmt"

// ── Catalog ────────────────────────────────────────────────
// The three command-center pipelines. Locators come from configuration.

const (
	PipelineDS     = "ds"
	PipelineReport = "report"
	PipelineCare   = "care"
)

// PipelineNames lists the catalog in run order.
var PipelineNames = []string{PipelineDS, PipelineReport, PipelineCare}

// CareColumns names the positional columns of the care sheet, in order.
var CareColumns = []string{
	"District", "% Risk of Hypertension", "Hypertension Count", "% Risk of Diabetes", "Diabetes Count",
	"Prevalence of Anemia", "Anemia Count", "Thyroid Status", "Thyroid Count",
	"Chronic Kidney Disease", "CKD Count", "Liver Disease", "Liver Disease Count",
	"Need Spectacles", "Spectacles Count", "Need Aid", "Aid Count",
}

var careCounts = []string{
	"Hypertension Count", "Diabetes Count", "Anemia Count", "Thyroid Count",
	"CKD Count", "Liver Disease Count", "Spectacles Count", "Aid Count",
}

// DefaultPipelines builds the catalog with locators taken from sources,
// keyed by pipeline name.
func DefaultPipelines(sources map[string]Locator) []Pipeline {
	loc := func(name string) Locator {
		l := sources[name]
		if l.Name == "" {
			l.Name = name
		}
		return l
	}

	careRules := []ColumnRule{ByName("District", PreserveStringOrNull)}
	for _, col := range careCounts {
		careRules = append(careRules, ByName(col, ToNumber))
	}

	return []Pipeline{
		{
			Name:   PipelineDS,
			Source: loc(PipelineDS),
			Header: SelfDescribing(),
			Rules: []ColumnRule{
				ByName("Test Date", ToTimestamp),
				ByName("Count", ToNumber),
				ByName("W/O Division", PreserveStringOrNull).IfPresent(),
			},
			Require:    []string{"Test Date"},
			Collection: "command_center_ds",
			InferTypes: true,
		},
		{
			Name:   PipelineReport,
			Source: loc(PipelineReport),
			Header: SelfDescribing(),
			Rules: []ColumnRule{
				ByName("Tests Count", ToNumber),
				ByName("Sample Processed", ToNumber),
				ByName("Report Printed", ToNumber),
				ByName("Report Distributed", ToNumber),
				ByPosition(0, PreserveStringOrNull),
			},
			Collection: "command_center_report",
			InferTypes: true,
		},
		{
			Name:       PipelineCare,
			Source:     loc(PipelineCare),
			Header:     PositionalRename(CareColumns...),
			Rules:      careRules,
			Require:    []string{"District"},
			Collection: "command_center_care",
			InferTypes: true,
		},
	}
}

// SelectPipelines returns the pipelines named in only, in catalog order.
// An empty only selects all of them.
func SelectPipelines(all []Pipeline, only []string) ([]Pipeline, error) {
	if len(only) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[name] = true
	}
	var out []Pipeline
	for _, p := range all {
		if want[p.Name] {
			out = append(out, p)
			delete(want, p.Name)
		}
	}
	for name := range want {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}
	return out, nil
}

// FindPipeline returns the pipeline called name.
func FindPipeline(all []Pipeline, name string) (Pipeline, error) {
	for _, p := range all {
		if p.Name == name {
			return p, nil
		}
	}
	return Pipeline{}, fmt.Errorf("unknown pipeline %q", name)
}
