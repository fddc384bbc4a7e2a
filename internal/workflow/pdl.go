package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/flowsim-go/internal/graph"
)

// PDL is a parsed procedure description document. Raw keeps the original
// text for prompts that want the full document; the typed fields back the
// dependency graph and the API-free rendering.
type PDL struct {
	Raw string

	Name       string
	Desc       string
	DescDetail string
	APIs       []graph.ActionSpec
	Slots      any
	Answers    any
	Procedure  string

	Version string
}

type pdlDoc struct {
	Name         string             `yaml:"Name"`
	Desc         string             `yaml:"Desc"`
	DetailedDesc string             `yaml:"Detailed_desc"`
	APIs         []graph.ActionSpec `yaml:"APIs"`
	Slots        any                `yaml:"SLOTs"`
	Answers      any                `yaml:"ANSWERs"`
	Procedure    string             `yaml:"PDL"`
	Version      string             `yaml:"Version"`
}

// ParsePDL decodes a procedure document from its YAML text.
func ParsePDL(raw string) (*PDL, error) {
	var doc pdlDoc
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing procedure document: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("procedure document has no Name")
	}
	version := doc.Version
	if version == "" {
		version = string(graph.EncodingNative)
	}
	return &PDL{
		Raw:        strings.TrimSpace(raw),
		Name:       doc.Name,
		Desc:       doc.Desc,
		DescDetail: doc.DetailedDesc,
		APIs:       doc.APIs,
		Slots:      doc.Slots,
		Answers:    doc.Answers,
		Procedure:  doc.Procedure,
		Version:    version,
	}, nil
}

// LoadPDL reads and parses a procedure document file.
func LoadPDL(path string) (*PDL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading procedure document: %w", err)
	}
	return ParsePDL(string(data))
}

// Graph builds the action dependency graph from the document's API
// declarations, using the document's precondition encoding.
func (p *PDL) Graph() (*graph.Graph, error) {
	return graph.Build(p.APIs, graph.Encoding(p.Version))
}

// pdlSummary fixes the key order of the API-free rendering.
type pdlSummary struct {
	Name       string `yaml:"name"`
	Desc       string `yaml:"desc"`
	DescDetail string `yaml:"desc_detail"`
	Slots      any    `yaml:"slots"`
	Answers    any    `yaml:"answers"`
	Procedure  string `yaml:"procedure"`
}

// StringWithoutAPIs renders the document for bot prompts with the API
// declarations stripped. The toolbox is presented separately, so listing
// the APIs again here would only duplicate them.
func (p *PDL) StringWithoutAPIs() string {
	out, err := yaml.Marshal(pdlSummary{
		Name:       p.Name,
		Desc:       p.Desc,
		DescDetail: p.DescDetail,
		Slots:      p.Slots,
		Answers:    p.Answers,
		Procedure:  p.Procedure,
	})
	if err != nil {
		return p.Raw
	}
	return string(out)
}
