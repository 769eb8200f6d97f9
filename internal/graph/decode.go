package graph

import (
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// wireNode is the canvas document shape: cosmetic position plus a data
// envelope holding the engine-relevant fields. Flat name/config at the top
// level is accepted too.
type wireNode struct {
	ID       string    `json:"id" yaml:"id"`
	Type     NodeType  `json:"type" yaml:"type"`
	Position *struct { // ignored by the engine
		X float64 `json:"x" yaml:"x"`
		Y float64 `json:"y" yaml:"y"`
	} `json:"position,omitempty" yaml:"position,omitempty"`
	Data *struct {
		Name          string         `json:"name" yaml:"name"`
		Config        map[string]any `json:"config" yaml:"config"`
		Provider      string         `json:"provider" yaml:"provider"`
		CredentialRef string         `json:"credential_ref" yaml:"credential_ref"`
	} `json:"data,omitempty" yaml:"data,omitempty"`
	Name          string         `json:"name,omitempty" yaml:"name,omitempty"`
	Config        map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Provider      string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	CredentialRef string         `json:"credential_ref,omitempty" yaml:"credential_ref,omitempty"`
	Disabled      bool           `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

type wireGraph struct {
	Nodes []wireNode `json:"nodes" yaml:"nodes"`
	Edges []Edge     `json:"edges" yaml:"edges"`
}

func (w *wireGraph) graph() *Graph {
	g := &Graph{Edges: w.Edges}
	for _, wn := range w.Nodes {
		n := Node{
			ID:            wn.ID,
			Type:          wn.Type,
			Name:          wn.Name,
			Config:        wn.Config,
			Provider:      wn.Provider,
			CredentialRef: wn.CredentialRef,
			Disabled:      wn.Disabled,
		}
		if wn.Data != nil {
			if wn.Data.Name != "" {
				n.Name = wn.Data.Name
			}
			if wn.Data.Config != nil {
				n.Config = wn.Data.Config
			}
			if wn.Data.Provider != "" {
				n.Provider = wn.Data.Provider
			}
			if wn.Data.CredentialRef != "" {
				n.CredentialRef = wn.Data.CredentialRef
			}
		}
		g.Nodes = append(g.Nodes, n)
	}
	return g
}

// DecodeJSON parses a workflow document in the canvas wire format.
func DecodeJSON(data []byte) (*Graph, error) {
	var w wireGraph
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow JSON: %w", err)
	}
	return w.graph(), nil
}

// DecodeYAML parses a file-defined workflow document.
func DecodeYAML(data []byte) (*Graph, error) {
	var w wireGraph
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow YAML: %w", err)
	}
	return w.graph(), nil
}
